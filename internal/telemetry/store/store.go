// Package store holds the bounded in-memory security event log. Writes are
// frequent and cheap; reads are operator queries. A fixed-capacity ring
// buffer keeps insertion O(1) and the sequence length within bound without
// per-insert shifting.
package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"edgegate/internal/telemetry/alert"
	"edgegate/internal/telemetry/metrics"
	"edgegate/internal/telemetry/models"
)

// DefaultCapacity bounds the event log when no capacity is configured.
const DefaultCapacity = 10000

// highRiskResultCap limits HighRisk result sets.
const highRiskResultCap = 100

// Store is the security telemetry sink and query surface.
type Store struct {
	mu   sync.Mutex
	buf  []models.SecurityEvent
	head int // index of the oldest event
	size int

	logger  *slog.Logger
	alerter alert.Alerter
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAlerter(a alert.Alerter) Option {
	return func(s *Store) { s.alerter = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store with the given capacity; non-positive values fall back
// to DefaultCapacity.
func New(capacity int, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		buf:    make([]models.SecurityEvent, capacity),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends the event, writes it to the severity-keyed log sink, and
// fires the alert hook synchronously for critical events. The oldest entry
// is overwritten once the store is full, so length never exceeds capacity.
func (s *Store) Record(ctx context.Context, event models.SecurityEvent) {
	s.mu.Lock()
	capacity := len(s.buf)
	if s.size < capacity {
		s.buf[(s.head+s.size)%capacity] = event
		s.size++
	} else {
		s.buf[s.head] = event
		s.head = (s.head + 1) % capacity
		if s.metrics != nil {
			s.metrics.EventsEvicted.Inc()
		}
	}
	size := s.size
	s.mu.Unlock()

	s.log(ctx, event)

	if s.metrics != nil {
		s.metrics.EventsRecorded.WithLabelValues(string(event.Type), string(event.Severity)).Inc()
		s.metrics.StoreSize.Set(float64(size))
	}

	if event.Severity == models.SeverityCritical && s.alerter != nil {
		s.alerter.Alert(ctx, event)
		if s.metrics != nil {
			s.metrics.AlertsFired.Inc()
		}
	}
}

// log performs the severity-keyed structured log write.
func (s *Store) log(ctx context.Context, event models.SecurityEvent) {
	args := []any{
		"event_id", event.ID,
		"type", event.Type,
		"severity", event.Severity,
		"ip", event.IP,
		"path", event.Path,
		"method", event.Method,
		"request_id", event.RequestID,
		"log_type", "security",
	}
	switch event.Severity {
	case models.SeverityCritical, models.SeverityHigh:
		s.logger.ErrorContext(ctx, event.Message, args...)
	case models.SeverityMedium:
		s.logger.WarnContext(ctx, event.Message, args...)
	default:
		s.logger.InfoContext(ctx, event.Message, args...)
	}
}

// Len returns the number of retained events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Recent returns up to limit events, most recent first.
func (s *Store) Recent(limit int) []models.SecurityEvent {
	return s.collect(limit, func(models.SecurityEvent) bool { return true })
}

// ByType returns up to limit events of the given type, most recent first.
func (s *Store) ByType(t models.EventType, limit int) []models.SecurityEvent {
	return s.collect(limit, func(ev models.SecurityEvent) bool { return ev.Type == t })
}

// HighRisk returns events that are HIGH or CRITICAL severity, or whose risk
// score meets the threshold. Most recent first, capped at 100.
func (s *Store) HighRisk(threshold int) []models.SecurityEvent {
	return s.collect(highRiskResultCap, func(ev models.SecurityEvent) bool {
		return ev.Severity.AtLeast(models.SeverityHigh) || (ev.RiskScore > 0 && ev.RiskScore >= threshold)
	})
}

// collect walks the ring newest to oldest gathering matches.
func (s *Store) collect(limit int, match func(models.SecurityEvent) bool) []models.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil
	}
	out := make([]models.SecurityEvent, 0, min(limit, s.size))
	capacity := len(s.buf)
	for i := s.size - 1; i >= 0 && len(out) < limit; i-- {
		ev := s.buf[(s.head+i)%capacity]
		if match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Metrics aggregates events whose timestamp falls in [from, to] inclusive.
// Every enumerated type and severity appears in the partitions, zero when
// absent, and topIPs holds the ten busiest addresses with ties broken by
// first-seen order.
func (s *Store) Metrics(from, to time.Time) models.Snapshot {
	snap := models.Snapshot{
		From:       from,
		To:         to,
		ByType:     make(map[models.EventType]int, len(models.AllEventTypes())),
		BySeverity: make(map[models.Severity]int, len(models.AllSeverities())),
	}
	for _, t := range models.AllEventTypes() {
		snap.ByType[t] = 0
	}
	for _, sev := range models.AllSeverities() {
		snap.BySeverity[sev] = 0
	}

	ipCounts := map[string]int{}
	ipFirstSeen := map[string]int{}

	s.mu.Lock()
	capacity := len(s.buf)
	for i := 0; i < s.size; i++ {
		ev := s.buf[(s.head+i)%capacity]
		if ev.Timestamp.Before(from) || ev.Timestamp.After(to) {
			continue
		}
		snap.Total++
		snap.ByType[ev.Type]++
		snap.BySeverity[ev.Severity]++
		if _, seen := ipCounts[ev.IP]; !seen {
			ipFirstSeen[ev.IP] = i
		}
		ipCounts[ev.IP]++
	}
	s.mu.Unlock()

	ips := make([]models.IPCount, 0, len(ipCounts))
	for ip, n := range ipCounts {
		ips = append(ips, models.IPCount{IP: ip, Count: n})
	}
	sort.Slice(ips, func(a, b int) bool {
		if ips[a].Count != ips[b].Count {
			return ips[a].Count > ips[b].Count
		}
		return ipFirstSeen[ips[a].IP] < ipFirstSeen[ips[b].IP]
	})
	if len(ips) > 10 {
		ips = ips[:10]
	}
	snap.TopIPs = ips
	return snap
}
