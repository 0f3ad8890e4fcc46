// Package window implements fixed-window rate counters keyed by
// policy-scoped fingerprint. The in-memory store is the default; a Redis
// variant exists as the extension point for sharing windows across gateway
// instances.
package window

import (
	"context"
	"sort"
	"sync"
	"time"

	"edgegate/internal/admission/models"
)

// DefaultMaxEntries caps distinct windows held in memory when no limit is
// configured. Short-lived fingerprints would otherwise grow the map without
// bound, since expiry alone only overwrites on the next hit.
const DefaultMaxEntries = 100000

// entry is one fixed window: start timestamp plus observed count.
type entry struct {
	start  time.Time
	window time.Duration
	count  int
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.start.Add(e.window))
}

// MemoryStore is a mutex-guarded fixed-window counter map. The lock is held
// only for the read-check-increment step, never across I/O.
type MemoryStore struct {
	mu         sync.Mutex
	windows    map[string]*entry
	maxEntries int
	now        func() time.Time // injectable for tests
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithMaxEntries bounds the number of distinct windows kept in memory.
func WithMaxEntries(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithClock injects a time source. Tests use it to cross window boundaries
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		windows:    make(map[string]*entry),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hit records one request against the key's window and reports the
// admission decision. A missing or expired window restarts with count 1;
// otherwise the count increments and the request is allowed only while
// count <= limit, so the (limit+1)-th request in a window is always denied.
func (s *MemoryStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.windows[key]
	if !ok || e.expired(now) {
		if !ok && len(s.windows) >= s.maxEntries {
			s.evictLocked(now)
		}
		e = &entry{start: now, window: window, count: 1}
		s.windows[key] = e
	} else {
		e.count++
	}

	return models.NewResult(e.count, limit, e.start.Add(e.window), now), nil
}

// Reset clears the window for a key.
func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Len returns the number of tracked windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Sweep removes expired windows and returns how many were dropped. The
// cleanup worker calls this periodically so idle fingerprints do not
// accumulate.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.windows {
		if e.expired(now) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed, nil
}

// evictLocked makes room when the map is at capacity: expired windows go
// first, then the oldest tenth by window start. Batched so the cost is not
// paid on every insert.
func (s *MemoryStore) evictLocked(now time.Time) {
	for key, e := range s.windows {
		if e.expired(now) {
			delete(s.windows, key)
		}
	}
	if len(s.windows) < s.maxEntries {
		return
	}

	type aged struct {
		key   string
		start time.Time
	}
	all := make([]aged, 0, len(s.windows))
	for key, e := range s.windows {
		all = append(all, aged{key: key, start: e.start})
	}
	sort.Slice(all, func(a, b int) bool { return all[a].start.Before(all[b].start) })

	drop := max(len(all)/10, 1)
	for _, a := range all[:drop] {
		delete(s.windows, a.key)
	}
}
