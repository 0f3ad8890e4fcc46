// Package handler exposes the read-only operator query surface over the
// security event store.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"edgegate/internal/telemetry/models"
	dErrors "edgegate/pkg/domain-errors"
	"edgegate/pkg/platform/httputil"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
	defaultRange       = 24 * time.Hour
)

// Querier is the store surface the handler reads from.
type Querier interface {
	Metrics(from, to time.Time) models.Snapshot
	Recent(limit int) []models.SecurityEvent
	ByType(t models.EventType, limit int) []models.SecurityEvent
	HighRisk(threshold int) []models.SecurityEvent
}

type Handler struct {
	store            Querier
	defaultThreshold int
	logger           *slog.Logger
}

func New(store Querier, defaultThreshold int, logger *slog.Logger) *Handler {
	return &Handler{store: store, defaultThreshold: defaultThreshold, logger: logger}
}

// Register mounts the operator routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/ops/security/metrics", h.HandleMetrics)
	r.Get("/ops/security/events/recent", h.HandleRecent)
	r.Get("/ops/security/events/by-type/{type}", h.HandleByType)
	r.Get("/ops/security/events/high-risk", h.HandleHighRisk)
}

// HandleMetrics implements GET /ops/security/metrics?from=&to= with RFC 3339
// bounds; the default range is the last 24 hours.
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.Add(-defaultRange)

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "from must be RFC 3339"))
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "to must be RFC 3339"))
			return
		}
		to = parsed
	}
	if to.Before(from) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "to must not precede from"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, h.store.Metrics(from, to))
}

// HandleRecent implements GET /ops/security/events/recent?limit=.
func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eventList(h.store.Recent(limit)))
}

// HandleByType implements GET /ops/security/events/by-type/{type}?limit=.
func (h *Handler) HandleByType(w http.ResponseWriter, r *http.Request) {
	eventType := models.EventType(chi.URLParam(r, "type"))
	if !validEventType(eventType) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unknown event type"))
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eventList(h.store.ByType(eventType, limit)))
}

// HandleHighRisk implements GET /ops/security/events/high-risk?threshold=.
func (h *Handler) HandleHighRisk(w http.ResponseWriter, r *http.Request) {
	threshold := h.defaultThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 100 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "threshold must be 0-100"))
			return
		}
		threshold = n
	}
	httputil.WriteJSON(w, http.StatusOK, eventList(h.store.HighRisk(threshold)))
}

// eventListResponse keeps the wire shape stable even for empty result sets.
type eventListResponse struct {
	Count  int                    `json:"count"`
	Events []models.SecurityEvent `json:"events"`
}

func eventList(events []models.SecurityEvent) eventListResponse {
	if events == nil {
		events = []models.SecurityEvent{}
	}
	return eventListResponse{Count: len(events), Events: events}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultRecentLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer")
	}
	return min(n, maxRecentLimit), nil
}

func validEventType(t models.EventType) bool {
	for _, known := range models.AllEventTypes() {
		if t == known {
			return true
		}
	}
	return false
}
