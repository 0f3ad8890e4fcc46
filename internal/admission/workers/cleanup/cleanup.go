// Package cleanup periodically sweeps expired rate windows out of the
// in-memory store so idle fingerprints do not hold memory forever.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"edgegate/internal/admission/metrics"
)

// SweepStore is satisfied by the in-memory window store. The Redis store
// expires keys on its own and does not need a worker.
type SweepStore interface {
	Sweep(ctx context.Context) (removed int, err error)
	Len() int
}

type Worker struct {
	store    SweepStore
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func New(store SweepStore, opts ...Option) *Worker {
	w := &Worker{
		store:    store,
		logger:   slog.Default(),
		interval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			removed, err := w.RunOnce(ctx)
			duration := time.Since(start)

			if err != nil {
				w.logger.Error("window_sweep_failed",
					"error", err,
					"duration_ms", duration.Milliseconds(),
				)
				if w.metrics != nil {
					w.metrics.SweepRuns.WithLabelValues("error").Inc()
					w.metrics.SweepDuration.Observe(duration.Seconds())
				}
				continue
			}

			w.logger.Info("window_sweep_completed",
				"windows_removed", removed,
				"windows_remaining", w.store.Len(),
				"duration_ms", duration.Milliseconds(),
			)

			if w.metrics != nil {
				w.metrics.SweepRemoved.Add(float64(removed))
				w.metrics.SweepRuns.WithLabelValues("success").Inc()
				w.metrics.SweepDuration.Observe(duration.Seconds())
				w.metrics.TrackedWindows.Set(float64(w.store.Len()))
			}

		case <-ctx.Done():
			w.logger.Info("window sweep worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single sweep. Logging is handled by the caller (Start).
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	return w.store.Sweep(ctx)
}
