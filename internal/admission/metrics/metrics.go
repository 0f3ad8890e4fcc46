package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks         *prometheus.CounterVec
	Bypasses       prometheus.Counter
	Throttled      prometheus.Counter
	StoreFailures  prometheus.Counter
	SweepRuns      *prometheus.CounterVec
	SweepRemoved   prometheus.Counter
	SweepDuration  prometheus.Histogram
	TrackedWindows prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "edgegate_admission_checks_total",
			Help: "Total admission decisions, by policy and outcome",
		}, []string{"policy", "outcome"}),
		Bypasses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "edgegate_admission_bypasses_total",
			Help: "Total requests that skipped admission via service credential",
		}),
		Throttled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "edgegate_admission_throttled_total",
			Help: "Total requests rejected by the global throttle",
		}),
		StoreFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "edgegate_admission_store_failures_total",
			Help: "Total window store errors (requests fail open)",
		}),
		SweepRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "edgegate_admission_sweep_runs_total",
			Help: "Total window sweep runs, by status",
		}, []string{"status"}),
		SweepRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "edgegate_admission_sweep_removed_total",
			Help: "Total expired windows removed by the sweep worker",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "edgegate_admission_sweep_duration_seconds",
			Help: "Duration of window sweep runs in seconds",
		}),
		TrackedWindows: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "edgegate_admission_tracked_windows",
			Help: "Current number of rate windows held in memory",
		}),
	}
}
