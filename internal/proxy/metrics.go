package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Forwards        *prometheus.CounterVec
	ForwardDuration prometheus.Histogram
	InvalidPaths    prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Forwards: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "edgegate_proxy_forwards_total",
			Help: "Total forwarded calls, by outcome (relayed, timeout, dispatch_error)",
		}, []string{"outcome"}),
		ForwardDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "edgegate_proxy_forward_duration_seconds",
			Help: "Backend round-trip time in seconds",
		}),
		InvalidPaths: promauto.NewCounter(prometheus.CounterOpts{
			Name: "edgegate_proxy_invalid_paths_total",
			Help: "Total requests rejected for missing the API prefix",
		}),
	}
}
