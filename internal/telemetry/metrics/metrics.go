package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsRecorded *prometheus.CounterVec
	StoreSize      prometheus.Gauge
	EventsEvicted  prometheus.Counter
	AlertsFired    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "edgegate_security_events_total",
			Help: "Total number of security events recorded, by type and severity",
		}, []string{"type", "severity"}),
		StoreSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "edgegate_security_event_store_size",
			Help: "Current number of events held in the in-memory store",
		}),
		EventsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "edgegate_security_events_evicted_total",
			Help: "Total number of events evicted from the bounded store",
		}),
		AlertsFired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "edgegate_security_alerts_fired_total",
			Help: "Total number of critical-severity alerts fired",
		}),
	}
}
