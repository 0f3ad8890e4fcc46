// Package httptransport assembles the gateway router: the proxied API
// surface plus the operator endpoints (health, metrics, security queries).
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	admissionmetrics "edgegate/internal/admission/metrics"
	admissionmw "edgegate/internal/admission/middleware"
	"edgegate/internal/platform/config"
	"edgegate/internal/platform/health"
	platformmetrics "edgegate/internal/platform/metrics"
	telemetryhandler "edgegate/internal/telemetry/handler"
	"edgegate/pkg/platform/middleware/auth"
	"edgegate/pkg/platform/middleware/metadata"
	"edgegate/pkg/platform/middleware/operator"
	"edgegate/pkg/platform/middleware/request"
)

// Deps carries everything the router mounts. All fields are required
// except Throttle metrics.
type Deps struct {
	Logger           *slog.Logger
	Config           config.Server
	Pipeline         http.Handler
	Telemetry        *telemetryhandler.Handler
	Health           *health.Handler
	Metrics          *platformmetrics.Metrics
	AdmissionMetrics *admissionmetrics.Metrics
	Verifier         *auth.Verifier
}

// NewRouter wires the middleware stack and mounts every surface. Order
// matters: recovery wraps everything, metadata must precede anything that
// reads the client IP, and the throttle runs before per-policy admission.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(metadata.New(d.Config.TrustedProxies).Handler)
	r.Use(request.Logger(d.Logger))
	r.Use(d.Metrics.Middleware)

	d.Health.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if d.Config.OperatorToken != "" {
			r.Use(operator.RequireToken(d.Config.OperatorToken, d.Logger))
		}
		d.Telemetry.Register(r)
	})

	r.Route(d.Config.Backend.APIPrefix, func(r chi.Router) {
		r.Use(request.BodyLimit(d.Config.Backend.MaxBodyBytes))
		r.Use(d.Verifier.OptionalIdentity)
		r.Use(admissionmw.GlobalThrottle(d.Config.Throttle.RPS, d.Config.Throttle.Burst, d.AdmissionMetrics))
		r.Handle("/*", d.Pipeline)
		r.Handle("/", d.Pipeline)
	})

	return r
}
