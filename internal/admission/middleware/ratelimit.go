// Package middleware enforces admission decisions at the edge of the
// router. A denied request is answered with the standard error envelope
// plus the caller's remaining budget; a window store failure lets the
// request through so a degraded counter never takes the gateway down.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"edgegate/internal/admission/metrics"
	"edgegate/internal/admission/service"
	"edgegate/internal/fingerprint"
	"edgegate/internal/platform/config"
	tmodels "edgegate/internal/telemetry/models"
	dErrors "edgegate/pkg/domain-errors"
	"edgegate/pkg/platform/httputil"
	"edgegate/pkg/platform/middleware/auth"
	"edgegate/pkg/requestcontext"
)

// Recorder receives the security events emitted on denials. The telemetry
// store satisfies it.
type Recorder interface {
	Record(ctx context.Context, event tmodels.SecurityEvent)
}

type Middleware struct {
	service  *service.Service
	checker  *auth.CredentialChecker
	recorder Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Middleware) { m.metrics = mx }
}

func WithRecorder(r Recorder) Option {
	return func(m *Middleware) { m.recorder = r }
}

// WithCredentialChecker enables the service credential bypass. Requests
// carrying a valid X-Service-Credential header skip admission entirely.
func WithCredentialChecker(c *auth.CredentialChecker) Option {
	return func(m *Middleware) { m.checker = c }
}

func New(svc *service.Service, opts ...Option) *Middleware {
	m := &Middleware{service: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RateLimit admits or rejects requests against one policy. The budget
// headers are set on every response, allowed or not, so clients can pace
// themselves before hitting the wall.
func (m *Middleware) RateLimit(policy config.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if m.checker != nil && m.checker.IsServiceCall(r) {
				if m.metrics != nil {
					m.metrics.Bypasses.Inc()
				}
				next.ServeHTTP(w, r)
				return
			}

			identity := fingerprint.Anonymous
			authenticated := false
			if id := auth.GetIdentity(ctx); id != nil {
				identity = id.UserID
				authenticated = true
			}
			fp := fingerprint.Build(requestcontext.ClientIP(ctx), identity)

			res, err := m.service.Check(ctx, fp, policy, authenticated)
			if err != nil {
				// Fail open: a broken counter must not reject traffic.
				m.logger.ErrorContext(ctx, "admission check failed, allowing request",
					slog.String("policy", policy.Name),
					slog.String("error", err.Error()))
				if m.metrics != nil {
					m.metrics.StoreFailures.Inc()
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if res.Allowed {
				if m.metrics != nil {
					m.metrics.Checks.WithLabelValues(policy.Name, "allowed").Inc()
				}
				next.ServeHTTP(w, r)
				return
			}

			if m.metrics != nil {
				m.metrics.Checks.WithLabelValues(policy.Name, "denied").Inc()
			}
			m.logger.WarnContext(ctx, "rate limit exceeded",
				slog.String("policy", policy.Name),
				slog.String("path", r.URL.Path),
				slog.Int("limit", res.Limit),
				slog.Int("used", res.Used))

			if m.recorder != nil {
				m.recorder.Record(ctx, tmodels.NewRateLimitExceeded(requestInfo(r), policy.Name, res.Limit))
			}

			w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
			resp := httputil.NewErrorResponse(dErrors.CodeAdmissionDenied, "rate limit exceeded, please try again later")
			resp.RateLimit = &httputil.RateLimitInfo{
				Limit:     res.Limit,
				Current:   res.Used,
				Remaining: res.Remaining,
				ResetTime: res.ResetAt,
			}
			httputil.WriteJSON(w, http.StatusTooManyRequests, resp)
		})
	}
}

func requestInfo(r *http.Request) tmodels.RequestInfo {
	ctx := r.Context()
	info := tmodels.RequestInfo{
		RequestID:  requestcontext.RequestID(ctx),
		IP:         requestcontext.ClientIP(ctx),
		UserAgent:  r.UserAgent(),
		Path:       r.URL.Path,
		Method:     r.Method,
		StatusCode: http.StatusTooManyRequests,
	}
	if id := auth.GetIdentity(ctx); id != nil {
		info.UserID = id.UserID
		info.Email = id.Email
	}
	return info
}

// GlobalThrottle caps the gateway's total request rate regardless of
// caller. It sheds load with a 503 before per-policy accounting runs.
func GlobalThrottle(rps float64, burst int, mx *metrics.Metrics) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rps <= 0 || limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}
			if mx != nil {
				mx.Throttled.Inc()
			}
			w.Header().Set("Retry-After", "1")
			httputil.WriteJSON(w, http.StatusServiceUnavailable,
				httputil.NewErrorResponse(dErrors.CodeInternal, "server is busy, please retry"))
		})
	}
}
