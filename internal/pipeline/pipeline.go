// Package pipeline composes the gateway stages into a single handler:
// admission by path class, threat screening, sanitization, telemetry, and
// the forwarded backend call. Every rejection is written as the standard
// JSON envelope; nothing leaks to the transport layer unhandled.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	admissionmw "edgegate/internal/admission/middleware"
	"edgegate/internal/platform/config"
	tmodels "edgegate/internal/telemetry/models"
	"edgegate/internal/threat"
	dErrors "edgegate/pkg/domain-errors"
	"edgegate/pkg/platform/httputil"
	"edgegate/pkg/platform/middleware/auth"
	"edgegate/pkg/requestcontext"
)

// Recorder receives the security events emitted by the screening stage.
//
//go:generate mockgen -source=pipeline.go -destination=mocks/recorder_mock.go -package=mocks Recorder
type Recorder interface {
	Record(ctx context.Context, event tmodels.SecurityEvent)
}

// fallbackPolicy admits traffic that no path class claims.
const fallbackPolicy = "general"

type Pipeline struct {
	apiPrefix string
	policies  map[string]config.Policy
	admission *admissionmw.Middleware
	sanitizer *threat.Sanitizer
	forwarder http.Handler
	recorder  Recorder
	logger    *slog.Logger
	maxBody   int64
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithMaxBody caps how much request body the screening stage will buffer.
func WithMaxBody(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBody = n
		}
	}
}

func New(cfg config.Backend, policies map[string]config.Policy, admission *admissionmw.Middleware, sanitizer *threat.Sanitizer, forwarder http.Handler, opts ...Option) *Pipeline {
	p := &Pipeline{
		apiPrefix: strings.TrimSuffix(cfg.APIPrefix, "/"),
		policies:  policies,
		admission: admission,
		sanitizer: sanitizer,
		forwarder: forwarder,
		logger:    slog.Default(),
		maxBody:   cfg.MaxBodyBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handler builds the per-policy chains once and dispatches on path class.
// Requests flow admission → screening → forward; only the forward blocks.
func (p *Pipeline) Handler() http.Handler {
	screened := p.screen(p.forwarder)
	chains := make(map[string]http.Handler, len(p.policies))
	for name, policy := range p.policies {
		chains[name] = p.admission.RateLimit(policy)(screened)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chain, ok := chains[p.policyFor(r.URL.Path)]
		if !ok {
			chain = chains[fallbackPolicy]
		}
		if chain == nil {
			// No policies configured at all; screening still applies.
			chain = screened
		}
		chain.ServeHTTP(w, r)
	})
}

// policyFor classifies a path by its first segment after the API prefix.
// Unknown segments fall back to the general policy.
func (p *Pipeline) policyFor(path string) string {
	remainder := strings.TrimPrefix(strings.TrimPrefix(path, p.apiPrefix), "/")
	segment, _, _ := strings.Cut(remainder, "/")
	switch segment {
	case "auth", "login", "register":
		return "auth"
	case "upload", "media":
		return "upload"
	case "settings", "users", "billing":
		return "sensitive"
	case "":
		return fallbackPolicy
	default:
		return "api"
	}
}

// screen runs threat detection over query, path, and body, then sanitizes
// the body before handing it to the forwarder. Detection blocks with 400;
// sanitization never blocks.
func (p *Pipeline) screen(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m := threat.DetectString("path", r.URL.Path); m != nil {
			p.reject(w, r, m)
			return
		}
		for key, values := range r.URL.Query() {
			for _, v := range values {
				if m := threat.DetectString("query."+key, v); m != nil {
					p.reject(w, r, m)
					return
				}
			}
		}

		if !hasJSONBody(r) {
			next.ServeHTTP(w, r)
			return
		}

		// Read one byte past the cap so an oversized body is detected and
		// rejected instead of silently truncated at the boundary.
		raw, err := io.ReadAll(io.LimitReader(r.Body, p.maxBody+1))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodePayloadTooLarge, "request body too large"))
				return
			}
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "reading request body failed"))
			return
		}
		_ = r.Body.Close()
		if int64(len(raw)) > p.maxBody {
			httputil.WriteError(w, dErrors.New(dErrors.CodePayloadTooLarge, "request body too large"))
			return
		}

		var payload any
		if len(raw) == 0 || json.Unmarshal(raw, &payload) != nil {
			// Not decodable; forward untouched and let the backend answer.
			r.Body = io.NopCloser(bytes.NewReader(raw))
			r.ContentLength = int64(len(raw))
			next.ServeHTTP(w, r)
			return
		}

		if m := threat.Detect(payload); m != nil {
			p.reject(w, r, m)
			return
		}

		cleaned, err := json.Marshal(p.sanitizer.Sanitize(payload))
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "re-encoding request body failed"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(cleaned))
		r.ContentLength = int64(len(cleaned))
		r.Header.Set("Content-Length", strconv.Itoa(len(cleaned)))
		next.ServeHTTP(w, r)
	})
}

// reject blocks the request with 400. The offending value goes only to
// telemetry, never back to the client.
func (p *Pipeline) reject(w http.ResponseWriter, r *http.Request, m *threat.Match) {
	ctx := r.Context()
	p.logger.WarnContext(ctx, "malicious input blocked",
		slog.String("field", m.Field),
		slog.String("category", m.Category),
		slog.String("path", r.URL.Path))

	if p.recorder != nil {
		info := tmodels.RequestInfo{
			RequestID:  requestcontext.RequestID(ctx),
			IP:         requestcontext.ClientIP(ctx),
			UserAgent:  r.UserAgent(),
			Path:       r.URL.Path,
			Method:     r.Method,
			StatusCode: http.StatusBadRequest,
		}
		if id := auth.GetIdentity(ctx); id != nil {
			info.UserID = id.UserID
			info.Email = id.Email
		}
		p.recorder.Record(ctx, tmodels.NewMaliciousInput(info, m.Field, m.Category, m.Pattern, m.Value))
	}

	httputil.WriteJSON(w, http.StatusBadRequest,
		httputil.NewErrorResponse(dErrors.CodeMaliciousInput, "request contains disallowed content"))
}

func hasJSONBody(r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Body == nil {
		return false
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
