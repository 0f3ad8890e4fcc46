package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"edgegate/internal/proxy/tracer"
	tmodels "edgegate/internal/telemetry/models"
	dErrors "edgegate/pkg/domain-errors"
	"edgegate/pkg/platform/circuit"
	"edgegate/pkg/platform/httputil"
	"edgegate/pkg/platform/middleware/auth"
	"edgegate/pkg/requestcontext"
)

// Headers never forwarded toward the backend. Cookie stays at the edge,
// Host belongs to the backend URL, and Content-Length would be wrong after
// body rewrapping.
var inboundScrub = []string{"Cookie", "Host", "Content-Length"}

// Headers never relayed back to the client. The gateway terminates these
// hop properties itself.
var responseScrub = []string{"Content-Encoding", "Connection", "Transfer-Encoding"}

const forwardedUserHeader = "X-Forwarded-User"

// Recorder receives the security events emitted on failed forwards.
type Recorder interface {
	Record(ctx context.Context, event tmodels.SecurityEvent)
}

// Forwarder relays admitted requests to the backend. The backend call is
// the only blocking operation in the pipeline; it runs under its own
// timeout and is cancelled when the client disconnects.
type Forwarder struct {
	client     *http.Client
	translator *Translator
	baseURL    string
	credential string
	maxBody    int64
	timeout    time.Duration
	production bool
	logger     *slog.Logger
	recorder   Recorder
	metrics    *Metrics
	tracer     tracer.Tracer
	breaker    *circuit.Breaker
}

type ForwarderOption func(*Forwarder)

func WithLogger(logger *slog.Logger) ForwarderOption {
	return func(f *Forwarder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func WithRecorder(r Recorder) ForwarderOption {
	return func(f *Forwarder) { f.recorder = r }
}

func WithMetrics(m *Metrics) ForwarderOption {
	return func(f *Forwarder) { f.metrics = m }
}

func WithTracer(t tracer.Tracer) ForwarderOption {
	return func(f *Forwarder) {
		if t != nil {
			f.tracer = t
		}
	}
}

func WithHTTPClient(c *http.Client) ForwarderOption {
	return func(f *Forwarder) {
		if c != nil {
			f.client = c
		}
	}
}

// WithProduction suppresses diagnostic detail in synthesized error bodies.
func WithProduction(production bool) ForwarderOption {
	return func(f *Forwarder) { f.production = production }
}

// WithBreaker short-circuits forwards while the backend is known dead,
// instead of letting every request wait out the timeout.
func WithBreaker(b *circuit.Breaker) ForwarderOption {
	return func(f *Forwarder) { f.breaker = b }
}

func NewForwarder(translator *Translator, baseURL, credential string, timeout time.Duration, maxBody int64, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		translator: translator,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		credential: credential,
		maxBody:    maxBody,
		timeout:    timeout,
		logger:     slog.Default(),
		tracer:     tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: timeout}
	}
	return f
}

// ServeHTTP forwards one request. Three failure cases stay disjoint: a
// backend error status is relayed verbatim, no response at all becomes a
// 504, and a local dispatch fault becomes a 500.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	backendPath, err := f.translator.Translate(r.URL.Path)
	if err != nil {
		if f.metrics != nil {
			f.metrics.InvalidPaths.Inc()
		}
		f.record(r, tmodels.NewSuspiciousActivity(
			f.requestInfo(r, http.StatusBadRequest), "request path outside the gateway API prefix"))
		httputil.WriteError(w, err)
		return
	}

	if f.breaker != nil && !f.breaker.Allow() {
		if f.metrics != nil {
			f.metrics.Forwards.WithLabelValues("circuit_open").Inc()
		}
		f.record(r, tmodels.NewSuspiciousActivity(
			f.requestInfo(r, http.StatusGatewayTimeout), "backend circuit open"))
		httputil.WriteJSON(w, http.StatusGatewayTimeout,
			httputil.NewErrorResponse(dErrors.CodeGatewayTimeout, "backend is unavailable"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), f.timeout)
	defer cancel()

	ctx, span := f.tracer.Start(ctx, tracer.SpanForward,
		tracer.String(tracer.AttrMethod, r.Method),
		tracer.String(tracer.AttrBackendPath, backendPath))

	start := time.Now()
	resp, err := f.dispatch(ctx, r, backendPath)
	duration := time.Since(start)
	span.SetAttributes(tracer.Duration(tracer.AttrDurationMs, duration))

	if f.metrics != nil {
		f.metrics.ForwardDuration.Observe(duration.Seconds())
	}

	if err != nil {
		span.End(err)
		if f.breaker != nil && dErrors.HasCode(err, dErrors.CodeGatewayTimeout) {
			if f.breaker.RecordFailure() {
				f.logger.Error("backend circuit opened", slog.String("path", r.URL.Path))
			}
		}
		f.fail(w, r, err)
		return
	}
	defer resp.Body.Close()

	if f.breaker != nil {
		f.breaker.RecordSuccess()
	}

	span.SetAttributes(tracer.Int(tracer.AttrStatusCode, resp.StatusCode))
	span.End(nil)

	if resp.StatusCode >= 400 {
		if f.metrics != nil {
			f.metrics.Forwards.WithLabelValues("backend_error").Inc()
		}
		f.record(r, tmodels.NewSuspiciousActivity(
			f.requestInfo(r, resp.StatusCode),
			fmt.Sprintf("backend responded %d", resp.StatusCode)))
	} else if f.metrics != nil {
		f.metrics.Forwards.WithLabelValues("relayed").Inc()
	}

	f.relay(w, resp)
}

// dispatch builds and executes the outbound call. Errors from request
// construction are wrapped as proxy_error; transport errors, including
// timeouts, as gateway_timeout. The two must never be conflated.
func (f *Forwarder) dispatch(ctx context.Context, r *http.Request, backendPath string) (*http.Response, error) {
	target := f.baseURL + "/" + backendPath
	if raw := r.URL.RawQuery; raw != "" {
		target += "?" + raw
	}

	if r.ContentLength > f.maxBody {
		return nil, dErrors.New(dErrors.CodePayloadTooLarge, "request body exceeds the forwarding limit")
	}
	var body io.Reader
	if r.Method != http.MethodGet && r.Body != nil {
		// MaxBytesReader errors past the cap instead of truncating, so a
		// chunked body without a declared length cannot be forwarded mangled.
		body = http.MaxBytesReader(nil, r.Body, f.maxBody)
	}

	out, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProxyError, "building backend request failed")
	}

	for key, values := range r.Header {
		if scrubbed(key, inboundScrub) {
			continue
		}
		for _, v := range values {
			out.Header.Add(key, v)
		}
	}
	out.Header.Set(auth.ServiceCredentialHeader, f.credential)
	if id := auth.GetIdentity(r.Context()); id != nil {
		out.Header.Set(forwardedUserHeader, id.UserID)
	}

	resp, err := f.client.Do(out)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, dErrors.Wrap(err, dErrors.CodePayloadTooLarge, "request body exceeds the forwarding limit")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeGatewayTimeout, "backend did not respond")
	}
	return resp, nil
}

// fail synthesizes the gateway response for a forward that produced no
// backend response, and records exactly one telemetry event for it.
func (f *Forwarder) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeProxyError
	status := http.StatusInternalServerError
	message := "request could not be forwarded"
	outcome := "dispatch_error"
	switch {
	case dErrors.HasCode(err, dErrors.CodeGatewayTimeout):
		code = dErrors.CodeGatewayTimeout
		status = http.StatusGatewayTimeout
		message = "backend did not respond in time"
		outcome = "timeout"
	case dErrors.HasCode(err, dErrors.CodePayloadTooLarge):
		code = dErrors.CodePayloadTooLarge
		status = http.StatusRequestEntityTooLarge
		message = "request body too large"
		outcome = "body_too_large"
	}
	if f.metrics != nil {
		f.metrics.Forwards.WithLabelValues(outcome).Inc()
	}

	f.logger.ErrorContext(r.Context(), "forward failed",
		slog.String("path", r.URL.Path),
		slog.String("outcome", outcome),
		slog.String("error", err.Error()))

	f.record(r, tmodels.NewSuspiciousActivity(f.requestInfo(r, status), "backend "+outcome))

	resp := httputil.NewErrorResponse(code, message)
	if !f.production {
		resp.Detail = err.Error()
	}
	httputil.WriteJSON(w, status, resp)
}

// relay copies the backend response to the client byte for byte, minus the
// hop headers the gateway terminates itself.
func (f *Forwarder) relay(w http.ResponseWriter, resp *http.Response) {
	for key, values := range resp.Header {
		if scrubbed(key, responseScrub) {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, io.LimitReader(resp.Body, f.maxBody)); err != nil &&
		!errors.Is(err, context.Canceled) {
		f.logger.Warn("relaying backend body failed", "error", err)
	}
}

func (f *Forwarder) record(r *http.Request, event tmodels.SecurityEvent) {
	if f.recorder == nil {
		return
	}
	f.recorder.Record(r.Context(), event)
}

func (f *Forwarder) requestInfo(r *http.Request, status int) tmodels.RequestInfo {
	ctx := r.Context()
	info := tmodels.RequestInfo{
		RequestID:  requestcontext.RequestID(ctx),
		IP:         requestcontext.ClientIP(ctx),
		UserAgent:  r.UserAgent(),
		Path:       r.URL.Path,
		Method:     r.Method,
		StatusCode: status,
	}
	if id := auth.GetIdentity(ctx); id != nil {
		info.UserID = id.UserID
		info.Email = id.Email
	}
	return info
}

func scrubbed(key string, list []string) bool {
	for _, h := range list {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}
