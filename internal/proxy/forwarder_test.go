package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgegate/internal/platform/config"
	tmodels "edgegate/internal/telemetry/models"
	"edgegate/pkg/platform/circuit"
	"edgegate/pkg/platform/httputil"
	"edgegate/pkg/platform/middleware/auth"
)

type eventSink struct {
	mu     sync.Mutex
	events []tmodels.SecurityEvent
}

func (s *eventSink) Record(_ context.Context, event tmodels.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *eventSink) all() []tmodels.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tmodels.SecurityEvent(nil), s.events...)
}

func newForwarder(t *testing.T, backendURL string, sink *eventSink, opts ...ForwarderOption) *Forwarder {
	t.Helper()
	tr := NewTranslator("/api/postiz", []config.Route{{Prefix: "posts/tags", Target: "tags"}})
	base := []ForwarderOption{WithRecorder(sink)}
	return NewForwarder(tr, backendURL, "svc-secret", 2*time.Second, 1<<20, append(base, opts...)...)
}

func TestForwardRelaysBackendResponse(t *testing.T) {
	var got *http.Request
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("X-Backend", "yes")
		w.Header().Set("Content-Encoding", "identity")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer backend.Close()

	sink := &eventSink{}
	f := newForwarder(t, backend.URL, sink)

	req := httptest.NewRequest(http.MethodPost, "/api/postiz/posts?draft=true", strings.NewReader(`{"title":"x"}`))
	req.Header.Set("Cookie", "session=abc")
	req.Header.Set("X-Custom", "kept")
	req.Header.Set("Content-Length", "13")
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":1}`, rec.Body.String())
	assert.Equal(t, "yes", rec.Header().Get("X-Backend"))
	assert.Empty(t, rec.Header().Get("Content-Encoding"), "hop header relayed")

	require.NotNil(t, got)
	assert.Equal(t, "/posts", got.URL.Path)
	assert.Equal(t, "draft=true", got.URL.RawQuery)
	assert.Equal(t, "svc-secret", got.Header.Get(auth.ServiceCredentialHeader))
	assert.Equal(t, "kept", got.Header.Get("X-Custom"))
	assert.Empty(t, got.Header.Get("Cookie"), "cookie forwarded to backend")

	assert.Empty(t, sink.all(), "success must not produce telemetry")
}

func TestForwardTranslatesWithRules(t *testing.T) {
	var gotPath, gotQuery string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
	}))
	defer backend.Close()

	f := newForwarder(t, backend.URL, &eventSink{})
	req := httptest.NewRequest(http.MethodGet, "/api/postiz/posts/tags?x=1", nil)
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/tags", gotPath)
	assert.Equal(t, "x=1", gotQuery)
}

func TestForwardOmitsBodyForGET(t *testing.T) {
	var bodyLen int
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodyLen = len(b)
	}))
	defer backend.Close()

	f := newForwarder(t, backend.URL, &eventSink{})
	req := httptest.NewRequest(http.MethodGet, "/api/postiz/posts", strings.NewReader("should be dropped"))
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, bodyLen)
}

func TestForwardInjectsIdentityHeader(t *testing.T) {
	var forwardedUser string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwardedUser = r.Header.Get("X-Forwarded-User")
	}))
	defer backend.Close()

	f := newForwarder(t, backend.URL, &eventSink{})
	req := httptest.NewRequest(http.MethodGet, "/api/postiz/posts", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UserID: "user-7"}))
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	assert.Equal(t, "user-7", forwardedUser)
}

func TestForwardRelaysBackendErrorVerbatim(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"backend":"said no"}`))
	}))
	defer backend.Close()

	sink := &eventSink{}
	f := newForwarder(t, backend.URL, sink)
	req := httptest.NewRequest(http.MethodGet, "/api/postiz/posts", nil)
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"backend":"said no"}`, rec.Body.String())

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, tmodels.EventSuspiciousActivity, events[0].Type)
	assert.Equal(t, http.StatusUnprocessableEntity, events[0].StatusCode)
}

func TestForwardTimeoutBecomes504(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer backend.Close()

	sink := &eventSink{}
	tr := NewTranslator("/api/postiz", nil)
	f := NewForwarder(tr, backend.URL, "svc-secret", 50*time.Millisecond, 1<<20, WithRecorder(sink))

	req := httptest.NewRequest(http.MethodGet, "/api/postiz/posts", nil)
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "gateway_timeout", resp.Error)

	events := sink.all()
	require.Len(t, events, 1, "exactly one event per failed forward")
	assert.Equal(t, tmodels.EventSuspiciousActivity, events[0].Type)
}

func TestForwardConnectionFailureBecomes504(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close() // nothing listening anymore

	sink := &eventSink{}
	f := newForwarder(t, backend.URL, sink)
	req := httptest.NewRequest(http.MethodGet, "/api/postiz/posts", nil)
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Len(t, sink.all(), 1)
}

func TestForwardDispatchFaultBecomes500(t *testing.T) {
	sink := &eventSink{}
	f := newForwarder(t, "http://bad host", sink) // unparseable target URL

	req := httptest.NewRequest(http.MethodGet, "/api/postiz/posts", nil)
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "proxy_error", resp.Error)
	assert.NotEmpty(t, resp.Detail, "development mode keeps the diagnostic")
	assert.Len(t, sink.all(), 1)
}

func TestForwardRejectsOversizedBody(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	sink := &eventSink{}
	tr := NewTranslator("/api/postiz", nil)
	f := NewForwarder(tr, backend.URL, "svc-secret", 2*time.Second, 32, WithRecorder(sink))

	req := httptest.NewRequest(http.MethodPost, "/api/postiz/upload",
		strings.NewReader(strings.Repeat("x", 128)))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "payload_too_large", resp.Error)
	assert.Zero(t, hits.Load(), "oversized body must not reach the backend")
	assert.Len(t, sink.all(), 1)
}

func TestForwardSuppressesDetailInProduction(t *testing.T) {
	f := newForwarder(t, "http://bad host", &eventSink{}, WithProduction(true))

	req := httptest.NewRequest(http.MethodGet, "/api/postiz/posts", nil)
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Detail)
}

func TestForwardRejectsForeignPath(t *testing.T) {
	sink := &eventSink{}
	f := newForwarder(t, "http://unused.invalid", sink)

	req := httptest.NewRequest(http.MethodGet, "/not-the-api/posts", nil)
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_proxy_path", resp.Error)
	assert.Len(t, sink.all(), 1)
}

func TestForwardCircuitOpensAndShedsLoad(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close()

	sink := &eventSink{}
	f := newForwarder(t, backend.URL, sink,
		WithBreaker(circuit.New(circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))))

	for n0 := 0; n0 < 2; n0++ {
		rec := httptest.NewRecorder()
		f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/postiz/posts", nil))
		require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	}

	// The circuit is open now; no dial is attempted.
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/postiz/posts", nil))
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "gateway_timeout", resp.Error)
	assert.Equal(t, "backend is unavailable", resp.Message)
	assert.Len(t, sink.all(), 3, "every rejected forward is on the audit trail")
}
