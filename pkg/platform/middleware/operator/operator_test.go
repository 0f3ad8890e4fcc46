package operator

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireToken(t *testing.T) {
	logger := slog.Default()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("matching token passes", func(t *testing.T) {
		handler := RequireToken("ops-secret", logger)(next)
		req := httptest.NewRequest(http.MethodGet, "/ops/security/metrics", nil)
		req.Header.Set(TokenHeader, "ops-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		handler := RequireToken("ops-secret", logger)(next)
		req := httptest.NewRequest(http.MethodGet, "/ops/security/metrics", nil)
		req.Header.Set(TokenHeader, "guess")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "unauthorized")
	})

	t.Run("missing token rejected", func(t *testing.T) {
		handler := RequireToken("ops-secret", logger)(next)
		req := httptest.NewRequest(http.MethodGet, "/ops/security/metrics", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("empty expected token matches nothing", func(t *testing.T) {
		handler := RequireToken("", logger)(next)
		req := httptest.NewRequest(http.MethodGet, "/ops/security/metrics", nil)
		req.Header.Set(TokenHeader, "")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
