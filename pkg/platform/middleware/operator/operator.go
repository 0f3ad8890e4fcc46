// Package operator guards the operator-only surfaces (security telemetry
// queries) behind a shared token.
package operator

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "edgegate/pkg/domain-errors"
	"edgegate/pkg/platform/httputil"
	"edgegate/pkg/requestcontext"
)

// TokenHeader carries the operator token on telemetry query requests.
const TokenHeader = "X-Operator-Token"

// RequireToken rejects requests whose token does not match. Comparison is
// constant time. An empty expected token must be handled by the caller;
// this middleware treats it as "nothing matches".
func RequireToken(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(TokenHeader)
			if expected == "" ||
				subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "operator token mismatch",
					slog.String("request_id", requestcontext.RequestID(ctx)),
					slog.String("path", r.URL.Path))
				httputil.WriteJSON(w, http.StatusUnauthorized,
					httputil.NewErrorResponse(dErrors.CodeUnauthorized, "operator token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
