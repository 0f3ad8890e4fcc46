// Package auth extracts caller identity from bearer tokens and verifies the
// pre-shared service credential. Identity is optional at the gateway: an
// absent token means an anonymous caller, a malformed token is rejected.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "edgegate/pkg/domain-errors"
	"edgegate/pkg/platform/httputil"
	"edgegate/pkg/requestcontext"
	"edgegate/pkg/secrets"
)

// ServiceCredentialHeader carries the shared secret that marks trusted
// internal callers. A valid value bypasses admission control.
const ServiceCredentialHeader = "X-Service-Credential"

// Identity describes an authenticated caller.
type Identity struct {
	UserID string
	Email  string
}

type identityKey struct{}

// GetIdentity returns the authenticated identity, or nil for anonymous callers.
func GetIdentity(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return id
	}
	return nil
}

// WithIdentity returns a context carrying the given identity. Exposed for tests.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// Claims are the token claims the gateway understands.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed bearer tokens.
type Verifier struct {
	signingKey []byte
	logger     *slog.Logger
}

func NewVerifier(signingKey string, logger *slog.Logger) *Verifier {
	return &Verifier{signingKey: []byte(signingKey), logger: logger}
}

// Parse validates a token string and returns the caller identity.
func (v *Verifier) Parse(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid bearer token")
	}
	if !token.Valid || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid bearer token")
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// OptionalIdentity parses a bearer token when present. Requests without an
// Authorization header pass through anonymously; a present but invalid token
// is rejected with 401 so broken credentials never degrade to anonymous.
func (v *Verifier) OptionalIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authorization header must use the Bearer scheme"))
			return
		}

		identity, err := v.Parse(tokenString)
		if err != nil {
			ctx := r.Context()
			v.logger.WarnContext(ctx, "rejected invalid bearer token",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// CredentialChecker verifies the inbound service credential header against
// the configured bcrypt hash.
type CredentialChecker struct {
	hash string
}

func NewCredentialChecker(hash string) *CredentialChecker {
	return &CredentialChecker{hash: hash}
}

// IsServiceCall reports whether the request presents a valid service
// credential. An unconfigured hash disables the bypass entirely.
func (c *CredentialChecker) IsServiceCall(r *http.Request) bool {
	if c == nil || c.hash == "" {
		return false
	}
	presented := r.Header.Get(ServiceCredentialHeader)
	if presented == "" {
		return false
	}
	return secrets.Verify(presented, c.hash) == nil
}
