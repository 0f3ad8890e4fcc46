// Package requestcontext carries per-request metadata (request ID, client IP,
// user agent) through context.Context so handlers and services can log and
// build fingerprints without reaching back into the http.Request.
package requestcontext

import "context"

type requestIDKey struct{}
type clientIPKey struct{}
type userAgentKey struct{}

// WithRequestID returns a context carrying the correlation ID for this request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the correlation ID, or "" when none was set.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithClientMetadata returns a context carrying the extracted client IP and
// User-Agent. The IP is the trusted-proxy-resolved address, not raw RemoteAddr.
func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, ip)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

// ClientIP returns the resolved client IP, or "unknown" when none was set.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// UserAgent returns the client User-Agent header value, or "".
func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(userAgentKey{}).(string); ok {
		return v
	}
	return ""
}
