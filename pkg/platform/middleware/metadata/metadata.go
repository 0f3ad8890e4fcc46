// Package metadata resolves the real client address and User-Agent for each
// request and stores them in the context. X-Forwarded-For is honored only
// when the direct peer is a configured trusted proxy.
package metadata

import (
	"net/http"
	"net/netip"
	"strings"

	"edgegate/pkg/requestcontext"
)

// MaxForwardedHeaderLength caps X-Forwarded-For / X-Real-IP values to keep
// header injection out of fingerprints and logs.
const MaxForwardedHeaderLength = 500

// Middleware extracts client metadata with configurable trusted proxies.
type Middleware struct {
	trustedProxies []netip.Prefix
}

// New creates the metadata middleware. With no trusted proxies, forwarding
// headers are never honored (secure by default).
func New(trustedProxies []netip.Prefix) *Middleware {
	return &Middleware{trustedProxies: trustedProxies}
}

// Handler resolves the client IP and User-Agent and adds them to the context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := m.clientIP(r)
		ctx := requestcontext.WithClientMetadata(r.Context(), ip, r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) clientIP(r *http.Request) string {
	remoteIP := stripPort(r.RemoteAddr)
	if remoteIP == "" {
		return "unknown"
	}

	if !m.isTrustedProxy(remoteIP) {
		return remoteIP
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		if xri := r.Header.Get("X-Real-IP"); xri != "" && len(xri) <= MaxForwardedHeaderLength {
			if candidate := strings.TrimSpace(xri); validAddr(candidate) {
				return candidate
			}
		}
		return remoteIP
	}
	if len(xff) > MaxForwardedHeaderLength {
		return remoteIP
	}

	// First entry in the chain is the original client.
	candidate, _, _ := strings.Cut(xff, ",")
	candidate = strings.TrimSpace(candidate)
	if !validAddr(candidate) {
		return remoteIP
	}
	return candidate
}

func (m *Middleware) isTrustedProxy(ip string) bool {
	if len(m.trustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range m.trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func validAddr(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// stripPort extracts the IP from RemoteAddr, handling bracketed IPv6.
func stripPort(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	if strings.HasPrefix(remoteAddr, "[") {
		if idx := strings.LastIndex(remoteAddr, "]:"); idx != -1 {
			return remoteAddr[1:idx]
		}
		return strings.Trim(remoteAddr, "[]")
	}
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		return remoteAddr[:idx]
	}
	return remoteAddr
}
