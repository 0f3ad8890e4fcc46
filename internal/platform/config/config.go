package config

import (
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "edgegate/pkg/platform/strings"
)

// Environment names. Production suppresses diagnostic detail in synthesized
// proxy failure responses.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Policy holds the admission window for one traffic class.
type Policy struct {
	Name             string
	Window           time.Duration
	Max              int
	AuthenticatedMax int // 0 means same ceiling for authenticated callers
}

// Route maps an inbound path prefix (relative to the API prefix) to a
// backend path prefix.
type Route struct {
	Prefix string
	Target string
}

// Backend describes the upstream API the proxy forwards to.
type Backend struct {
	BaseURL      string
	APIPrefix    string
	Timeout      time.Duration
	MaxBodyBytes int64
	Routes       []Route
}

// Telemetry bounds the in-memory security event store.
type Telemetry struct {
	Capacity      int
	HighRiskScore int
}

// Throttle is the process-wide admission gate ahead of per-caller windows.
type Throttle struct {
	RPS   float64
	Burst int
}

// Server is the full gateway configuration, supplied by the environment.
type Server struct {
	Addr        string
	Environment string

	JWTSigningKey         string
	ServiceCredentialHash string // bcrypt hash of the secret accepted for admission bypass
	BackendCredential     string // plaintext secret injected toward the backend
	OperatorToken         string // guards /ops/security; empty leaves it open (development only)

	TrustedProxies []netip.Prefix

	Policies  map[string]Policy
	Backend   Backend
	Telemetry Telemetry
	Throttle  Throttle

	RedisURL         string
	SweepInterval    time.Duration
	WindowMaxEntries int
	SanitizeMaxLen   int
}

// IsProduction reports whether diagnostic detail must be suppressed.
func (s Server) IsProduction() bool {
	return s.Environment == EnvProduction
}

// Policy names used by the pipeline to pick an admission window per route class.
const (
	PolicyGeneral   = "general"
	PolicyAuth      = "auth"
	PolicySensitive = "sensitive"
	PolicyAPI       = "api"
	PolicyUpload    = "upload"
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:        envStr("GATEWAY_ADDR", ":8080"),
		Environment: envStr("GATEWAY_ENV", EnvDevelopment),

		JWTSigningKey:         envStr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ServiceCredentialHash: os.Getenv("SERVICE_CREDENTIAL_HASH"),
		BackendCredential:     envStr("BACKEND_CREDENTIAL", "dev-service-credential"),
		OperatorToken:         os.Getenv("OPS_TOKEN"),

		TrustedProxies: parsePrefixes(os.Getenv("TRUSTED_PROXIES")),

		Policies: map[string]Policy{
			PolicyGeneral: {
				Name:             PolicyGeneral,
				Window:           envDuration("RATE_GENERAL_WINDOW", time.Minute),
				Max:              envInt("RATE_GENERAL_MAX", 100),
				AuthenticatedMax: envInt("RATE_GENERAL_AUTH_MAX", 300),
			},
			PolicyAuth: {
				Name:   PolicyAuth,
				Window: envDuration("RATE_AUTH_WINDOW", time.Minute),
				Max:    envInt("RATE_AUTH_MAX", 10),
			},
			PolicySensitive: {
				Name:   PolicySensitive,
				Window: envDuration("RATE_SENSITIVE_WINDOW", time.Minute),
				Max:    envInt("RATE_SENSITIVE_MAX", 30),
			},
			PolicyAPI: {
				Name:             PolicyAPI,
				Window:           envDuration("RATE_API_WINDOW", time.Minute),
				Max:              envInt("RATE_API_MAX", 60),
				AuthenticatedMax: envInt("RATE_API_AUTH_MAX", 120),
			},
			PolicyUpload: {
				Name:   PolicyUpload,
				Window: envDuration("RATE_UPLOAD_WINDOW", time.Hour),
				Max:    envInt("RATE_UPLOAD_MAX", 20),
			},
		},

		Backend: Backend{
			BaseURL:      envStr("BACKEND_BASE_URL", "http://localhost:3000"),
			APIPrefix:    envStr("GATEWAY_API_PREFIX", "/api/postiz"),
			Timeout:      envDuration("BACKEND_TIMEOUT", 30*time.Second),
			MaxBodyBytes: envInt64("BACKEND_MAX_BODY_BYTES", 100<<20),
			Routes:       parseRoutes(os.Getenv("ROUTE_REWRITES")),
		},

		Telemetry: Telemetry{
			Capacity:      envInt("TELEMETRY_CAPACITY", 10000),
			HighRiskScore: envInt("TELEMETRY_HIGH_RISK_SCORE", 70),
		},

		Throttle: Throttle{
			RPS:   envFloat("THROTTLE_RPS", 2000),
			Burst: envInt("THROTTLE_BURST", 500),
		},

		RedisURL:         os.Getenv("REDIS_URL"),
		SweepInterval:    envDuration("WINDOW_SWEEP_INTERVAL", 5*time.Minute),
		WindowMaxEntries: envInt("WINDOW_MAX_ENTRIES", 100000),
		SanitizeMaxLen:   envInt("SANITIZE_MAX_STRING_LEN", 10000),
	}
}

// parseRoutes reads "prefix=target" pairs separated by commas, e.g.
// "/uploads=media/uploads,/auth=auth/v2". Order in the variable does not
// matter; the proxy sorts by prefix specificity.
func parseRoutes(raw string) []Route {
	if raw == "" {
		return nil
	}
	var routes []Route
	for _, pair := range pstrings.DedupeAndTrim(strings.Split(raw, ",")) {
		prefix, target, ok := strings.Cut(pair, "=")
		if !ok || prefix == "" {
			continue
		}
		routes = append(routes, Route{Prefix: prefix, Target: target})
	}
	return routes
}

func parsePrefixes(raw string) []netip.Prefix {
	if raw == "" {
		return nil
	}
	var prefixes []netip.Prefix
	for _, part := range pstrings.DedupeAndTrim(strings.Split(raw, ",")) {
		if p, err := netip.ParsePrefix(part); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
