// Package tracer is a thin tracing abstraction for the forwarder. It keeps
// OpenTelemetry types out of the proxy code so tests can run with a no-op.
package tracer

import (
	"context"
	"time"
)

// Span tracks one forwarded call. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

func Int(key string, value int) Attribute { return Attribute{Key: key, Value: int64(value)} }

func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span and attribute names used by the forwarder.
const (
	SpanForward = "proxy.forward"

	AttrMethod      = "http.method"
	AttrBackendPath = "backend.path"
	AttrStatusCode  = "http.status_code"
	AttrDurationMs  = "duration_ms"
)
