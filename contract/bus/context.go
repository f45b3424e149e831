package bus

import "context"

// HeaderPropagator injects the caller's trace context into outbound message headers.
// The relay and broker adapters depend on this instead of a tracing library;
// internal/telemetry provides the OpenTelemetry implementation.
// Implementations must be safe for concurrent use.
type HeaderPropagator interface {
	Inject(ctx context.Context, headers map[string]string)
}

// NopHeaderPropagator leaves headers untouched. Used when tracing is disabled.
type NopHeaderPropagator struct{}

func (NopHeaderPropagator) Inject(context.Context, map[string]string) {}
