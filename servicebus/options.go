package servicebus

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/next-trace/scg-cqrs/servicebus"

// Option configures a bus. Options that do not apply to a bus are ignored by it.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	cmdMW    []CommandMiddleware
	commands *CommandBus
}

func newOptions(opts []Option) options {
	o := options{}
	for _, f := range opts {
		f(&o)
	}

	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}

	return o
}

// WithLogger sets the logger. Nil keeps the discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracerProvider sets the provider spans are created from. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithCommandMiddleware registers global command middleware, executed in registration order.
func WithCommandMiddleware(mw ...CommandMiddleware) Option {
	return func(o *options) { o.cmdMW = append(o.cmdMW, mw...) }
}

// WithCommandBus gives an EventBus the CommandBus its sagas dispatch to.
func WithCommandBus(cb *CommandBus) Option {
	return func(o *options) { o.commands = cb }
}
