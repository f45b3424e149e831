package servicebus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	cbus "github.com/next-trace/scg-cqrs/contract/bus"
	berr "github.com/next-trace/scg-cqrs/contract/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// QueryHandlerFunc is the untyped form every query handler is stored as.
type QueryHandlerFunc func(ctx context.Context, q any) (any, error)

// QueryRegistration pairs a query tag with its single handler.
type QueryRegistration struct {
	Tag     reflect.Type
	Handler QueryHandlerFunc
}

// QueryOf builds the registration of a typed handler for query type Q.
func QueryOf[Q cbus.Query, R any](h cbus.QueryHandler[Q, R]) QueryRegistration {
	return QueryFunc(h.Handle)
}

// QueryFunc builds the registration of a handler function for query type Q.
func QueryFunc[Q cbus.Query, R any](fn func(ctx context.Context, q Q) (R, error)) QueryRegistration {
	return QueryRegistration{
		Tag: reflect.TypeFor[Q](),
		Handler: func(ctx context.Context, v any) (any, error) {
			q, ok := v.(Q)
			if !ok {
				return nil, fmt.Errorf("ask %s: %w", tagName(TagOf(v)), berr.ErrHandlerTypeMismatch)
			}

			return fn(ctx, q)
		},
	}
}

// QueryBus serves synchronous reads; one handler per query type.
type QueryBus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]QueryHandlerFunc

	logger *slog.Logger
	tracer trace.Tracer
}

// NewQueryBus constructs an empty QueryBus.
func NewQueryBus(opts ...Option) *QueryBus {
	o := newOptions(opts)

	return &QueryBus{
		handlers: make(map[reflect.Type]QueryHandlerFunc),
		logger:   o.logger,
		tracer:   o.tracer,
	}
}

// Register adds handlers, rejecting duplicates and interface tags like CommandBus.Register.
func (b *QueryBus) Register(regs ...QueryRegistration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(regs); err != nil {
		return err
	}

	for _, r := range regs {
		b.handlers[r.Tag] = r.Handler
	}

	return nil
}

func (b *QueryBus) validate(regs []QueryRegistration) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.check(regs)
}

func (b *QueryBus) check(regs []QueryRegistration) error {
	seen := make(map[reflect.Type]struct{}, len(regs))

	for _, r := range regs {
		if r.Handler == nil {
			return fmt.Errorf("register query %s: %w", tagName(r.Tag), berr.ErrHandlerNotFound)
		}

		if err := checkTag("query", r.Tag); err != nil {
			return err
		}

		_, exists := b.handlers[r.Tag]
		_, twice := seen[r.Tag]

		if exists || twice {
			return fmt.Errorf("register query %s: %w", tagName(r.Tag), berr.ErrDuplicateHandler)
		}

		seen[r.Tag] = struct{}{}
	}

	return nil
}

// BindQuery registers a handler for query type Q producing R. Duplicate bindings are rejected.
func BindQuery[Q cbus.Query, R any](b *QueryBus, h cbus.QueryHandler[Q, R]) error {
	return b.Register(QueryOf[Q, R](h))
}

// BindQueryFunc registers a handler function for query type Q.
func BindQueryFunc[Q cbus.Query, R any](b *QueryBus, fn func(ctx context.Context, q Q) (R, error)) error {
	return b.Register(QueryFunc(fn))
}

// Ask executes a query handler synchronously and returns an untyped result.
func (b *QueryBus) Ask(ctx context.Context, q cbus.Query) (any, error) {
	tag := TagOf(q)
	name := tagName(tag)

	b.mu.RLock()
	f, ok := b.handlers[tag]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("ask %s: %w", name, berr.ErrHandlerNotFound)
	}

	ctx, span := b.tracer.Start(ctx, "ask "+name, trace.WithAttributes(attribute.String("cqrs.query", name)))
	defer span.End()

	b.logger.DebugContext(ctx, "ask query", "query", name)

	return f(ctx, q)
}

// AskAs executes a query and returns a result of type R.
func AskAs[Q cbus.Query, R any](ctx context.Context, b *QueryBus, q Q) (R, error) {
	var zero R

	res, err := b.Ask(ctx, q)
	if err != nil {
		return zero, err
	}

	r, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("ask %s: %w", tagName(TagOf(q)), berr.ErrHandlerTypeMismatch)
	}

	return r, nil
}
