package servicebus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	cbus "github.com/next-trace/scg-cqrs/contract/bus"
	berr "github.com/next-trace/scg-cqrs/contract/errors"
	"github.com/next-trace/scg-cqrs/stream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CommandHandlerFunc is the untyped form every command handler is stored as.
type CommandHandlerFunc func(ctx context.Context, cmd any, resolve cbus.Resolve) error

// CommandMiddleware wraps command handler execution. Middlewares are executed in registration order.
type CommandMiddleware func(next CommandHandlerFunc) CommandHandlerFunc

// CommandRegistration pairs a command tag with its single handler.
type CommandRegistration struct {
	Tag     reflect.Type
	Handler CommandHandlerFunc
}

// CommandOf builds the registration of a typed handler for command type C.
func CommandOf[C cbus.Command](h cbus.CommandHandler[C]) CommandRegistration {
	return CommandFunc(h.Handle)
}

// CommandFunc builds the registration of a handler function for command type C.
func CommandFunc[C cbus.Command](fn func(ctx context.Context, c C, resolve cbus.Resolve) error) CommandRegistration {
	t := reflect.TypeFor[C]()

	return CommandRegistration{
		Tag: t,
		Handler: func(ctx context.Context, v any, resolve cbus.Resolve) error {
			c, ok := v.(C)
			if !ok {
				return fmt.Errorf("execute %s: %w", tagName(TagOf(v)), berr.ErrHandlerTypeMismatch)
			}

			return fn(ctx, c, resolve)
		},
	}
}

// CommandBus routes each command to exactly one handler.
//
// Every executed command is also re-published on the bus stream for passive
// observers, after the handler lookup succeeds and before the handler runs.
type CommandBus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]CommandHandlerFunc
	mw       []CommandMiddleware

	stream *stream.Broadcast[cbus.Command]
	logger *slog.Logger
	tracer trace.Tracer
}

// NewCommandBus constructs an empty CommandBus.
func NewCommandBus(opts ...Option) *CommandBus {
	o := newOptions(opts)
	logger := o.logger

	return &CommandBus{
		handlers: make(map[reflect.Type]CommandHandlerFunc),
		mw:       o.cmdMW,
		stream: stream.NewIsolatedBroadcast[cbus.Command](func(p any) {
			logger.Error("command observer panicked", "err", fmt.Errorf("%w: %v", berr.ErrObserverPanic, p))
		}),
		logger: logger,
		tracer: o.tracer,
	}
}

// Register adds handlers. A tag may be owned by one handler only: a tag
// registered twice, in regs or before, fails with ErrDuplicateHandler and
// nothing from regs is registered. Interface tags are rejected with
// ErrHandlerTypeMismatch since no dispatched value has one as its dynamic type.
func (b *CommandBus) Register(regs ...CommandRegistration) error {
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

func (b *CommandBus) validate(regs []CommandRegistration) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.check(regs)
}

// check needs b.mu held.
func (b *CommandBus) check(regs []CommandRegistration) error {
	seen := make(map[reflect.Type]struct{}, len(regs))

	for _, r := range regs {
		if r.Handler == nil {
			return fmt.Errorf("register command %s: %w", tagName(r.Tag), berr.ErrHandlerNotFound)
		}

		if err := checkTag("command", r.Tag); err != nil {
			return err
		}

		_, exists := b.handlers[r.Tag]
		_, twice := seen[r.Tag]

		if exists || twice {
			return fmt.Errorf("register command %s: %w", tagName(r.Tag), berr.ErrDuplicateHandler)
		}

		seen[r.Tag] = struct{}{}
	}

	return nil
}

// BindCommand registers a typed handler for command type C.
func BindCommand[C cbus.Command](b *CommandBus, h cbus.CommandHandler[C]) error {
	return b.Register(CommandOf[C](h))
}

// BindCommandFunc registers a handler function for command type C.
func BindCommandFunc[C cbus.Command](b *CommandBus, fn func(ctx context.Context, c C, resolve cbus.Resolve) error) error {
	return b.Register(CommandFunc(fn))
}

// Execute runs the handler for cmd and returns its pending result.
// An unknown command yields a future already rejected with ErrHandlerNotFound.
func (b *CommandBus) Execute(ctx context.Context, cmd cbus.Command) *Future {
	return b.execute(ctx, cmd, nil)
}

// ExecuteWithMiddleware executes a command with additional per-call middleware.
func (b *CommandBus) ExecuteWithMiddleware(ctx context.Context, cmd cbus.Command, mws ...CommandMiddleware) *Future {
	return b.execute(ctx, cmd, mws)
}

// ExecuteSync executes cmd and waits for the resolved value.
func (b *CommandBus) ExecuteSync(ctx context.Context, cmd cbus.Command) (any, error) {
	return b.Execute(ctx, cmd).Wait(ctx)
}

// ExecuteAs executes cmd and waits for a resolved value of type R.
func ExecuteAs[R any](ctx context.Context, b *CommandBus, cmd cbus.Command) (R, error) {
	var zero R

	res, err := b.ExecuteSync(ctx, cmd)
	if err != nil {
		return zero, err
	}

	r, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("execute %s: %w", tagName(TagOf(cmd)), berr.ErrHandlerTypeMismatch)
	}

	return r, nil
}

// Stream exposes executed commands to observers such as loggers and auditors.
// An observer panic is logged and does not affect the execution.
func (b *CommandBus) Stream() stream.Source[cbus.Command] { return b.stream }

func (b *CommandBus) execute(ctx context.Context, cmd cbus.Command, mws []CommandMiddleware) *Future {
	f := newFuture()
	tag := TagOf(cmd)
	name := tagName(tag)

	b.mu.RLock()
	h, ok := b.handlers[tag]
	chain := make([]CommandMiddleware, 0, len(b.mw)+len(mws))
	chain = append(chain, b.mw...)
	b.mu.RUnlock()

	if !ok {
		f.reject(fmt.Errorf("execute %s: %w", name, berr.ErrHandlerNotFound))
		return f
	}

	chain = append(chain, mws...)

	ctx, span := b.tracer.Start(ctx, "execute "+name, trace.WithAttributes(
		attribute.String("cqrs.command", name),
		attribute.String("cqrs.execution_id", f.ID()),
	))
	defer span.End()

	b.logger.DebugContext(ctx, "execute command", "command", name, "execution_id", f.ID())

	b.stream.Publish(cmd)

	// Build chain so the first registered middleware runs first
	final := h
	for i := len(chain) - 1; i >= 0; i-- {
		final = chain[i](final)
	}

	if err := callCommand(ctx, final, cmd, func(v any) { f.resolve(v) }); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if !f.reject(err) {
			b.logger.WarnContext(ctx, "command handler failed after resolve",
				"command", name, "execution_id", f.ID(), "err", err)
		}
	}

	return f
}

func callCommand(ctx context.Context, h CommandHandlerFunc, cmd any, resolve cbus.Resolve) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execute %s: %w: %v", tagName(TagOf(cmd)), berr.ErrHandlerPanic, r)
		}
	}()

	return h(ctx, cmd, resolve)
}
