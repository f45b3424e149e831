package servicebus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	cbus "github.com/next-trace/scg-cqrs/contract/bus"
	berr "github.com/next-trace/scg-cqrs/contract/errors"
	"github.com/next-trace/scg-cqrs/stream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EventHandlerFunc is the untyped form every event handler is stored as.
type EventHandlerFunc func(ctx context.Context, evt any) error

// EventRegistration pairs an event tag with one of its handlers.
// Name identifies the handler in error reports; it may be empty.
type EventRegistration struct {
	Tag     reflect.Type
	Name    string
	Handler EventHandlerFunc
}

// EventOf builds the registration of a typed handler for event type E.
func EventOf[E cbus.Event](h cbus.EventHandler[E]) EventRegistration {
	r := EventFunc(h.Handle)
	r.Name = fmt.Sprintf("%T", h)

	return r
}

// EventFunc builds the registration of a handler function for event type E.
func EventFunc[E cbus.Event](fn func(ctx context.Context, e E) error) EventRegistration {
	return EventRegistration{
		Tag: reflect.TypeFor[E](),
		Handler: func(ctx context.Context, v any) error {
			e, ok := v.(E)
			if !ok {
				return fmt.Errorf("publish %s: %w", tagName(TagOf(v)), berr.ErrHandlerTypeMismatch)
			}

			return fn(ctx, e)
		},
	}
}

// EventBus fans each event out to every handler registered for its type, in
// registration order, and streams it to observers and combined sagas.
//
// Handler failures (errors and panics) are isolated: they are logged and
// reported on Errors as *errors.EventHandlerError, and never reach the publisher.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]EventRegistration

	events *stream.Broadcast[cbus.Event]
	errs   *stream.Broadcast[error]

	commands *CommandBus
	logger   *slog.Logger
	tracer   trace.Tracer

	// saga lifecycle
	sagaMu   sync.Mutex
	sagas    []*sagaRun
	queue    sagaQueue
	closed   atomic.Bool
	finished sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewEventBus constructs an EventBus. Sagas need WithCommandBus.
func NewEventBus(opts ...Option) *EventBus {
	o := newOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())

	b := &EventBus{
		handlers: make(map[reflect.Type][]EventRegistration),
		commands: o.commands,
		logger:   o.logger,
		tracer:   o.tracer,
		ctx:      ctx,
		cancel:   cancel,
	}

	b.events = stream.NewIsolatedBroadcast[cbus.Event](func(p any) {
		b.report(context.Background(), fmt.Errorf("event observer: %w: %v", berr.ErrObserverPanic, p))
	})
	b.errs = stream.NewIsolatedBroadcast[error](func(p any) {
		b.logger.Error("error observer panicked", "err", fmt.Errorf("%w: %v", berr.ErrObserverPanic, p))
	})

	return b
}

// Register appends handlers. Several handlers per event type are expected.
func (b *EventBus) Register(regs ...EventRegistration) error {
	if err := checkEvents(regs); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range regs {
		b.handlers[r.Tag] = append(b.handlers[r.Tag], r)
	}

	return nil
}

func checkEvents(regs []EventRegistration) error {
	for _, r := range regs {
		if r.Handler == nil {
			return fmt.Errorf("register event %s: %w", tagName(r.Tag), berr.ErrHandlerNotFound)
		}

		if err := checkTag("event", r.Tag); err != nil {
			return err
		}
	}

	return nil
}

// BindEvent registers a typed handler for event type E. Multiple handlers are allowed.
func BindEvent[E cbus.Event](b *EventBus, h cbus.EventHandler[E]) error {
	return b.Register(EventOf[E](h))
}

// BindEventFunc registers a handler function for event type E.
func BindEventFunc[E cbus.Event](b *EventBus, fn func(ctx context.Context, e E) error) error {
	return b.Register(EventFunc(fn))
}

// Publish streams e to observers and sagas, then runs its handlers in
// registration order, each handler's synchronous part finishing before the
// next. After the handlers, and before returning, the outermost Publish
// dispatches the commands sagas derived from e, unless another goroutine is
// already dispatching saga commands for this bus, in which case that goroutine
// runs them.
func (b *EventBus) Publish(ctx context.Context, e cbus.Event) {
	nested := b.dispatching(ctx)

	b.queue.enter()
	defer b.leave(nested)

	if !nested {
		ctx = context.WithValue(ctx, dispatchKey{}, b)
	}

	b.publish(ctx, e)
}

func (b *EventBus) publish(ctx context.Context, e cbus.Event) {
	tag := TagOf(e)
	name := tagName(tag)

	ctx, span := b.tracer.Start(ctx, "publish "+name, trace.WithAttributes(attribute.String("cqrs.event", name)))
	defer span.End()

	b.events.Publish(e)

	b.mu.RLock()
	entries := append([]EventRegistration(nil), b.handlers[tag]...)
	b.mu.RUnlock()

	b.logger.DebugContext(ctx, "publish event", "event", name, "handlers", len(entries))

	for i, ent := range entries {
		if err := callEvent(ctx, ent.Handler, e); err != nil {
			handler := ent.Name
			if handler == "" {
				handler = fmt.Sprintf("#%d", i)
			}

			span.RecordError(err)
			b.report(ctx, &berr.EventHandlerError{Tag: name, Handler: handler, Event: e, Err: err})
		}
	}
}

// PublishAll publishes events one after another.
func (b *EventBus) PublishAll(ctx context.Context, events ...cbus.Event) {
	for _, e := range events {
		b.Publish(ctx, e)
	}
}

// Stream exposes published events to observers. An observer panic is
// reported on Errors wrapping ErrObserverPanic.
func (b *EventBus) Stream() stream.Source[cbus.Event] { return b.events }

// Errors is the out-of-band channel for isolated handler and saga failures.
func (b *EventBus) Errors() stream.Source[error] { return b.errs }

func (b *EventBus) report(ctx context.Context, err error) {
	b.logger.ErrorContext(ctx, "isolated failure", "err", err)
	b.errs.Publish(err)
}

func callEvent(ctx context.Context, h EventHandlerFunc, e any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", berr.ErrHandlerPanic, r)
		}
	}()

	return h(ctx, e)
}
