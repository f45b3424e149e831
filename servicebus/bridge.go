package servicebus

import (
	"context"

	"github.com/next-trace/scg-cqrs/aggregate"
	cbus "github.com/next-trace/scg-cqrs/contract/bus"
)

// Bridge hands out publish capabilities bound to one EventBus.
type Bridge struct {
	events *EventBus
}

// NewBridge constructs a Bridge over events.
func NewBridge(events *EventBus) *Bridge { return &Bridge{events: events} }

// Bind returns a capability that publishes on the bridged bus with ctx.
func (b *Bridge) Bind(ctx context.Context) aggregate.PublishFunc {
	return func(e cbus.Event) { b.events.Publish(ctx, e) }
}

// MergeObjectContext attaches the publish capability to obj only and returns obj.
// Other instances of the same type are not affected.
func MergeObjectContext[T aggregate.Publishable](ctx context.Context, b *Bridge, obj T) T {
	obj.SetPublisher(b.Bind(ctx))
	return obj
}

// MergeContext turns a constructor into one whose instances come out already
// bound to the bridged bus.
//
//	newHero := servicebus.MergeContext(bridge, NewHero)
//	h := newHero(ctx, "h1") // h.Apply now publishes
func MergeContext[A any, T aggregate.Publishable](b *Bridge, ctor func(A) T) func(context.Context, A) T {
	return func(ctx context.Context, a A) T {
		return MergeObjectContext(ctx, b, ctor(a))
	}
}
