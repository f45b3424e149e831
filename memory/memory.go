// Package memory assembles a ready-to-use in-process mediator.
package memory

import (
	"context"

	"github.com/next-trace/scg-cqrs/adapters/inmemory"
	"github.com/next-trace/scg-cqrs/relay"
	"github.com/next-trace/scg-cqrs/servicebus"
)

// New constructs a mediator and returns it along with a cleanup function
// that closes its saga subscriptions and completes its event streams.
func New(opts ...servicebus.Option) (*servicebus.Mediator, func()) {
	m := servicebus.NewMediator(opts...)
	cleanup := func() { _ = m.Close() }

	return m, cleanup
}

// NewWithOutbox is New plus a relay that records every integration event
// in an in-memory publisher, for tests and examples.
func NewWithOutbox(opts ...servicebus.Option) (*servicebus.Mediator, *inmemory.Publisher, func()) {
	m, closeBus := New(opts...)
	outbox := inmemory.New()
	sub := relay.New(outbox).Attach(context.Background(), m.Events.Stream())

	cleanup := func() {
		closeBus()
		sub.Unsubscribe()
	}

	return m, outbox, cleanup
}
