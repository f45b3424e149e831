package bus

import "context"

// Dispatcher is the application-facing surface of the mediator. It lets
// controllers and handlers depend on contracts instead of the servicebus package.
type Dispatcher interface {
	// ExecuteSync runs a command and waits for its resolved result.
	ExecuteSync(ctx context.Context, cmd Command) (any, error)

	// Ask runs a query.
	Ask(ctx context.Context, query Query) (any, error)

	// Publish fans an event out to its handlers and sagas.
	Publish(ctx context.Context, event Event)
	PublishAll(ctx context.Context, events ...Event)

	// Lifecycle
	Close() error
}
