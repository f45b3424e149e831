package bus

import "context"

// Resolve settles the result of a command execution. Only the first call counts.
type Resolve func(result any)

// CommandHandler handles commands of type C.
//
// Handle runs synchronously inside Execute. It may call resolve at any point,
// including from goroutines it starts, to let the caller proceed before the
// handler is fully finished. Returning an error before resolve rejects the result.
//
// Commands emitted by sagas are executed after the Publish that produced them
// has run its event handlers. They run one at a time, normally on the
// publisher's goroutine, but on a different goroutine when another publisher
// is already dispatching saga commands or the saga emitted outside a Publish.
type CommandHandler[C Command] interface {
	Handle(ctx context.Context, c C, resolve Resolve) error
}

// QueryHandler handles queries of type Q and returns a result of type R.
// Implementations must be safe for concurrent use by multiple goroutines.
type QueryHandler[Q Query, R any] interface {
	Handle(ctx context.Context, q Q) (R, error)
}

// EventHandler handles events of type E.
// Errors are isolated per handler and never reach the publisher.
type EventHandler[E Event] interface {
	Handle(ctx context.Context, e E) error
}
