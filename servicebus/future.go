package servicebus

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Future is the pending result of a command execution. It is settled exactly
// once, either by the handler's resolve callback or by a rejection.
type Future struct {
	id    string
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newFuture() *Future {
	return &Future{id: uuid.NewString(), done: make(chan struct{})}
}

func (f *Future) settle(v any, err error) bool {
	settled := false

	f.once.Do(func() {
		f.value, f.err = v, err
		settled = true

		close(f.done)
	})

	return settled
}

func (f *Future) resolve(v any) bool { return f.settle(v, nil) }

func (f *Future) reject(err error) bool { return f.settle(nil, err) }

// ID is the execution id, also attached to logs and spans.
func (f *Future) ID() string { return f.id }

// Done is closed once the future is settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Settled reports whether the future has a value or an error.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the settled value and error. ok is false while pending.
func (f *Future) Result() (value any, err error, ok bool) {
	if !f.Settled() {
		return nil, nil, false
	}

	return f.value, f.err, true
}

// Wait blocks until the future settles or ctx ends.
func (f *Future) Wait(ctx context.Context) (any, error) {
	if f.Settled() {
		return f.value, f.err
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
