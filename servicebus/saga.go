package servicebus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cbus "github.com/next-trace/scg-cqrs/contract/bus"
	berr "github.com/next-trace/scg-cqrs/contract/errors"
	"github.com/next-trace/scg-cqrs/stream"
)

var errNoSagaStream = errors.New("saga returned no command stream")

// dispatchKey marks a context derived inside Publish or a saga dispatch of one EventBus.
type dispatchKey struct{}

// CombineSagas subscribes every saga to the event stream. Commands the sagas
// emit go through one FIFO shared by the whole bus and are executed after the
// Publish that caused them has run its handlers, in emission order, one at a
// time, without waiting for earlier commands to settle. A failing saga only
// loses its own subscription; failures are reported on Errors as *errors.SagaError.
func (b *EventBus) CombineSagas(sagas ...cbus.Saga) error {
	// a saga may emit while it is being subscribed
	b.queue.enter()
	defer b.leave(false)

	b.sagaMu.Lock()
	defer b.sagaMu.Unlock()

	if err := b.checkSagas(sagas); err != nil {
		return err
	}

	for _, s := range sagas {
		run := &sagaRun{index: len(b.sagas), bus: b}
		b.sagas = append(b.sagas, run)

		run.start(s)
	}

	return nil
}

func (b *EventBus) checkSagas(sagas []cbus.Saga) error {
	if b.commands == nil {
		return fmt.Errorf("combine sagas: %w", berr.ErrSagaNotConfigured)
	}

	if b.closed.Load() {
		return fmt.Errorf("combine sagas: %w", berr.ErrBusClosed)
	}

	for i, s := range sagas {
		if s == nil {
			return fmt.Errorf("combine sagas: saga %d is nil: %w", i, berr.ErrSagaNotConfigured)
		}
	}

	return nil
}

// Close cancels every saga subscription and dispatches the commands they
// already emitted. Once that queue is empty the saga context is cancelled and
// the event and error streams complete. Direct Publish keeps running handlers.
//
// Called while a Publish or a saga dispatch is running, from a handler or
// another goroutine, Close returns at once and that dispatch finishes the teardown.
func (b *EventBus) Close() error {
	b.sagaMu.Lock()
	if b.closed.Swap(true) {
		b.sagaMu.Unlock()
		return nil
	}

	runs := b.sagas
	b.sagaMu.Unlock()

	for _, r := range runs {
		r.stop()
	}

	if b.queue.idle() {
		b.drain()
	}

	return nil
}

func (b *EventBus) dispatching(ctx context.Context) bool {
	owner, _ := ctx.Value(dispatchKey{}).(*EventBus)
	return owner == b
}

// leave ends a Publish. The outermost Publish of a call chain drains the saga
// queue; so does any Publish that leaves no other Publish running.
func (b *EventBus) leave(nested bool) {
	if b.queue.exit() || !nested {
		b.drain()
	}
}

// drain dispatches queued saga commands until the queue is empty. Only one
// goroutine drains at a time; the others return at once.
func (b *EventBus) drain() {
	if !b.queue.claim() {
		return
	}

	for {
		next, ok := b.queue.pop()
		if !ok {
			break
		}

		next.run.dispatch(next.cmd)
	}

	if b.closed.Load() {
		b.finished.Do(func() {
			b.cancel()
			b.events.Close()
			b.errs.Close()
		})
	}
}

type sagaCommand struct {
	run *sagaRun
	cmd cbus.Command
}

// sagaQueue is the unbounded FIFO of commands emitted by every saga of a bus.
type sagaQueue struct {
	mu         sync.Mutex
	items      []sagaCommand
	publishing int
	draining   bool
}

func (q *sagaQueue) enter() {
	q.mu.Lock()
	q.publishing++
	q.mu.Unlock()
}

// exit reports whether no Publish is left running.
func (q *sagaQueue) exit() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.publishing--

	return q.publishing == 0
}

func (q *sagaQueue) idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.publishing == 0
}

// push reports whether the caller must drain: nothing else will pick the command up.
func (q *sagaQueue) push(c sagaCommand) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, c)

	return q.publishing == 0 && !q.draining
}

func (q *sagaQueue) claim() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		return false
	}

	q.draining = true

	return true
}

// pop releases the claim when the queue is empty.
func (q *sagaQueue) pop() (sagaCommand, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.draining = false
		return sagaCommand{}, false
	}

	next := q.items[0]
	q.items[0] = sagaCommand{}
	q.items = q.items[1:]

	return next, true
}

// sagaRun owns one saga subscription.
type sagaRun struct {
	index int
	bus   *EventBus

	mu      sync.Mutex
	sub     *stream.Subscription
	stopped bool
}

func (r *sagaRun) start(saga cbus.Saga) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(fmt.Errorf("%w: %v", stream.ErrPanic, p))
		}
	}()

	commands := saga(stream.Recover[cbus.Event](r.bus.events))
	if commands == nil {
		r.fail(errNoSagaStream)
		return
	}

	sub := commands.Subscribe(stream.Observer[cbus.Command]{
		Next:  r.enqueue,
		Error: r.fail,
	})

	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()
}

func (r *sagaRun) enqueue(cmd cbus.Command) {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()

	if stopped {
		return
	}

	if r.bus.queue.push(sagaCommand{run: r, cmd: cmd}) {
		r.bus.drain()
	}
}

// fail terminates this saga's subscription only. Queued commands still run.
func (r *sagaRun) fail(err error) {
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()

	sub.Unsubscribe()
	r.bus.report(r.bus.ctx, &berr.SagaError{Saga: r.index, Err: err})
}

func (r *sagaRun) stop() {
	r.mu.Lock()
	sub := r.sub
	r.stopped = true
	r.mu.Unlock()

	sub.Unsubscribe()
}

// dispatch executes without waiting; a rejection is reported once it happens.
func (r *sagaRun) dispatch(cmd cbus.Command) {
	ctx := context.WithValue(r.bus.ctx, dispatchKey{}, r.bus)
	f := r.bus.commands.Execute(ctx, cmd)

	watch := func() {
		if _, err := f.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.bus.report(ctx, &berr.SagaError{Saga: r.index, Command: cmd, Err: err})
		}
	}

	if f.Settled() {
		watch()
		return
	}

	go watch()
}
