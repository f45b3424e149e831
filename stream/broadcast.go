package stream

import (
	"sync"
	"sync/atomic"
)

// Observer receives items from a Source. Any callback may be nil.
type Observer[T any] struct {
	Next  func(T)
	Error func(error)
	Done  func()
}

func (o Observer[T]) next(v T) {
	if o.Next != nil {
		o.Next(v)
	}
}

func (o Observer[T]) error(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

func (o Observer[T]) done() {
	if o.Done != nil {
		o.Done()
	}
}

// Source is anything an Observer can subscribe to.
type Source[T any] interface {
	Subscribe(o Observer[T]) *Subscription
}

// SourceFunc adapts a subscribe function to Source.
type SourceFunc[T any] func(o Observer[T]) *Subscription

func (f SourceFunc[T]) Subscribe(o Observer[T]) *Subscription { return f(o) }

// Subscription is a cancellable handle returned by Subscribe.
type Subscription struct {
	once   sync.Once
	closed atomic.Bool
	cancel func()
}

// NewSubscription wraps a cancel func. A nil cancel is allowed.
func NewSubscription(cancel func()) *Subscription { return &Subscription{cancel: cancel} }

// Unsubscribe stops further delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}

	s.once.Do(func() {
		s.closed.Store(true)

		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Closed reports whether Unsubscribe has been called.
func (s *Subscription) Closed() bool { return s != nil && s.closed.Load() }

type subscriber[T any] struct {
	o      Observer[T]
	active atomic.Bool
}

// Broadcast delivers every published item to all current subscribers,
// synchronously and in subscription order. Late subscribers get no replay.
//
// Broadcast is safe for concurrent use. The subscriber list is snapshotted per
// Publish, so observers may subscribe, unsubscribe or publish re-entrantly.
type Broadcast[T any] struct {
	mu      sync.RWMutex
	subs    []*subscriber[T]
	closed  bool
	onPanic func(p any)
}

// NewBroadcast constructs an empty Broadcast.
func NewBroadcast[T any]() *Broadcast[T] { return &Broadcast[T]{} }

// NewIsolatedBroadcast constructs a Broadcast that recovers a panic raised by
// any observer callback, hands it to onPanic and keeps delivering to the
// remaining observers. The panicking observer stays subscribed.
func NewIsolatedBroadcast[T any](onPanic func(p any)) *Broadcast[T] {
	if onPanic == nil {
		onPanic = func(any) {}
	}

	return &Broadcast[T]{onPanic: onPanic}
}

func (b *Broadcast[T]) deliver(call func()) {
	if b.onPanic != nil {
		defer func() {
			if p := recover(); p != nil {
				b.onPanic(p)
			}
		}()
	}

	call()
}

// Subscribe registers o. On a closed Broadcast o.Done is called immediately
// and the returned subscription is already closed.
func (b *Broadcast[T]) Subscribe(o Observer[T]) *Subscription {
	s := &subscriber[T]{o: o}
	s.active.Store(true)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.deliver(o.done)

		sub := NewSubscription(nil)
		sub.Unsubscribe()

		return sub
	}

	b.subs = append(b.subs, s)
	b.mu.Unlock()

	return NewSubscription(func() { b.remove(s) })
}

func (b *Broadcast[T]) remove(s *subscriber[T]) {
	s.active.Store(false)

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, cur := range b.subs {
		if cur == s {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers v to every subscriber. It is a no-op after Close.
func (b *Broadcast[T]) Publish(v T) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}

	subs := append([]*subscriber[T](nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.active.Load() {
			b.deliver(func() { s.o.next(v) })
		}
	}
}

// Close completes every subscriber and drops them. Further publishes are ignored.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		if s.active.Swap(false) {
			b.deliver(s.o.done)
		}
	}
}

// Len returns the number of active subscribers.
func (b *Broadcast[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}
