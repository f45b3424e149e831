package stream

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPanic wraps a panic recovered inside an operator or a downstream observer.
var ErrPanic = errors.New("stream: panic")

// derive builds an operator. step is called for every upstream item and may
// emit zero or more items downstream. A step error or panic terminates the
// derived subscription: upstream is unsubscribed and o.Error is called once.
func derive[T, U any](src Source[T], step func(v T, emit func(U)) error) Source[U] {
	return SourceFunc[U](func(o Observer[U]) *Subscription {
		var (
			mu      sync.Mutex
			up      *Subscription
			stopped bool
		)

		stop := func() bool {
			mu.Lock()
			if stopped {
				mu.Unlock()
				return false
			}

			stopped = true
			s := up
			mu.Unlock()

			s.Unsubscribe()

			return true
		}

		isStopped := func() bool {
			mu.Lock()
			defer mu.Unlock()

			return stopped
		}

		s := src.Subscribe(Observer[T]{
			Next: func(v T) {
				if isStopped() {
					return
				}

				if err := safeStep(step, v, o.next); err != nil && stop() {
					o.error(err)
				}
			},
			Error: func(err error) {
				if stop() {
					o.error(err)
				}
			},
			Done: func() {
				if stop() {
					o.done()
				}
			},
		})

		mu.Lock()
		up = s
		late := stopped
		mu.Unlock()

		// the upstream may have failed or completed during Subscribe
		if late {
			s.Unsubscribe()
		}

		return NewSubscription(func() { stop() })
	})
}

func safeStep[T, U any](step func(T, func(U)) error, v T, emit func(U)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return step(v, emit)
}

// Filter forwards items for which keep returns true.
func Filter[T any](src Source[T], keep func(T) bool) Source[T] {
	return derive(src, func(v T, emit func(T)) error {
		if keep(v) {
			emit(v)
		}

		return nil
	})
}

// Map transforms every item.
func Map[T, U any](src Source[T], fn func(T) U) Source[U] {
	return derive(src, func(v T, emit func(U)) error {
		emit(fn(v))
		return nil
	})
}

// MapErr transforms every item; the first error terminates the stream.
func MapErr[T, U any](src Source[T], fn func(T) (U, error)) Source[U] {
	return derive(src, func(v T, emit func(U)) error {
		u, err := fn(v)
		if err != nil {
			return err
		}

		emit(u)

		return nil
	})
}

// FlatMap expands every item into zero or more items, emitted in slice order.
func FlatMap[T, U any](src Source[T], fn func(T) []U) Source[U] {
	return derive(src, func(v T, emit func(U)) error {
		for _, u := range fn(v) {
			emit(u)
		}

		return nil
	})
}

// OfType forwards only items whose dynamic type is E, typed as E.
//
//	kills := stream.OfType[DragonKilled](events)
func OfType[E any, T any](src Source[T]) Source[E] {
	return derive(src, func(v T, emit func(E)) error {
		if e, ok := any(v).(E); ok {
			emit(e)
		}

		return nil
	})
}

// Recover forwards items unchanged but turns a panic raised further down the
// chain into an Error notification instead of unwinding into the publisher.
func Recover[T any](src Source[T]) Source[T] {
	return derive(src, func(v T, emit func(T)) error {
		emit(v)
		return nil
	})
}

// Merge interleaves several sources. It completes once all of them complete
// and fails on the first error.
func Merge[T any](srcs ...Source[T]) Source[T] {
	return SourceFunc[T](func(o Observer[T]) *Subscription {
		var (
			mu        sync.Mutex
			remaining = len(srcs)
			finished  bool
			subs      []*Subscription
		)

		cancelAll := func() {
			mu.Lock()
			all := subs
			mu.Unlock()

			for _, s := range all {
				s.Unsubscribe()
			}
		}

		finish := func() bool {
			mu.Lock()
			defer mu.Unlock()

			if finished {
				return false
			}

			finished = true

			return true
		}

		if remaining == 0 {
			o.done()
			return NewSubscription(nil)
		}

		for _, src := range srcs {
			s := src.Subscribe(Observer[T]{
				Next: func(v T) {
					mu.Lock()
					f := finished
					mu.Unlock()

					if !f {
						o.next(v)
					}
				},
				Error: func(err error) {
					if finish() {
						cancelAll()
						o.error(err)
					}
				},
				Done: func() {
					mu.Lock()
					remaining--
					last := remaining == 0 && !finished
					if last {
						finished = true
					}
					mu.Unlock()

					if last {
						o.done()
					}
				},
			})

			mu.Lock()
			subs = append(subs, s)
			mu.Unlock()
		}

		mu.Lock()
		f := finished
		mu.Unlock()

		if f {
			cancelAll()
		}

		return NewSubscription(cancelAll)
	})
}

// FromSlice emits items synchronously on Subscribe, then completes.
func FromSlice[T any](items ...T) Source[T] {
	return SourceFunc[T](func(o Observer[T]) *Subscription {
		for _, v := range items {
			o.next(v)
		}

		o.done()

		return NewSubscription(nil)
	})
}

// Collect subscribes to a synchronous source and gathers what it emits before
// returning. Items emitted after Subscribe returns are not collected.
func Collect[T any](src Source[T]) ([]T, error) {
	var (
		out []T
		err error
	)

	sub := src.Subscribe(Observer[T]{
		Next:  func(v T) { out = append(out, v) },
		Error: func(e error) { err = e },
	})
	sub.Unsubscribe()

	return out, err
}
