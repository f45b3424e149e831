/*
Package aggregate provides the event-buffering capability domain entities embed.

An entity embeds Root, registers its event-application logic with Init, and
records changes with Apply. Whether applied events are also published is
decided from the outside: servicebus.MergeObjectContext attaches a publish
capability bound to one event bus, and without it Apply only buffers.
*/
package aggregate

import (
	"sync"

	cbus "github.com/next-trace/scg-cqrs/contract/bus"
)

// PublishFunc is a publish capability bound to a specific event bus.
type PublishFunc func(e cbus.Event)

// Publishable is satisfied by any pointer to a type embedding Root.
type Publishable interface {
	SetPublisher(p PublishFunc)
}

// Root holds the uncommitted events of an aggregate and its optional publish capability.
// The zero value is ready to use. Root must not be copied after first use.
type Root struct {
	mu          sync.Mutex
	fold        func(cbus.Event)
	publish     PublishFunc
	uncommitted []cbus.Event
	version     int
}

var _ Publishable = (*Root)(nil)

// Init sets the function that folds an event into the entity's state.
// Both Apply and LoadFromHistory go through it.
func (r *Root) Init(fold func(e cbus.Event)) {
	r.mu.Lock()
	r.fold = fold
	r.mu.Unlock()
}

// SetPublisher attaches (or with nil, detaches) the publish capability.
func (r *Root) SetPublisher(p PublishFunc) {
	r.mu.Lock()
	r.publish = p
	r.mu.Unlock()
}

// Publisher returns the attached publish capability, or nil.
func (r *Root) Publisher() PublishFunc {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.publish
}

// Apply folds e into the entity, appends it to the uncommitted buffer and,
// when a publish capability is attached, publishes it before returning.
func (r *Root) Apply(e cbus.Event) {
	r.mu.Lock()
	fold := r.fold
	r.mu.Unlock()

	if fold != nil {
		fold(e)
	}

	r.mu.Lock()
	r.uncommitted = append(r.uncommitted, e)
	r.version++
	publish := r.publish
	r.mu.Unlock()

	// called without the lock: handlers reached through publish may inspect the aggregate
	if publish != nil {
		publish(e)
	}
}

// LoadFromHistory rebuilds state from past events. Replayed events are never
// buffered or published.
func (r *Root) LoadFromHistory(events ...cbus.Event) {
	r.mu.Lock()
	fold := r.fold
	r.mu.Unlock()

	for _, e := range events {
		if fold != nil {
			fold(e)
		}

		r.mu.Lock()
		r.version++
		r.mu.Unlock()
	}
}

// UncommittedEvents returns a copy of the events applied since the last Commit.
func (r *Root) UncommittedEvents() []cbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]cbus.Event(nil), r.uncommitted...)
}

// Commit returns the uncommitted events in application order and clears the buffer.
func (r *Root) Commit() []cbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.uncommitted
	r.uncommitted = nil

	return out
}

// Uncommit discards the uncommitted events.
func (r *Root) Uncommit() {
	r.mu.Lock()
	r.uncommitted = nil
	r.mu.Unlock()
}

// Version is the number of events folded so far, replayed or applied.
func (r *Root) Version() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.version
}

// Publish sends e through the publish capability without folding or buffering it.
// It is a no-op when no capability is attached.
func (r *Root) Publish(e cbus.Event) {
	if p := r.Publisher(); p != nil {
		p(e)
	}
}

// PublishAll publishes events in order. See Publish.
func (r *Root) PublishAll(events ...cbus.Event) {
	p := r.Publisher()
	if p == nil {
		return
	}

	for _, e := range events {
		p(e)
	}
}
