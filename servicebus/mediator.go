package servicebus

import (
	"context"
	"fmt"

	cbus "github.com/next-trace/scg-cqrs/contract/bus"
)

// Module is what a resolver contributes at startup: handler instances already
// paired with the tags they handle, plus the sagas to combine.
type Module struct {
	Commands []CommandRegistration
	Queries  []QueryRegistration
	Events   []EventRegistration
	Sagas    []cbus.Saga
}

// Resolver builds a Module. It receives the mediator so handlers can capture
// the buses they dispatch to.
type Resolver func(m *Mediator) (Module, error)

// Mediator groups the buses of one process. Construct it once at startup and
// pass it (or the individual buses) to whoever needs them.
type Mediator struct {
	Commands *CommandBus
	Queries  *QueryBus
	Events   *EventBus
	Bridge   *Bridge
}

var _ cbus.Dispatcher = (*Mediator)(nil)

// NewMediator constructs the buses with shared options and wires the event
// bus sagas to the command bus.
func NewMediator(opts ...Option) *Mediator {
	commands := NewCommandBus(opts...)
	events := NewEventBus(append(opts[:len(opts):len(opts)], WithCommandBus(commands))...)

	return &Mediator{
		Commands: commands,
		Queries:  NewQueryBus(opts...),
		Events:   events,
		Bridge:   NewBridge(events),
	}
}

// Boot runs the startup protocol: resolve every module, register all handlers,
// then combine the sagas. Any error aborts boot before anything is registered,
// so a corrected Boot may be retried on the same Mediator. It must finish
// before dispatch.
func (m *Mediator) Boot(resolvers ...Resolver) error {
	var all Module

	for i, r := range resolvers {
		mod, err := r(m)
		if err != nil {
			return fmt.Errorf("boot: resolve module %d: %w", i, err)
		}

		all.Commands = append(all.Commands, mod.Commands...)
		all.Queries = append(all.Queries, mod.Queries...)
		all.Events = append(all.Events, mod.Events...)
		all.Sagas = append(all.Sagas, mod.Sagas...)
	}

	if err := m.validate(all); err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	if err := m.Commands.Register(all.Commands...); err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	if err := m.Queries.Register(all.Queries...); err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	if err := m.Events.Register(all.Events...); err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	if len(all.Sagas) > 0 {
		if err := m.Events.CombineSagas(all.Sagas...); err != nil {
			return fmt.Errorf("boot: %w", err)
		}
	}

	return nil
}

func (m *Mediator) validate(all Module) error {
	if err := m.Commands.validate(all.Commands); err != nil {
		return err
	}

	if err := m.Queries.validate(all.Queries); err != nil {
		return err
	}

	if err := checkEvents(all.Events); err != nil {
		return err
	}

	if len(all.Sagas) == 0 {
		return nil
	}

	m.Events.sagaMu.Lock()
	defer m.Events.sagaMu.Unlock()

	return m.Events.checkSagas(all.Sagas)
}

// Execute runs a command. See CommandBus.Execute.
func (m *Mediator) Execute(ctx context.Context, cmd cbus.Command) *Future {
	return m.Commands.Execute(ctx, cmd)
}

// ExecuteSync runs a command and waits for its result.
func (m *Mediator) ExecuteSync(ctx context.Context, cmd cbus.Command) (any, error) {
	return m.Commands.ExecuteSync(ctx, cmd)
}

// Ask runs a query.
func (m *Mediator) Ask(ctx context.Context, q cbus.Query) (any, error) { return m.Queries.Ask(ctx, q) }

// Publish publishes an event.
func (m *Mediator) Publish(ctx context.Context, e cbus.Event) { m.Events.Publish(ctx, e) }

// PublishAll publishes events in order.
func (m *Mediator) PublishAll(ctx context.Context, events ...cbus.Event) {
	m.Events.PublishAll(ctx, events...)
}

// Close tears down saga subscriptions and completes the event streams. See EventBus.Close.
func (m *Mediator) Close() error {
	return m.Events.Close()
}
