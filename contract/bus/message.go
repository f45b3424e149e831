package bus

// Command is a marker interface for commands (intent to change state).
// A command has exactly one handler, selected by its dynamic type.
type Command interface{}

// Query is a marker interface for queries. Queries are handled synchronously and must not change state.
type Query interface{}

// Event is a marker interface for events (a fact that already happened).
// An event is fanned out to zero or more handlers, selected by its dynamic type.
type Event interface{}

// IntegrationEvent is an Event that should also leave the process. Topic() guides routing.
type IntegrationEvent interface{ Topic() string }
