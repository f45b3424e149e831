/*
Package servicebus is the in-process CQRS mediator.

CommandBus routes every command to exactly one handler and returns a Future the
handler settles through its resolve callback. EventBus fans events out to all
handlers registered for their type, isolating failures per handler, and feeds
the event stream into combined sagas whose derived commands go back through the
CommandBus. Bridge binds aggregates to an EventBus so aggregate.Root.Apply
publishes what it records. QueryBus serves synchronous reads.

Handlers are registered during startup (see Mediator.Boot) and the registries
are read-only afterwards. Buses are constructed once and passed explicitly; the
package holds no global state.
*/
package servicebus
