package errors

import "fmt"

// EventHandlerError reports a failure of one event handler during fan-out.
// It matches ErrEventHandler with errors.Is and unwraps to the handler's error.
type EventHandlerError struct {
	Tag     string // event type name
	Handler string // handler name, or its position when unnamed
	Event   any
	Err     error
}

func (e *EventHandlerError) Error() string {
	return fmt.Sprintf("%s: event %s handler %s: %v", ErrCodeEventHandler, e.Tag, e.Handler, e.Err)
}

func (e *EventHandlerError) Unwrap() error { return e.Err }

func (e *EventHandlerError) Is(target error) bool { return target == ErrEventHandler }

// SagaError reports a failure inside a combined saga: either its derived
// stream failed (Command is nil) or a command it emitted was rejected.
type SagaError struct {
	Saga    int
	Command any
	Err     error
}

func (e *SagaError) Error() string {
	if e.Command == nil {
		return fmt.Sprintf("%s: saga %d: %v", ErrCodeSaga, e.Saga, e.Err)
	}

	return fmt.Sprintf("%s: saga %d command %T: %v", ErrCodeSaga, e.Saga, e.Command, e.Err)
}

func (e *SagaError) Unwrap() error { return e.Err }

func (e *SagaError) Is(target error) bool { return target == ErrSaga }
