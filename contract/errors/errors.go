package errors

// Error codes for the mediator contracts. Keep stable; used across adapters and buses.
const (
	ErrCodeHandlerNotFound     = "cqrs.handler_not_found"
	ErrCodeDuplicateHandler    = "cqrs.duplicate_handler"
	ErrCodeHandlerTypeMismatch = "cqrs.handler_type_mismatch"
	ErrCodeHandlerPanic        = "cqrs.handler_panic"
	ErrCodeObserverPanic       = "cqrs.observer_panic"
	ErrCodeEventHandler        = "cqrs.event_handler_failed"
	ErrCodeSaga                = "cqrs.saga_failed"
	ErrCodeSagaNotConfigured   = "cqrs.saga_not_configured"
	ErrCodeBusClosed           = "cqrs.bus_closed"
	ErrCodePublishFailed       = "cqrs.publish_failed"
	ErrCodeSerializationFailed = "cqrs.serialization_failed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrHandlerNotFound     = Code(ErrCodeHandlerNotFound)
	ErrDuplicateHandler    = Code(ErrCodeDuplicateHandler)
	ErrHandlerTypeMismatch = Code(ErrCodeHandlerTypeMismatch)
	ErrHandlerPanic        = Code(ErrCodeHandlerPanic)
	ErrObserverPanic       = Code(ErrCodeObserverPanic)
	ErrEventHandler        = Code(ErrCodeEventHandler)
	ErrSaga                = Code(ErrCodeSaga)
	ErrSagaNotConfigured   = Code(ErrCodeSagaNotConfigured)
	ErrBusClosed           = Code(ErrCodeBusClosed)
	ErrPublishFailed       = Code(ErrCodePublishFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
)
