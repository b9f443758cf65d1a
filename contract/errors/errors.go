package errors

// Error codes for the bus contracts. Keep stable; used across adapters and bus.
const (
	ErrCodeHandlerExists          = "eventbus.handler_exists"
	ErrCodeHandlerNotFound        = "eventbus.handler_not_found"
	ErrCodeHandlerTypeMismatch    = "eventbus.handler_type_mismatch"
	ErrCodeEventNameConflict      = "eventbus.event_name_conflict"
	ErrCodeTransportNotConfigured = "eventbus.transport_not_configured"
	ErrCodePublishFailed          = "eventbus.publish_failed"
	ErrCodeSubscribeFailed        = "eventbus.subscribe_failed"
	ErrCodeSerializationFailed    = "eventbus.serialization_failed"
	ErrCodeHandlerFailed          = "eventbus.handler_failed"
	ErrCodeBusClosed              = "eventbus.closed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	// ErrHandlerExists reports a duplicate (event name, handler) or command binding.
	ErrHandlerExists          = Code(ErrCodeHandlerExists)
	ErrHandlerNotFound        = Code(ErrCodeHandlerNotFound)
	ErrHandlerTypeMismatch    = Code(ErrCodeHandlerTypeMismatch)
	ErrEventNameConflict      = Code(ErrCodeEventNameConflict)
	ErrTransportNotConfigured = Code(ErrCodeTransportNotConfigured)
	ErrPublishFailed          = Code(ErrCodePublishFailed)
	ErrSubscribeFailed        = Code(ErrCodeSubscribeFailed)
	ErrSerializationFailed    = Code(ErrCodeSerializationFailed)
	ErrHandlerFailed          = Code(ErrCodeHandlerFailed)
	ErrBusClosed              = Code(ErrCodeBusClosed)
)
