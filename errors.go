package hostwire

import "github.com/wagiedev/hostwire-go/internal/errors"

// Re-export error types from internal package

// ProtocolError is returned for every protocol failure; Kind tells which.
type ProtocolError = errors.ProtocolError

// Kind identifies the category of a ProtocolError.
type Kind = errors.Kind

// ConnectionError indicates failure to connect the wire.
type ConnectionError = errors.ConnectionError

// ProcessError indicates a host process behind an exec:// address failed.
type ProcessError = errors.ProcessError

// DecodeError indicates an inbound frame could not be decoded.
type DecodeError = errors.DecodeError

// HostwireError is the base interface for all structured errors.
type HostwireError = errors.HostwireError

// Protocol error kinds.
const (
	KindUnexpectedAction     = errors.KindUnexpectedAction
	KindNoSuccess            = errors.KindNoSuccess
	KindDuplicateCorrelation = errors.KindDuplicateCorrelation
	KindNoAck                = errors.KindNoAck
	KindNoCorrelation        = errors.KindNoCorrelation
	KindRuntimeError         = errors.KindRuntimeError
	KindTimeout              = errors.KindTimeout
)

// KindOf returns the Kind of the first ProtocolError in err's chain.
func KindOf(err error) (Kind, bool) {
	return errors.KindOf(err)
}

// Re-export sentinel errors from internal package.
var (
	// ErrUnexpectedAction indicates a handshake response with the wrong action.
	ErrUnexpectedAction = errors.ErrUnexpectedAction

	// ErrNoSuccess indicates the host denied authorization.
	ErrNoSuccess = errors.ErrNoSuccess

	// ErrNoAck indicates a correlated response that was not an ack.
	ErrNoAck = errors.ErrNoAck

	// ErrNoCorrelation indicates a response nobody was waiting for.
	ErrNoCorrelation = errors.ErrNoCorrelation

	// ErrRuntime indicates the host reported a failed action.
	ErrRuntime = errors.ErrRuntime

	// ErrRequestTimeout indicates a request timed out.
	ErrRequestTimeout = errors.ErrRequestTimeout

	// ErrClientNotConnected indicates the client is not connected.
	ErrClientNotConnected = errors.ErrClientNotConnected

	// ErrClientAlreadyConnected indicates the client is already connected.
	ErrClientAlreadyConnected = errors.ErrClientAlreadyConnected

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.ErrClientClosed

	// ErrWireNotConnected indicates the wire has no open connection.
	ErrWireNotConnected = errors.ErrWireNotConnected

	// ErrWireClosed indicates the connection to the host was lost.
	ErrWireClosed = errors.ErrWireClosed

	// ErrListenerBusy indicates another uncorrelated exchange is in flight.
	ErrListenerBusy = errors.ErrListenerBusy

	// ErrInvalidPayload indicates a handshake payload had the wrong shape.
	ErrInvalidPayload = errors.ErrInvalidPayload

	// ErrUnknownCodec indicates a codec name that is not registered.
	ErrUnknownCodec = errors.ErrUnknownCodec
)
