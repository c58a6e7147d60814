package errors

import (
	"errors"
	"fmt"
	"time"
)

// HostwireError is the base interface for all structured hostwire errors.
type HostwireError interface {
	error
	IsHostwireError() bool
}

// Compile-time verification that all error types implement HostwireError.
var (
	_ HostwireError = (*ProtocolError)(nil)
	_ HostwireError = (*ConnectionError)(nil)
	_ HostwireError = (*ProcessError)(nil)
	_ HostwireError = (*DecodeError)(nil)
)

// Kind identifies the category of a protocol failure.
type Kind int

const (
	// KindUnexpectedAction means a handshake response carried an action other
	// than the one awaited at that step.
	KindUnexpectedAction Kind = iota + 1
	// KindNoSuccess means the host explicitly denied authorization.
	KindNoSuccess
	// KindDuplicateCorrelation means a correlation id already had a pending entry.
	KindDuplicateCorrelation
	// KindNoAck means a correlated response carried an action other than "ack".
	KindNoAck
	// KindNoCorrelation means an inbound correlation id matched no pending entry.
	KindNoCorrelation
	// KindRuntimeError means the host answered with success=false or no payload.
	KindRuntimeError
	// KindTimeout means no response arrived before the request deadline.
	KindTimeout
)

// String returns the stable name of the kind, used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindUnexpectedAction:
		return "unexpected_action"
	case KindNoSuccess:
		return "no_success"
	case KindDuplicateCorrelation:
		return "duplicate_correlation"
	case KindNoAck:
		return "no_ack"
	case KindNoCorrelation:
		return "no_correlation"
	case KindRuntimeError:
		return "runtime_error"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel errors, one per Kind. ProtocolError unwraps to the sentinel of its Kind.
var (
	// ErrUnexpectedAction indicates a handshake response with the wrong action.
	ErrUnexpectedAction = errors.New("unexpected action")

	// ErrNoSuccess indicates the host denied authorization.
	ErrNoSuccess = errors.New("authorization not successful")

	// ErrDuplicateCorrelation indicates a correlation id collision.
	ErrDuplicateCorrelation = errors.New("duplicate correlation id")

	// ErrNoAck indicates a correlated response that was not an ack.
	ErrNoAck = errors.New("response is not an ack")

	// ErrNoCorrelation indicates a response for an id nobody is waiting on.
	ErrNoCorrelation = errors.New("no pending request for correlation id")

	// ErrRuntime indicates the host reported a failed action.
	ErrRuntime = errors.New("host runtime error")

	// ErrRequestTimeout indicates a request timed out.
	ErrRequestTimeout = errors.New("request timeout")
)

// Sentinel errors for lifecycle conditions.
var (
	// ErrClientNotConnected indicates the client is not connected.
	ErrClientNotConnected = errors.New("client not connected")

	// ErrClientAlreadyConnected indicates the client is already connected.
	ErrClientAlreadyConnected = errors.New("client already connected")

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.New("client closed: clients are single-use, create a new one with NewClient()")

	// ErrWireNotConnected indicates the wire has no open connection.
	ErrWireNotConnected = errors.New("wire not connected")

	// ErrWireAlreadyConnected indicates Connect was called on a connected wire.
	ErrWireAlreadyConnected = errors.New("wire already connected")

	// ErrWireClosed indicates the wire connection was closed.
	ErrWireClosed = errors.New("wire closed")

	// ErrControllerStopped indicates the protocol controller has stopped.
	ErrControllerStopped = errors.New("protocol controller stopped")

	// ErrListenerBusy indicates an uncorrelated exchange is already awaiting
	// the next unsolicited message.
	ErrListenerBusy = errors.New("uncorrelated listener already registered")

	// ErrInvalidPayload indicates a payload did not match its expected shape.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrUnknownCodec indicates a codec name that is not registered.
	ErrUnknownCodec = errors.New("unknown codec")
)

// ProtocolError is the structured form of every protocol failure.
//
// Which fields are meaningful depends on Kind:
//   - KindUnexpectedAction, KindNoAck: Action
//   - KindNoCorrelation, KindDuplicateCorrelation: CorrelationID
//   - KindRuntimeError: Payload (may be nil)
//   - KindTimeout: Action, CorrelationID, Timeout
type ProtocolError struct {
	Kind          Kind
	Action        string
	CorrelationID uint64
	Payload       map[string]any
	Timeout       time.Duration
}

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case KindUnexpectedAction:
		return fmt.Sprintf("unexpected message with action=%s", e.Action)
	case KindNoSuccess:
		return "authorization response reported success=false"
	case KindDuplicateCorrelation:
		return fmt.Sprintf("listener for correlation id %d already registered", e.CorrelationID)
	case KindNoAck:
		return fmt.Sprintf("got %s, not \"ack\"", e.Action)
	case KindNoCorrelation:
		return fmt.Sprintf("no listener registered for correlation id %d", e.CorrelationID)
	case KindRuntimeError:
		if e.Payload == nil {
			return "host runtime error: response has no payload"
		}

		return fmt.Sprintf("host runtime error: %v", e.Payload)
	case KindTimeout:
		return fmt.Sprintf("request timeout: %s (id %d) after %s", e.Action, e.CorrelationID, e.Timeout)
	default:
		return fmt.Sprintf("protocol error (%s)", e.Kind)
	}
}

// Unwrap returns the sentinel error for the Kind.
func (e *ProtocolError) Unwrap() error {
	switch e.Kind {
	case KindUnexpectedAction:
		return ErrUnexpectedAction
	case KindNoSuccess:
		return ErrNoSuccess
	case KindDuplicateCorrelation:
		return ErrDuplicateCorrelation
	case KindNoAck:
		return ErrNoAck
	case KindNoCorrelation:
		return ErrNoCorrelation
	case KindRuntimeError:
		return ErrRuntime
	case KindTimeout:
		return ErrRequestTimeout
	default:
		return nil
	}
}

// IsHostwireError implements HostwireError.
func (e *ProtocolError) IsHostwireError() bool { return true }

// KindOf returns the Kind of the first ProtocolError in err's chain.
func KindOf(err error) (Kind, bool) {
	if pe, ok := errors.AsType[*ProtocolError](err); ok {
		return pe.Kind, true
	}

	return 0, false
}

// ConnectionError indicates failure to establish the wire connection.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsHostwireError implements HostwireError.
func (e *ConnectionError) IsHostwireError() bool { return true }

// ProcessError indicates a host process behind a subprocess wire failed.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("host process failed (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("host process failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsHostwireError implements HostwireError.
func (e *ProcessError) IsHostwireError() bool { return true }

// DecodeError indicates an inbound frame could not be decoded into a message.
// This error preserves the original raw data that failed to decode.
type DecodeError struct {
	RawData []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode inbound frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsHostwireError implements HostwireError.
func (e *DecodeError) IsHostwireError() bool { return true }
