package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProtocolError_UnwrapsToKindSentinel(t *testing.T) {
	tests := []struct {
		kind     Kind
		sentinel error
	}{
		{KindUnexpectedAction, ErrUnexpectedAction},
		{KindNoSuccess, ErrNoSuccess},
		{KindDuplicateCorrelation, ErrDuplicateCorrelation},
		{KindNoAck, ErrNoAck},
		{KindNoCorrelation, ErrNoCorrelation},
		{KindRuntimeError, ErrRuntime},
		{KindTimeout, ErrRequestTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := &ProtocolError{Kind: tt.kind}

			require.ErrorIs(t, err, tt.sentinel)
			require.True(t, err.IsHostwireError())

			kind, ok := KindOf(err)
			require.True(t, ok)
			require.Equal(t, tt.kind, kind)
		})
	}
}

func TestProtocolError_Messages(t *testing.T) {
	require.Equal(t,
		"unexpected message with action=something-else",
		(&ProtocolError{Kind: KindUnexpectedAction, Action: "something-else"}).Error(),
	)
	require.Equal(t,
		`got nack, not "ack"`,
		(&ProtocolError{Kind: KindNoAck, Action: "nack"}).Error(),
	)
	require.Equal(t,
		"no listener registered for correlation id 7",
		(&ProtocolError{Kind: KindNoCorrelation, CorrelationID: 7}).Error(),
	)
	require.Equal(t,
		"host runtime error: response has no payload",
		(&ProtocolError{Kind: KindRuntimeError}).Error(),
	)
	require.Equal(t,
		"request timeout: get-version (id 3) after 2s",
		(&ProtocolError{Kind: KindTimeout, Action: "get-version", CorrelationID: 3, Timeout: 2 * time.Second}).Error(),
	)
}

func TestKindOf_WrappedAndForeign(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), &ProtocolError{Kind: KindNoAck})

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	require.Equal(t, KindNoAck, kind)

	_, ok = KindOf(errors.New("plain"))
	require.False(t, ok)
}

func TestKind_StringUnknown(t *testing.T) {
	require.Equal(t, "kind(42)", Kind(42).String())
}

func TestConnectionError(t *testing.T) {
	root := errors.New("dial tcp: connection refused")
	err := &ConnectionError{Address: "ws://127.0.0.1:9696", Err: root}

	require.Equal(t, "failed to connect to ws://127.0.0.1:9696: dial tcp: connection refused", err.Error())
	require.ErrorIs(t, err, root)
	require.True(t, err.IsHostwireError())
}

func TestProcessError_WithUnderlyingError(t *testing.T) {
	root := errors.New("signal: killed")
	err := &ProcessError{ExitCode: 9, Stderr: "ignored when Err is set", Err: root}

	require.Equal(t, "host process failed (exit 9): signal: killed", err.Error())
	require.ErrorIs(t, err, root)
}

func TestProcessError_WithStderrOnly(t *testing.T) {
	err := &ProcessError{ExitCode: 2, Stderr: "bad flag"}

	require.Equal(t, "host process failed (exit 2): bad flag", err.Error())
	require.NoError(t, err.Unwrap())
}

func TestDecodeError(t *testing.T) {
	root := errors.New("unexpected end of JSON input")
	err := &DecodeError{RawData: []byte("{"), Err: root}

	require.Equal(t, "failed to decode inbound frame: unexpected end of JSON input", err.Error())
	require.ErrorIs(t, err, root)
	require.Equal(t, []byte("{"), err.RawData)
}
