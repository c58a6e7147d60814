package metrics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/hostwire-go/internal/errors"
)

func TestRecorder_RecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.RequestStarted("get-version")
	r.RequestStarted("get-version")
	r.RequestFinished("get-version", nil, 10*time.Millisecond)
	r.RequestFinished("get-version", &errors.ProtocolError{Kind: errors.KindNoAck, Action: "nack"}, time.Millisecond)
	r.PendingChanged(3)
	r.HandshakeFinished(nil)

	require.InDelta(t, 2, testutil.ToFloat64(r.requests.WithLabelValues("get-version")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(r.responses.WithLabelValues("get-version", "ok")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(r.responses.WithLabelValues("get-version", "no_ack")), 0)
	require.InDelta(t, 3, testutil.ToFloat64(r.pending), 0)
	require.InDelta(t, 1, testutil.ToFloat64(r.handshakes.WithLabelValues("ok")), 0)
	require.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestNewRecorder_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	a := NewRecorder(reg)
	b := NewRecorder(reg)

	a.RequestStarted("x")
	b.RequestStarted("x")

	require.InDelta(t, 2, testutil.ToFloat64(a.requests.WithLabelValues("x")), 0)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&errors.ProtocolError{Kind: errors.KindTimeout}, "timeout"},
		{fmt.Errorf("send: %w", &errors.ProtocolError{Kind: errors.KindRuntimeError}), "runtime_error"},
		{context.Canceled, "canceled"},
		{fmt.Errorf("%w: eof", errors.ErrWireClosed), "wire_closed"},
		{errors.ErrControllerStopped, "stopped"},
		{errors.ErrListenerBusy, "listener_busy"},
		{fmt.Errorf("boom"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}
