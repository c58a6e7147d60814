package hostwire_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	hostwire "github.com/wagiedev/hostwire-go"
)

func TestWithClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hostwire.WithClient(ctx, func(hostwire.Client) error {
		t.Error("callback should not be called with cancelled context")

		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithClient_CallbackError(t *testing.T) {
	network, address := startHost(t)
	want := errors.New("callback failed")

	var seen hostwire.Client

	err := hostwire.WithClient(context.Background(), func(c hostwire.Client) error {
		seen = c

		_, err := c.SendAction(context.Background(), "get-version", nil)
		require.NoError(t, err)

		return want
	}, hostwire.WithPipe(network, address))
	require.ErrorIs(t, err, want)

	// The client was closed on the way out.
	<-seen.Done()
	require.NoError(t, seen.Err())
}

func TestWithClient_StartFailure(t *testing.T) {
	err := hostwire.WithClient(context.Background(), func(hostwire.Client) error {
		t.Error("callback should not run when Start fails")

		return nil
	}, hostwire.WithPipe(hostwire.NewNetwork(), "pipe://nobody"))
	require.ErrorContains(t, err, "failed to start client")

	var connErr *hostwire.ConnectionError
	require.ErrorAs(t, err, &connErr)
}
