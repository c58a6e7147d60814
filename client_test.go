package hostwire_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	hostwire "github.com/wagiedev/hostwire-go"
	"github.com/wagiedev/hostwire-go/internal/hostsim"
	"github.com/wagiedev/hostwire-go/internal/message"
)

// startHost serves a simulated host on a new network and returns where to
// reach it.
func startHost(t *testing.T) (*hostwire.Network, string) {
	t.Helper()

	network, address, _ := startHostWithCodec(t, message.JSON())

	return network, address
}

func startHostWithCodec(t *testing.T, codec message.Codec) (*hostwire.Network, string, *hostsim.Host) {
	t.Helper()

	network := hostwire.NewNetwork()

	listener, err := network.Listen("host", codec)
	require.NoError(t, err)

	host := hostsim.New(slog.Default(), listener, t.TempDir())
	host.Handle("get-version", func(context.Context, map[string]any) (any, error) {
		return "9.61.38.41", nil
	})
	host.Handle("close-window", func(_ context.Context, payload map[string]any) (any, error) {
		if payload["id"] == nil {
			return nil, errors.New("missing window id")
		}

		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})

	go func() {
		defer close(served)

		_ = host.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		listener.Close()
		<-served
	})

	return network, listener.Address(), host
}

func TestClient_EndToEnd(t *testing.T) {
	network, address := startHost(t)

	client := hostwire.NewClient()
	t.Cleanup(func() { _ = client.Close() })

	err := client.Start(context.Background(),
		hostwire.WithLogger(slog.Default()),
		hostwire.WithPipe(network, address),
		hostwire.WithIdentity(hostwire.NewIdentity("e2e")),
		hostwire.WithRequestTimeout(5*time.Second),
		hostwire.WithHandshakeTimeout(5*time.Second),
	)
	require.NoError(t, err)
	require.NotEmpty(t, client.Token())
	require.Equal(t, "e2e", client.Identity().Name)

	resp, err := client.SendAction(context.Background(), "get-version", nil)
	require.NoError(t, err)
	require.Equal(t, "9.61.38.41", resp.Data())

	_, err = client.SendAction(context.Background(), "close-window", nil)
	require.ErrorIs(t, err, hostwire.ErrRuntime)

	kind, ok := hostwire.KindOf(err)
	require.True(t, ok)
	require.Equal(t, hostwire.KindRuntimeError, kind)

	responses, err := client.SendBatch(context.Background(), []hostwire.Request{
		{Action: "get-version"},
		{Action: "close-window", Payload: map[string]any{"id": 7.0}},
	})
	require.NoError(t, err)
	require.Len(t, responses, 2)
	require.True(t, responses[1].Success())
}

func TestClient_CBOR(t *testing.T) {
	codec, err := message.CBOR()
	require.NoError(t, err)

	network, address, _ := startHostWithCodec(t, codec)

	client := hostwire.NewClient()
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Start(context.Background(),
		hostwire.WithPipe(network, address),
		hostwire.WithCodec("cbor"),
	))

	resp, err := client.SendAction(context.Background(), "get-version", nil)
	require.NoError(t, err)
	require.Equal(t, "9.61.38.41", resp.Data())
}

func TestClient_CustomPersister(t *testing.T) {
	network, address := startHost(t)

	var files []string

	client := hostwire.NewClient()
	t.Cleanup(func() { _ = client.Close() })

	// The host checks the file, so a persister that writes nothing is denied.
	err := client.Start(context.Background(),
		hostwire.WithPipe(network, address),
		hostwire.WithTokenPersistFunc(func(_ context.Context, file, _ string) error {
			files = append(files, file)

			return nil
		}),
	)
	require.ErrorIs(t, err, hostwire.ErrNoSuccess)
	require.Len(t, files, 1)
}

func TestClient_EventsAndHandlers(t *testing.T) {
	network, address, host := startHostWithCodec(t, message.JSON())

	handled := make(chan string, 8)

	client := hostwire.NewClient()
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Start(context.Background(),
		hostwire.WithPipe(network, address),
		hostwire.WithHandler(func(msg *hostwire.Message) (bool, error) {
			handled <- msg.Action

			return false, nil
		}),
	))

	require.Equal(t, hostwire.ActionExternalAuthorizationResponse, <-handled)
	require.Equal(t, hostwire.ActionAuthorizationResponse, <-handled)

	require.NoError(t, host.Broadcast(hostwire.NewEvent("theme-changed", map[string]any{"theme": "dark"})))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for msg, err := range client.Events(ctx) {
		require.NoError(t, err)
		require.Equal(t, "theme-changed", msg.Action)
		require.Equal(t, "dark", msg.Payload["theme"])

		break
	}

	require.Equal(t, "theme-changed", <-handled)
}

func TestClient_DisconnectCallback(t *testing.T) {
	network, address, host := startHostWithCodec(t, message.JSON())

	disconnected := make(chan error, 1)

	client := hostwire.NewClient()
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Start(context.Background(),
		hostwire.WithPipe(network, address),
		hostwire.WithOnDisconnect(func(err error) { disconnected <- err }),
	))

	host.DisconnectAll()

	select {
	case err := <-disconnected:
		require.ErrorIs(t, err, hostwire.ErrWireClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback not called")
	}

	<-client.Done()
	require.ErrorIs(t, client.Err(), hostwire.ErrWireClosed)
}

func TestClient_Metrics(t *testing.T) {
	network, address := startHost(t)
	reg := prometheus.NewRegistry()

	client := hostwire.NewClient()
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Start(context.Background(),
		hostwire.WithPipe(network, address),
		hostwire.WithMetrics(reg),
	))

	_, err := client.SendAction(context.Background(), "get-version", nil)
	require.NoError(t, err)

	_, err = client.SendAction(context.Background(), "close-window", nil)
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "hostwire_requests_completed_total")
	require.NoError(t, err)
	require.Positive(t, count)

	count, err = testutil.GatherAndCount(reg, "hostwire_handshake_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestClient_NotStarted(t *testing.T) {
	client := hostwire.NewClient()

	_, err := client.SendAction(context.Background(), "get-version", nil)
	require.ErrorIs(t, err, hostwire.ErrClientNotConnected)

	require.NoError(t, client.Close())
	require.ErrorIs(t, client.Start(context.Background()), hostwire.ErrClientClosed)
}

func TestDefaultWire(t *testing.T) {
	_, err := hostwire.DefaultWire("ws://127.0.0.1:9696")
	require.NoError(t, err)

	_, err = hostwire.DefaultWire("tcp://127.0.0.1:9696")
	require.Error(t, err)

	require.Contains(t, hostwire.CodecNames(), "cbor")
}
