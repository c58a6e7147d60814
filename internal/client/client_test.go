package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/hostwire-go/internal/config"
	"github.com/wagiedev/hostwire-go/internal/errors"
	"github.com/wagiedev/hostwire-go/internal/hostsim"
	"github.com/wagiedev/hostwire-go/internal/message"
	"github.com/wagiedev/hostwire-go/internal/token"
	"github.com/wagiedev/hostwire-go/internal/wire"
)

type testHost struct {
	*hostsim.Host

	options *config.Options
}

// newTestHost serves a simulated host on a fresh pipe network and returns
// options that reach it.
func newTestHost(t *testing.T, codecName string) *testHost {
	t.Helper()

	codec, err := message.CodecByName(codecName)
	require.NoError(t, err)

	network := wire.NewNetwork()

	listener, err := network.Listen("host", codec)
	require.NoError(t, err)

	host := hostsim.New(slog.Default(), listener, t.TempDir())
	host.Handle("get-version", func(context.Context, map[string]any) (any, error) {
		return "9.61.38.41", nil
	})
	host.Handle("fail", func(context.Context, map[string]any) (any, error) {
		return nil, stderrors.New("window not found")
	})
	host.Handle("sleep", func(ctx context.Context, payload map[string]any) (any, error) {
		ms, _ := payload["ms"].(float64)

		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		return payload["tag"], nil
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

	return &testHost{
		Host: host,
		options: &config.Options{
			Logger:   slog.Default(),
			Address:  listener.Address(),
			Codec:    codecName,
			Wire:     PipeWire(network),
			Identity: config.Identity{Name: "client-test"},
		},
	}
}

func startClient(t *testing.T, options *config.Options) *Client {
	t.Helper()

	c := New()
	require.NoError(t, c.Start(context.Background(), options))
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestClient_StartAndSendAction(t *testing.T) {
	for _, codec := range []string{"json", "cbor"} {
		t.Run(codec, func(t *testing.T) {
			host := newTestHost(t, codec)
			c := startClient(t, host.options)

			require.NotEmpty(t, c.Token())
			require.Len(t, c.SessionID(), 26)
			require.NotEmpty(t, c.Identity().UUID)
			require.Equal(t, "client-test", c.Identity().Name)

			resp, err := c.SendAction(context.Background(), "get-version", nil)
			require.NoError(t, err)
			require.Equal(t, message.ActionAck, resp.Action)
			require.Equal(t, "9.61.38.41", resp.Data())
		})
	}
}

func TestClient_DefaultPersisterWritesTokenFile(t *testing.T) {
	host := newTestHost(t, "json")

	var file string

	writer := token.NewFileWriter(slog.Default())
	host.options.TokenPersister = token.PersistFunc(func(ctx context.Context, f, tok string) error {
		file = f

		return writer.Persist(ctx, f, tok)
	})

	c := startClient(t, host.options)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Equal(t, c.Token(), string(data))

	info, err := os.Stat(file)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestClient_HostFailures(t *testing.T) {
	host := newTestHost(t, "json")
	c := startClient(t, host.options)

	_, err := c.SendAction(context.Background(), "fail", nil)
	require.ErrorIs(t, err, errors.ErrRuntime)

	pe, ok := stderrors.AsType[*errors.ProtocolError](err)
	require.True(t, ok)
	require.Equal(t, "window not found", pe.Payload["data"])

	_, err = c.SendAction(context.Background(), "no-such-action", nil)
	require.ErrorIs(t, err, errors.ErrRuntime)

	// The client stays usable after failed requests.
	_, err = c.SendAction(context.Background(), "get-version", nil)
	require.NoError(t, err)
}

func TestClient_AuthorizationDenied(t *testing.T) {
	host := newTestHost(t, "json")
	host.DenyAuthorization(true)

	c := New()
	defer c.Close()

	err := c.Start(context.Background(), host.options)
	require.ErrorIs(t, err, errors.ErrNoSuccess)

	_, err = c.SendAction(context.Background(), "get-version", nil)
	require.ErrorIs(t, err, errors.ErrClientNotConnected)
}

func TestClient_CustomPersisterFailureAbortsStart(t *testing.T) {
	host := newTestHost(t, "json")
	host.options.TokenPersister = token.PersistFunc(func(context.Context, string, string) error {
		return os.ErrPermission
	})

	c := New()
	defer c.Close()

	require.ErrorIs(t, c.Start(context.Background(), host.options), os.ErrPermission)
}

func TestClient_Lifecycle(t *testing.T) {
	host := newTestHost(t, "json")

	c := New()

	_, err := c.SendAction(context.Background(), "get-version", nil)
	require.ErrorIs(t, err, errors.ErrClientNotConnected)

	require.NoError(t, c.Start(context.Background(), host.options))
	require.ErrorIs(t, c.Start(context.Background(), host.options), errors.ErrClientAlreadyConnected)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}

	require.ErrorIs(t, c.Start(context.Background(), host.options), errors.ErrClientClosed)
	require.NoError(t, c.Err())
}

func TestClient_StartErrors(t *testing.T) {
	c := New()
	require.ErrorContains(t, c.Start(context.Background(), nil), "no host address")

	c = New()
	require.ErrorContains(t, c.Start(context.Background(), &config.Options{Address: "http://example"}), "unsupported address")

	c = New()
	require.ErrorIs(t, c.Start(context.Background(), &config.Options{Address: "ws://x", Codec: "xml"}), errors.ErrUnknownCodec)

	host := newTestHost(t, "json")
	host.options.Address = "pipe://nobody"

	c = New()

	_, ok := stderrors.AsType[*errors.ConnectionError](c.Start(context.Background(), host.options))
	require.True(t, ok)
}

func TestClient_SendBatch(t *testing.T) {
	host := newTestHost(t, "json")
	c := startClient(t, host.options)

	// Later requests finish first, so responses arrive out of order.
	requests := make([]Request, 5)
	for i := range requests {
		requests[i] = Request{
			Action:  "sleep",
			Payload: map[string]any{"ms": float64((5 - i) * 10), "tag": fmt.Sprintf("r%d", i)},
		}
	}

	responses, err := c.SendBatch(context.Background(), requests)
	require.NoError(t, err)
	require.Len(t, responses, 5)

	for i, resp := range responses {
		require.Equal(t, fmt.Sprintf("r%d", i), resp.Data())
	}
}

func TestClient_SendBatchFailure(t *testing.T) {
	host := newTestHost(t, "json")
	c := startClient(t, host.options)

	_, err := c.SendBatch(context.Background(), []Request{
		{Action: "get-version"},
		{Action: "fail"},
	})
	require.ErrorIs(t, err, errors.ErrRuntime)
	require.ErrorContains(t, err, "batch request 1 (fail)")
}

func TestClient_ConcurrentActions(t *testing.T) {
	host := newTestHost(t, "json")
	c := startClient(t, host.options)

	var wg sync.WaitGroup

	for i := range 20 {
		wg.Go(func() {
			resp, err := c.SendAction(context.Background(), "sleep", map[string]any{
				"ms":  float64(i % 3),
				"tag": fmt.Sprintf("t%d", i),
			})
			if assert.NoError(t, err) {
				assert.Equal(t, fmt.Sprintf("t%d", i), resp.Data())
			}
		})
	}

	wg.Wait()
}

func TestClient_HandlersAndEvents(t *testing.T) {
	host := newTestHost(t, "json")

	var (
		mu       sync.Mutex
		fromOpts []string
		fromPre  []string
	)

	host.options.Handlers = []message.Handler{
		func(msg *message.Message) (bool, error) {
			mu.Lock()
			defer mu.Unlock()

			fromOpts = append(fromOpts, msg.Action)

			return false, nil
		},
	}

	c := New()
	c.RegisterMessageHandler(func(msg *message.Message) (bool, error) {
		mu.Lock()
		defer mu.Unlock()

		fromPre = append(fromPre, msg.Action)

		return false, nil
	})

	require.NoError(t, c.Start(context.Background(), host.options))
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, host.Broadcast(message.NewEvent("window-moved", map[string]any{"x": 3.0})))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for msg, err := range c.Events(ctx) {
		require.NoError(t, err)
		require.Equal(t, "window-moved", msg.Action)
		require.Equal(t, 3.0, msg.Payload["x"])

		break
	}

	// Both handlers saw the handshake replies and the event.
	want := []string{
		message.ActionExternalAuthorizationResponse,
		message.ActionAuthorizationResponse,
		"window-moved",
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(fromOpts) == len(want) && len(fromPre) == len(want)
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, want, fromOpts)
	require.Equal(t, want, fromPre)
}

func TestClient_Disconnect(t *testing.T) {
	host := newTestHost(t, "json")

	disconnected := make(chan error, 1)
	host.options.OnDisconnect = func(err error) { disconnected <- err }

	c := startClient(t, host.options)

	host.DisconnectAll()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the disconnect")
	}

	require.ErrorIs(t, c.Err(), errors.ErrWireClosed)
	require.ErrorIs(t, <-disconnected, errors.ErrWireClosed)

	_, err := c.SendAction(context.Background(), "get-version", nil)
	require.ErrorIs(t, err, errors.ErrWireNotConnected)

	for _, err := range c.Events(context.Background()) {
		require.ErrorIs(t, err, errors.ErrWireClosed)
	}
}

func TestDefaultWire(t *testing.T) {
	for _, address := range []string{"ws://127.0.0.1:9696", "wss://host/ws", "exec:///usr/bin/host"} {
		f, err := DefaultWire(address)
		require.NoError(t, err, address)
		require.NotNil(t, f)
	}

	_, err := DefaultWire("pipe://host")
	require.Error(t, err)
}
