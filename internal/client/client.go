package client

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/hostwire-go/internal/config"
	"github.com/wagiedev/hostwire-go/internal/errors"
	"github.com/wagiedev/hostwire-go/internal/message"
	"github.com/wagiedev/hostwire-go/internal/protocol"
	"github.com/wagiedev/hostwire-go/internal/subprocess"
	"github.com/wagiedev/hostwire-go/internal/token"
	"github.com/wagiedev/hostwire-go/internal/wire"
)

const (
	// defaultEventBufferSize is the buffer size for the events channel.
	defaultEventBufferSize = 64

	// defaultBatchConcurrency bounds in-flight requests of one SendBatch.
	defaultBatchConcurrency = 16
)

// Request is one entry of a batch.
type Request struct {
	Action  string
	Payload map[string]any
}

// Client implements the hostwire client interface.
type Client struct {
	log        *slog.Logger
	options    *config.Options
	controller *protocol.Controller
	session    *protocol.Session
	identity   config.Identity

	// Handlers registered before Start
	preHandlers []message.Handler

	// Unsolicited messages for Events
	events chan *message.Message

	// Fatal error storage
	errMu    sync.RWMutex
	fatalErr error

	// Errgroup for goroutine management
	eg *errgroup.Group

	// Lifecycle management
	mu         sync.Mutex
	done       chan struct{} // closed by Close
	finished   chan struct{} // closed by Close or on disconnect
	finishOnce sync.Once
	connected  bool
	closed     bool
	closeOnce  sync.Once
	started    atomic.Bool
}

// New creates a new client.
//
// The client is not connected after creation. Call Start() with options to connect.
func New() *Client {
	return &Client{
		log:      slog.New(slog.DiscardHandler),
		events:   make(chan *message.Message, defaultEventBufferSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// setFatalError stores the first fatal error encountered.
func (c *Client) setFatalError(err error) {
	if err == nil {
		return
	}

	c.errMu.Lock()
	defer c.errMu.Unlock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}
}

// Err returns the error that ended the connection, or nil.
func (c *Client) Err() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()

	return c.fatalErr
}

func (c *Client) finish() {
	c.finishOnce.Do(func() { close(c.finished) })
}

// Done returns a channel that is closed when the client is closed or the
// connection to the host is lost.
func (c *Client) Done() <-chan struct{} {
	return c.finished
}

// isConnected returns true if the client is connected.
// This method is safe to call from any goroutine.
func (c *Client) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

// DefaultWire selects a wire for address by its scheme:
//   - ws:// and wss:// use a websocket
//   - exec:// spawns the host as a subprocess
//
// Pipe addresses need a Network and must be configured with Options.Wire.
func DefaultWire(address string) (config.WireFactory, error) {
	switch {
	case strings.HasPrefix(address, "ws://"), strings.HasPrefix(address, "wss://"):
		return func(log *slog.Logger, codec message.Codec, onMessage func(*message.Message)) config.Wire {
			return wire.NewWebSocket(log, codec, onMessage)
		}, nil
	case strings.HasPrefix(address, subprocess.Scheme):
		return func(log *slog.Logger, codec message.Codec, onMessage func(*message.Message)) config.Wire {
			return subprocess.NewProcess(log, codec, onMessage)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported address %q: use ws://, wss:// or exec://, or set a custom wire", address)
	}
}

// PipeWire returns a factory for pipe wires on network.
func PipeWire(network *wire.Network) config.WireFactory {
	return func(log *slog.Logger, codec message.Codec, onMessage func(*message.Message)) config.Wire {
		return wire.NewPipe(log, network, codec, onMessage)
	}
}

// initializeCore connects the wire and runs the handshake.
// Caller must hold c.mu lock. Lock is held on return.
func (c *Client) initializeCore(ctx context.Context, options *config.Options) error {
	if options == nil {
		options = &config.Options{}
	}

	log := options.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	c.log = log.With("component", "client")
	c.options = options

	if options.Address == "" {
		return fmt.Errorf("no host address configured")
	}

	codec, err := message.CodecByName(options.Codec)
	if err != nil {
		return err
	}

	newWire := options.Wire
	if newWire == nil {
		newWire, err = DefaultWire(options.Address)
		if err != nil {
			return err
		}
	} else {
		c.log.Debug("Using injected custom wire")
	}

	c.identity = options.Identity
	if c.identity.UUID == "" {
		c.identity = message.NewIdentity(c.identity.Name)
	}

	var persister config.TokenPersister = options.TokenPersister
	if persister == nil {
		persister = token.NewFileWriter(c.log)
	}

	controller := protocol.NewController(c.log, func(onMessage protocol.InboundFunc) protocol.Wire {
		return newWire(c.log, codec, onMessage)
	}, &protocol.Config{
		RequestTimeout: options.EffectiveRequestTimeout(),
		Observer:       options.Observer,
		OnError:        options.OnProtocolError,
		OnDisconnect:   c.handleDisconnect,
	})

	for _, h := range options.Handlers {
		controller.RegisterMessageHandler(h)
	}

	for _, h := range c.preHandlers {
		controller.RegisterMessageHandler(h)
	}

	c.preHandlers = nil

	if err := controller.Connect(ctx, options.Address); err != nil {
		controller.Stop()

		return err
	}

	session := protocol.NewSession(c.log, controller, c.identity, persister)

	hsCtx, cancel := context.WithTimeout(ctx, options.EffectiveHandshakeTimeout())
	defer cancel()

	if _, err := session.Authenticate(hsCtx); err != nil {
		controller.Stop()

		return fmt.Errorf("authenticate: %w", err)
	}

	controller.RegisterMessageHandler(c.forwardEvent)

	c.controller = controller
	c.session = session

	return nil
}

// Start connects to the host and completes the handshake.
//
// The client is usable only once Start returns nil. Returns ConnectionError
// if the wire cannot connect, or a ProtocolError if the handshake fails.
func (c *Client) Start(ctx context.Context, options *config.Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrClientClosed
	}

	if c.connected {
		return errors.ErrClientAlreadyConnected
	}

	if err := c.initializeCore(ctx, options); err != nil {
		return err
	}

	// Background goroutines outlive ctx, which only bounds connecting.
	c.eg = &errgroup.Group{}

	c.eg.Go(c.watch)

	c.connected = true
	c.started.Store(true)

	// A drop between the handshake and this point was not reported.
	if !c.controller.Connected() {
		c.handleDisconnect(errors.ErrWireClosed)
	}

	c.log.Info("Client started successfully", "session_id", c.controller.SessionID())

	return nil
}

// watch waits for the client to finish and logs why.
func (c *Client) watch() error {
	select {
	case <-c.done:
		return nil
	case <-c.finished:
		if err := c.Err(); err != nil {
			c.log.Warn("Connection to host lost", "error", err)
		}

		return nil
	}
}

// handleDisconnect runs on the controller's watcher goroutine; it must not
// take c.mu, which Start holds while the controller is being torn down.
func (c *Client) handleDisconnect(err error) {
	if !c.started.Load() {
		return
	}

	c.setFatalError(err)
	c.finish()

	if c.options != nil && c.options.OnDisconnect != nil {
		c.options.OnDisconnect(err)
	}
}

// forwardEvent queues unsolicited messages for Events.
func (c *Client) forwardEvent(msg *message.Message) (bool, error) {
	if msg.IsCorrelated() {
		return false, nil
	}

	select {
	case c.events <- msg:
		return true, nil
	default:
		c.log.Warn("Event buffer full, dropping message", "action", msg.Action)

		return false, nil
	}
}

// SendAction sends a correlated request and waits for the host's ack.
func (c *Client) SendAction(ctx context.Context, action string, payload map[string]any) (*message.Message, error) {
	if !c.isConnected() {
		return nil, errors.ErrClientNotConnected
	}

	return c.controller.SendAction(ctx, action, payload)
}

// SendUncorrelated sends a request whose reply is the next unsolicited message.
func (c *Client) SendUncorrelated(ctx context.Context, action string, payload map[string]any) (*message.Message, error) {
	if !c.isConnected() {
		return nil, errors.ErrClientNotConnected
	}

	return c.controller.SendUncorrelated(ctx, action, payload)
}

// SendBatch sends every request concurrently and returns the responses in
// request order. The first failure cancels the requests still in flight and
// is returned.
func (c *Client) SendBatch(ctx context.Context, requests []Request) ([]*message.Message, error) {
	if !c.isConnected() {
		return nil, errors.ErrClientNotConnected
	}

	responses := make([]*message.Message, len(requests))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(defaultBatchConcurrency)

	for i, req := range requests {
		eg.Go(func() error {
			resp, err := c.controller.SendAction(egCtx, req.Action, req.Payload)
			if err != nil {
				return fmt.Errorf("batch request %d (%s): %w", i, req.Action, err)
			}

			responses[i] = resp

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return responses, nil
}

// RegisterMessageHandler adds h to the front of the handler chain. Handlers
// registered before Start are installed when the client connects.
func (c *Client) RegisterMessageHandler(h message.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.controller == nil {
		c.preHandlers = append(c.preHandlers, h)

		return
	}

	c.controller.RegisterMessageHandler(h)
}

// Events returns an iterator over unsolicited host messages received after
// the handshake. It ends when ctx is done or the client finishes.
func (c *Client) Events(ctx context.Context) iter.Seq2[*message.Message, error] {
	return func(yield func(*message.Message, error) bool) {
		if !c.isConnected() {
			yield(nil, errors.ErrClientNotConnected)

			return
		}

		for {
			select {
			case msg := <-c.events:
				if !yield(msg, nil) {
					return
				}

			case <-c.finished:
				if err := c.Err(); err != nil {
					yield(nil, err)
				}

				return

			case <-ctx.Done():
				yield(nil, ctx.Err())

				return
			}
		}
	}
}

// Token returns the token granted by the handshake.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ""
	}

	return c.session.Token()
}

// SessionID returns the ULID identifying this connection in logs.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.controller == nil {
		return ""
	}

	return c.controller.SessionID()
}

// Identity returns the identity presented to the host.
func (c *Client) Identity() config.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.identity
}

// Close terminates the connection and cleans up resources.
//
// After Close(), the client cannot be reused - create a new client with New().
// This method is safe to call multiple times.
func (c *Client) Close() error {
	var closeErr error

	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		wasConnected := c.connected
		c.connected = false
		c.mu.Unlock()

		close(c.done)
		c.finish()

		if !wasConnected {
			return
		}

		c.log.Info("Closing client")

		c.controller.Stop()

		if c.eg != nil {
			closeErr = c.eg.Wait()
		}

		c.log.Info("Client closed")
	})

	return closeErr
}
