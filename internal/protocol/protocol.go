package protocol

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/hostwire-go/internal/errors"
	"github.com/wagiedev/hostwire-go/internal/message"
)

// Config tunes a Controller. A nil Config uses the defaults.
type Config struct {
	// RequestTimeout bounds how long a request may stay pending.
	// Zero disables the deadline; the context still applies.
	RequestTimeout time.Duration

	// Observer receives request lifecycle notifications. May be nil.
	Observer Observer

	// OnError receives errors raised while dispatching inbound messages,
	// such as a response whose correlation id matches nothing. May be nil.
	OnError func(err error)

	// OnDisconnect is called after the wire connection ends and every
	// pending request has been failed. May be nil.
	OnDisconnect func(err error)
}

// Controller correlates requests sent over a Wire with the responses the
// host sends back.
//
// The Controller handles:
//   - Issuing correlation ids from a per-instance counter starting at 0
//   - Registering a pending entry per request and consuming it exactly once
//   - Failing requests that outlive RequestTimeout
//   - Routing the next uncorrelated message to a single-shot listener
//   - Broadcasting every inbound message to the handler chain
//
// The counter survives reconnects: ids are never reused by one Controller.
type Controller struct {
	log            *slog.Logger
	wire           Wire
	sessionID      string
	requestTimeout time.Duration
	observer       Observer
	onError        func(error)
	onDisconnect   func(error)

	// Correlation state
	mu        sync.Mutex
	nextID    uint64
	pending   map[uint64]*pendingRequest
	listener  *pendingRequest
	connected bool
	stopped   bool

	// Handler chain, most recently registered first. The slice is replaced,
	// never mutated, so readers may keep a snapshot.
	handlersMu sync.RWMutex
	handlers   []message.Handler

	// Lifecycle management
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewController creates a new protocol controller.
//
// newWire is called once with the Controller's inbound callback; the
// returned wire is owned by the Controller from then on. The built-in
// correlation handler is the first entry of the handler chain.
func NewController(log *slog.Logger, newWire WireFactory, cfg *Config) *Controller {
	if cfg == nil {
		cfg = &Config{}
	}

	observer := cfg.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	sessionID := ulid.Make().String()

	c := &Controller{
		log:            log.With("component", "protocol", "session_id", sessionID),
		sessionID:      sessionID,
		requestTimeout: cfg.RequestTimeout,
		observer:       observer,
		onError:        cfg.OnError,
		onDisconnect:   cfg.OnDisconnect,
		pending:        make(map[uint64]*pendingRequest, 16),
		done:           make(chan struct{}),
	}

	c.handlers = []message.Handler{c.handleMessage}
	c.wire = newWire(c.onMessage)

	return c
}

// SessionID returns the ULID identifying this Controller in logs.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Done returns a channel that is closed when the controller stops.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Connected reports whether the wire currently has an open connection.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

// Pending returns the number of correlated requests awaiting a response.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}

// Connect opens the wire to address and starts watching it for disconnects.
//
// A Controller may be connected again after its wire dropped; the
// correlation counter carries on from where it was.
func (c *Controller) Connect(ctx context.Context, address string) error {
	c.mu.Lock()

	if c.stopped {
		c.mu.Unlock()

		return errors.ErrControllerStopped
	}

	if c.connected {
		c.mu.Unlock()

		return errors.ErrWireAlreadyConnected
	}

	c.connected = true
	c.mu.Unlock()

	c.log.Debug("Connecting wire", "address", address)

	if err := c.wire.Connect(ctx, address); err != nil {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		c.log.Error("Failed to connect wire", "address", address, "error", err)

		return fmt.Errorf("connect wire: %w", err)
	}

	// Stop may have run while the wire was connecting.
	c.mu.Lock()

	if c.stopped {
		c.mu.Unlock()

		if err := c.wire.Close(); err != nil {
			c.log.Debug("Wire close returned error", "error", err)
		}

		return errors.ErrControllerStopped
	}

	wireDone := c.wire.Done()

	c.wg.Go(func() {
		c.watchWire(wireDone)
	})

	c.mu.Unlock()

	c.log.Info("Wire connected", "address", address)

	return nil
}

// watchWire fails everything pending once the connection ends.
func (c *Controller) watchWire(wireDone <-chan struct{}) {
	select {
	case <-wireDone:
	case <-c.done:
		return
	}

	err := errors.ErrWireClosed
	if cause := c.wire.Err(); cause != nil {
		err = fmt.Errorf("%w: %w", errors.ErrWireClosed, cause)
	}

	c.mu.Lock()

	if c.stopped {
		c.mu.Unlock()

		return
	}

	c.connected = false
	failed := c.drainLocked()
	c.mu.Unlock()

	for _, p := range failed {
		p.complete(nil, err)
	}

	c.log.Warn("Wire disconnected", "error", err, "failed_requests", len(failed))

	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
}

// Stop fails every pending request with ErrControllerStopped, closes the
// wire and waits for background goroutines. Safe to call multiple times.
func (c *Controller) Stop() {
	c.closeOnce.Do(func() {
		c.log.Debug("Stopping protocol controller")

		c.mu.Lock()
		c.stopped = true
		c.connected = false
		failed := c.drainLocked()
		c.mu.Unlock()

		close(c.done)

		for _, p := range failed {
			p.complete(nil, errors.ErrControllerStopped)
		}

		if err := c.wire.Close(); err != nil {
			c.log.Debug("Wire close returned error", "error", err)
		}
	})

	c.wg.Wait()
	c.log.Info("Protocol controller stopped")
}

// drainLocked empties the table and the uncorrelated slot. Caller holds c.mu.
func (c *Controller) drainLocked() []*pendingRequest {
	failed := make([]*pendingRequest, 0, len(c.pending)+1)
	for id, p := range c.pending {
		failed = append(failed, p)
		delete(c.pending, id)
	}

	if c.listener != nil {
		failed = append(failed, c.listener)
		c.listener = nil
	}

	c.observer.PendingChanged(0)

	return failed
}

// SendAction sends a correlated request and waits for its response.
//
// The request carries the next correlation id as its messageId. It completes
// with the inbound message whose correlationId equals that id:
//   - action other than "ack": ProtocolError KindNoAck
//   - missing payload or falsy payload.success: ProtocolError KindRuntimeError
//   - otherwise the full response message
//
// The request also fails on RequestTimeout (KindTimeout), on context
// cancellation, when the wire drops, or when the controller stops. In every
// case the pending entry is gone when SendAction returns.
func (c *Controller) SendAction(
	ctx context.Context,
	action string,
	payload map[string]any,
) (*message.Message, error) {
	req, err := c.register(action, false)
	if err != nil {
		return nil, err
	}

	return c.roundTrip(ctx, req, payload)
}

// SendUncorrelated sends a request whose reply is the next inbound message
// that carries no correlationId, whatever its action.
//
// Only one uncorrelated exchange may be outstanding; a second one fails with
// ErrListenerBusy. The request still consumes a correlation id so the host
// sees unique messageIds.
func (c *Controller) SendUncorrelated(
	ctx context.Context,
	action string,
	payload map[string]any,
) (*message.Message, error) {
	req, err := c.register(action, true)
	if err != nil {
		return nil, err
	}

	return c.roundTrip(ctx, req, payload)
}

// register issues the next id and records the pending request.
func (c *Controller) register(action string, uncorrelated bool) (*pendingRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil, errors.ErrControllerStopped
	}

	if !c.connected {
		return nil, errors.ErrWireNotConnected
	}

	if uncorrelated && c.listener != nil {
		return nil, errors.ErrListenerBusy
	}

	id := c.nextID
	c.nextID++

	req := newPendingRequest(id, action, uncorrelated)

	if uncorrelated {
		c.listener = req

		return req, nil
	}

	if _, exists := c.pending[id]; exists {
		return nil, &errors.ProtocolError{Kind: errors.KindDuplicateCorrelation, CorrelationID: id, Action: action}
	}

	c.pending[id] = req
	c.observer.PendingChanged(len(c.pending))

	return req, nil
}

// release removes req if it is still registered. It returns false when the
// request was already consumed, in which case its outcome is in req.result.
func (c *Controller) release(req *pendingRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.uncorrelated {
		if c.listener == req {
			c.listener = nil

			return true
		}

		return false
	}

	if cur, ok := c.pending[req.id]; ok && cur == req {
		delete(c.pending, req.id)
		c.observer.PendingChanged(len(c.pending))

		return true
	}

	return false
}

func (c *Controller) roundTrip(
	ctx context.Context,
	req *pendingRequest,
	payload map[string]any,
) (*message.Message, error) {
	c.observer.RequestStarted(req.action)

	c.log.Debug("Sending action",
		"action", req.action,
		"message_id", req.id,
		"uncorrelated", req.uncorrelated,
	)

	sendCtx := ctx
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc

		sendCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	if err := c.wire.Send(sendCtx, message.NewRequest(req.action, payload, req.id)); err != nil {
		if !c.release(req) {
			<-req.result
		}

		if ctx.Err() == nil && sendCtx.Err() != nil {
			c.log.Warn("Request timed out while sending", "action", req.action, "message_id", req.id, "timeout", c.requestTimeout)

			err = &errors.ProtocolError{
				Kind:          errors.KindTimeout,
				Action:        req.action,
				CorrelationID: req.id,
				Timeout:       c.requestTimeout,
			}
			c.observer.RequestFinished(req.action, err, time.Since(req.started))

			return nil, err
		}

		c.log.Error("Failed to send action", "action", req.action, "message_id", req.id, "error", err)
		c.observer.RequestFinished(req.action, err, time.Since(req.started))

		return nil, fmt.Errorf("send %s: %w", req.action, err)
	}

	resp, err := c.await(ctx, req)
	c.observer.RequestFinished(req.action, err, time.Since(req.started))

	return resp, err
}

// await blocks until req completes, times out, or ctx is cancelled.
func (c *Controller) await(ctx context.Context, req *pendingRequest) (*message.Message, error) {
	var deadline <-chan time.Time

	if c.requestTimeout > 0 {
		timer := time.NewTimer(c.requestTimeout - time.Since(req.started))
		defer timer.Stop()

		deadline = timer.C
	}

	select {
	case out := <-req.result:
		return out.msg, out.err

	case <-deadline:
		if !c.release(req) {
			out := <-req.result

			return out.msg, out.err
		}

		c.log.Warn("Request timed out", "action", req.action, "message_id", req.id, "timeout", c.requestTimeout)

		return nil, &errors.ProtocolError{
			Kind:          errors.KindTimeout,
			Action:        req.action,
			CorrelationID: req.id,
			Timeout:       c.requestTimeout,
		}

	case <-ctx.Done():
		if !c.release(req) {
			out := <-req.result

			return out.msg, out.err
		}

		c.log.Debug("Request cancelled", "action", req.action, "message_id", req.id)

		return nil, ctx.Err()
	}
}

// RegisterMessageHandler prepends handler to the handler chain, so the most
// recently registered handler runs first. Every handler sees every inbound
// message, including the built-in correlation handler.
func (c *Controller) RegisterMessageHandler(handler message.Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	chain := make([]message.Handler, 0, len(c.handlers)+1)
	chain = append(chain, handler)
	chain = append(chain, c.handlers...)
	c.handlers = chain

	c.log.Debug("Registered message handler", "handlers", len(chain))
}

// onMessage is the inbound callback handed to the wire.
func (c *Controller) onMessage(msg *message.Message) {
	if err := c.Dispatch(msg); err != nil && c.onError != nil {
		c.onError(err)
	}
}

// Dispatch runs every handler in the chain against msg, in chain order.
//
// A handler returning handled=true does not stop later handlers. Errors from
// all handlers are joined and returned.
func (c *Controller) Dispatch(msg *message.Message) error {
	c.handlersMu.RLock()
	chain := c.handlers
	c.handlersMu.RUnlock()

	var (
		handled bool
		errs    []error
	)

	for _, h := range chain {
		ok, err := h(msg)
		handled = handled || ok

		if err != nil {
			errs = append(errs, err)
		}
	}

	if !handled {
		c.log.Debug("Inbound message not handled", "message", msg.String())
	}

	if len(errs) == 0 {
		return nil
	}

	err := stderrors.Join(errs...)
	c.log.Warn("Inbound message handler failed", "message", msg.String(), "error", err)

	return err
}

// handleMessage is the built-in correlation handler.
func (c *Controller) handleMessage(msg *message.Message) (bool, error) {
	if !msg.IsCorrelated() {
		c.mu.Lock()
		listener := c.listener
		c.listener = nil
		c.mu.Unlock()

		if listener == nil {
			return false, nil
		}

		c.log.Debug("Delivering uncorrelated message", "action", msg.Action, "message_id", listener.id)
		listener.complete(msg, nil)

		return true, nil
	}

	if msg.CorrelationID == nil {
		c.log.Warn("Response carries a null correlation id", "action", msg.Action)

		return false, &errors.ProtocolError{
			Kind:   errors.KindNoCorrelation,
			Action: msg.Action,
		}
	}

	id := *msg.CorrelationID

	c.mu.Lock()

	req, exists := c.pending[id]
	if exists {
		delete(c.pending, id)
		c.observer.PendingChanged(len(c.pending))
	}

	c.mu.Unlock()

	if !exists {
		return false, &errors.ProtocolError{
			Kind:          errors.KindNoCorrelation,
			Action:        msg.Action,
			CorrelationID: id,
		}
	}

	switch {
	case msg.Action != message.ActionAck:
		c.log.Warn("Response is not an ack", "action", msg.Action, "correlation_id", id)
		req.complete(nil, &errors.ProtocolError{
			Kind:          errors.KindNoAck,
			Action:        msg.Action,
			CorrelationID: id,
		})

	case !msg.Success():
		c.log.Debug("Host reported failure", "action", req.action, "correlation_id", id)
		req.complete(nil, &errors.ProtocolError{
			Kind:          errors.KindRuntimeError,
			Action:        req.action,
			CorrelationID: id,
			Payload:       msg.Payload,
		})

	default:
		c.log.Debug("Received response", "action", req.action, "correlation_id", id)
		req.complete(msg, nil)
	}

	return true, nil
}
