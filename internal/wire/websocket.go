package wire

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wagiedev/hostwire-go/internal/errors"
	"github.com/wagiedev/hostwire-go/internal/message"
)

const defaultWriteTimeout = 10 * time.Second

// WebSocket implements the wire over a websocket connection.
type WebSocket struct {
	log       *slog.Logger
	codec     message.Codec
	onMessage func(msg *message.Message)

	// Dialer is used by Connect. Defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Header is sent with the opening handshake.
	Header http.Header

	// WriteTimeout bounds a single frame write when the context passed to
	// Send has no deadline.
	WriteTimeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	err     error
	closing bool

	writeMu sync.Mutex
}

// NewWebSocket creates a websocket wire.
func NewWebSocket(log *slog.Logger, codec message.Codec, onMessage func(msg *message.Message)) *WebSocket {
	return &WebSocket{
		log:          log.With("component", "wire", "wire", "websocket"),
		codec:        codec,
		onMessage:    onMessage,
		Dialer:       websocket.DefaultDialer,
		WriteTimeout: defaultWriteTimeout,
		done:         closedChan(),
	}
}

// Connect dials address and starts the read loop.
func (w *WebSocket) Connect(ctx context.Context, address string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return errors.ErrWireAlreadyConnected
	}

	w.log.Debug("Dialing host", "address", address)

	conn, resp, err := w.Dialer.DialContext(ctx, address, w.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	if err != nil {
		return &errors.ConnectionError{Address: address, Err: err}
	}

	conn.SetPingHandler(func(appData string) error {
		w.log.Debug("Answering ping")

		w.writeMu.Lock()
		defer w.writeMu.Unlock()

		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(w.WriteTimeout))
		if stderrors.Is(err, websocket.ErrCloseSent) {
			return nil
		}

		return err
	})

	done := make(chan struct{})

	w.conn = conn
	w.done = done
	w.err = nil
	w.closing = false

	go w.readLoop(conn, done)

	w.log.Info("Websocket connected", "address", address)

	return nil
}

func (w *WebSocket) readLoop(conn *websocket.Conn, done chan struct{}) {
	var readErr error

	for {
		frameType, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err

			break
		}

		if frameType != websocket.TextMessage && frameType != websocket.BinaryMessage {
			continue
		}

		var msg message.Message
		if err := w.codec.Unmarshal(data, &msg); err != nil {
			w.log.Warn("Dropping undecodable frame", "error", &errors.DecodeError{RawData: data, Err: err})

			continue
		}

		w.onMessage(&msg)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == conn {
		w.conn = nil
	}

	if w.closing || websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		readErr = nil
	}

	conn.Close()

	w.err = readErr
	close(done)

	if readErr != nil {
		w.log.Warn("Websocket read failed", "error", readErr)
	} else {
		w.log.Debug("Websocket closed")
	}
}

// Send encodes msg and writes it as a single frame.
func (w *WebSocket) Send(ctx context.Context, msg *message.Message) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return errors.ErrWireNotConnected
	}

	data, err := w.codec.Marshal(msg)
	if err != nil {
		return err
	}

	frameType := websocket.TextMessage
	if w.codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(w.WriteTimeout)
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	return conn.WriteMessage(frameType, data)
}

// Done is closed when the current connection ends.
func (w *WebSocket) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.done
}

// Err reports why the last connection ended. Nil after an orderly close.
func (w *WebSocket) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.err
}

// Close sends a close frame and tears down the current connection. Connect
// may be called again afterwards.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.closing = true
	w.mu.Unlock()

	if conn == nil {
		return nil
	}

	w.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	w.writeMu.Unlock()

	if err := conn.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)

	return ch
}
