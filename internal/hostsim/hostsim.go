// Package hostsim provides an in-process host that speaks the hostwire
// protocol over a pipe Listener.
//
// It runs the token handshake the way a real host does: it grants a token
// naming a file, then authorizes only if the client wrote that token to the
// file. Registered actions are answered with acks. Tests and examples use it.
package hostsim

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/hostwire-go/internal/message"
	"github.com/wagiedev/hostwire-go/internal/wire"
)

// ActionFunc answers one action. A returned error becomes an ack with
// success=false and the error text as data.
type ActionFunc func(ctx context.Context, payload map[string]any) (any, error)

type grant struct {
	token string
	file  string
}

// Host is a simulated host.
type Host struct {
	log      *slog.Logger
	listener *wire.Listener
	tokenDir string

	mu      sync.Mutex
	actions map[string]ActionFunc
	grants  map[string]grant
	conns   map[*wire.Conn]struct{}
	deny    bool
}

// New creates a host serving listener. Token files are placed in tokenDir,
// which must exist.
func New(log *slog.Logger, listener *wire.Listener, tokenDir string) *Host {
	return &Host{
		log:      log.With("component", "hostsim"),
		listener: listener,
		tokenDir: tokenDir,
		actions:  make(map[string]ActionFunc, 8),
		grants:   make(map[string]grant, 4),
		conns:    make(map[*wire.Conn]struct{}, 4),
	}
}

// Handle registers fn for action.
func (h *Host) Handle(action string, fn ActionFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.actions[action] = fn
}

// DenyAuthorization makes every subsequent authorization-response report
// success=false.
func (h *Host) DenyAuthorization(deny bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.deny = deny
}

// Connections returns the number of connected clients.
func (h *Host) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.conns)
}

// Broadcast sends msg to every connected client.
func (h *Host) Broadcast(msg *message.Message) error {
	h.mu.Lock()
	conns := make([]*wire.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var errs []error

	for _, c := range conns {
		if err := c.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}

	return stderrors.Join(errs...)
}

// DisconnectAll drops every client connection.
func (h *Host) DisconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.conns {
		c.Close()
	}
}

// Serve accepts connections until ctx is done or the listener closes.
func (h *Host) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-ctx.Done()

		h.DisconnectAll()

		return nil
	})

	var acceptErr error

	for {
		conn, err := h.listener.Accept(ctx)
		if err != nil {
			if !stderrors.Is(err, wire.ErrListenerClosed) && ctx.Err() == nil {
				acceptErr = err
			}

			break
		}

		h.mu.Lock()
		h.conns[conn] = struct{}{}
		h.mu.Unlock()

		eg.Go(func() error {
			h.serveConn(ctx, conn)

			return nil
		})
	}

	cancel()

	if err := eg.Wait(); err != nil {
		return err
	}

	return acceptErr
}

func (h *Host) serveConn(ctx context.Context, conn *wire.Conn) {
	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()

		conn.Close()
	}()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		msg, err := conn.Receive()
		if err != nil {
			h.log.Debug("Client connection ended", "error", err)

			return
		}

		switch msg.Action {
		case message.ActionRequestExternalAuthorization:
			h.grantToken(conn, msg)
		case message.ActionRequestAuthorization:
			h.authorize(conn, msg)
		default:
			if msg.MessageID == nil {
				continue
			}

			inflight.Go(func() {
				h.answer(ctx, conn, msg)
			})
		}
	}
}

func (h *Host) grantToken(conn *wire.Conn, msg *message.Message) {
	id, _ := msg.Payload["uuid"].(string)

	g := grant{
		token: uuid.NewString(),
		file:  filepath.Join(h.tokenDir, fmt.Sprintf("%s.token", uuid.NewString())),
	}

	h.mu.Lock()
	h.grants[id] = g
	h.mu.Unlock()

	h.send(conn, message.NewEvent(message.ActionExternalAuthorizationResponse, map[string]any{
		"token": g.token,
		"file":  g.file,
	}))
}

func (h *Host) authorize(conn *wire.Conn, msg *message.Message) {
	id, _ := msg.Payload["uuid"].(string)

	h.mu.Lock()
	g, ok := h.grants[id]
	deny := h.deny
	h.mu.Unlock()

	success := false

	if ok && !deny {
		data, err := os.ReadFile(g.file)
		success = err == nil && string(data) == g.token
	}

	h.send(conn, message.NewEvent(message.ActionAuthorizationResponse, map[string]any{"success": success}))
}

func (h *Host) answer(ctx context.Context, conn *wire.Conn, msg *message.Message) {
	h.mu.Lock()
	fn := h.actions[msg.Action]
	h.mu.Unlock()

	if fn == nil {
		h.send(conn, message.NewAck(*msg.MessageID, false, "unknown action: "+msg.Action))

		return
	}

	data, err := fn(ctx, msg.Payload)
	if err != nil {
		h.send(conn, message.NewAck(*msg.MessageID, false, err.Error()))

		return
	}

	h.send(conn, message.NewAck(*msg.MessageID, true, data))
}

func (h *Host) send(conn *wire.Conn, msg *message.Message) {
	if err := conn.Send(msg); err != nil {
		h.log.Debug("Failed to answer client", "action", msg.Action, "error", err)
	}
}
