package hostwire

import (
	"context"
	"iter"
)

// Client is a connection to a host application.
//
// Start connects the wire and runs the token handshake. Only after Start
// returns nil may actions be sent. Responses are matched to requests by
// correlation id, so SendAction is safe to call from many goroutines.
//
// Lifecycle: Clients are single-use. After Close(), create a new client with NewClient().
//
// Example usage:
//
//	client := hostwire.NewClient()
//	defer client.Close()
//
//	err := client.Start(ctx,
//	    hostwire.WithLogger(slog.Default()),
//	    hostwire.WithAddress("ws://127.0.0.1:9696"),
//	    hostwire.WithIdentity(hostwire.NewIdentity("my-plugin")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.SendAction(ctx, "get-version", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println(resp.Data())
type Client interface {
	// Start connects to the host and completes the handshake.
	// Must be called before any other methods.
	// Returns ConnectionError if the wire cannot connect and ProtocolError if
	// the handshake is rejected.
	Start(ctx context.Context, opts ...Option) error

	// SendAction sends a request and waits for the host's ack.
	// A response with success=false returns a ProtocolError of KindRuntimeError.
	SendAction(ctx context.Context, action string, payload map[string]any) (*Message, error)

	// SendUncorrelated sends a request whose reply is the next message the
	// host sends without a correlation id. Only one such exchange may be in
	// flight; a second returns ErrListenerBusy.
	SendUncorrelated(ctx context.Context, action string, payload map[string]any) (*Message, error)

	// SendBatch sends the requests concurrently and returns the responses in
	// request order. The first failure cancels the rest.
	SendBatch(ctx context.Context, requests []Request) ([]*Message, error)

	// RegisterMessageHandler adds h to the front of the handler chain. Every
	// handler sees every inbound message.
	RegisterMessageHandler(h Handler)

	// Events returns an iterator over unsolicited host messages.
	// It ends when ctx is done or the connection is lost.
	Events(ctx context.Context) iter.Seq2[*Message, error]

	// Token returns the token granted during the handshake.
	Token() string

	// SessionID returns the ULID that tags this connection in logs.
	SessionID() string

	// Identity returns the identity presented to the host.
	Identity() Identity

	// Done is closed when the client is closed or the connection is lost.
	Done() <-chan struct{}

	// Err reports why the connection was lost, or nil.
	Err() error

	// Close terminates the connection and cleans up resources.
	// After Close(), the client cannot be reused. Safe to call multiple times.
	Close() error
}

// NewClient creates a new client.
//
// Call Start() with options to connect:
//
//	client := NewClient()
//	err := client.Start(ctx,
//	    WithAddress("ws://127.0.0.1:9696"),
//	    WithLogger(slog.Default()),
//	)
func NewClient() Client {
	return newClientImpl()
}
