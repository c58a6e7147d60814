// Package hostwire connects Go applications to a host application that
// speaks the hostwire message protocol.
//
// A host exposes actions ("get-version", "open-window", ...) over a
// bidirectional channel. The client sends each action as a request carrying
// a message id; the host answers with an "ack" carrying the same id as
// correlationId and a payload with a success flag. Messages without a
// correlation id are events, delivered to message handlers and Events.
//
// # Connecting
//
// Before any action is accepted the client authenticates with a two-step
// token handshake: the host grants a token and names a file, the client
// writes the token to that file, then asks for authorization.
//
//	err := hostwire.WithClient(ctx, func(c hostwire.Client) error {
//	    resp, err := c.SendAction(ctx, "get-version", nil)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(resp.Data())
//	    return nil
//	},
//	    hostwire.WithAddress("ws://127.0.0.1:9696"),
//	    hostwire.WithIdentity(hostwire.NewIdentity("my-plugin")),
//	)
//
// # Wires
//
// The address scheme selects how the client reaches the host:
//   - ws:// and wss:// dial a websocket
//   - exec:// spawns the host and speaks line-delimited JSON on its stdio
//   - pipe:// reaches a host in the same process (see WithPipe)
//
// Envelopes are JSON by default; WithCodec("cbor") switches to CBOR on wires
// that carry binary frames.
//
// # Error Handling
//
// Protocol failures are returned as *ProtocolError. Use errors.Is with the
// sentinel errors or KindOf to branch on the failure:
//
//	resp, err := c.SendAction(ctx, "close-window", payload)
//	if errors.Is(err, hostwire.ErrRuntime) {
//	    // the host ran the action and reported success=false
//	}
//
// When the connection is lost every pending request fails with ErrWireClosed,
// Done is closed and Err reports the cause.
//
// # MCP
//
// NewMCPServer exposes a connected client to MCP clients as tools.
package hostwire
