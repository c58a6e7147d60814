// Package protocol implements request/response correlation over a wire to the host.
//
// The protocol package provides a Controller that turns a fire-and-forget,
// message-oriented wire into request/response calls. Responses may arrive in
// any order; each one is routed back to its caller by correlation id.
//
// The Controller handles:
//   - Issuing monotonically increasing correlation ids per instance
//   - Tracking pending requests and consuming each exactly once
//   - Request deadline enforcement
//   - A single-shot slot for the next uncorrelated message
//   - A handler chain that observes every inbound message
//
// Session runs the two-round-trip token handshake on top of a Controller.
//
// Example usage:
//
//	controller := protocol.NewController(log, newWire, &protocol.Config{
//	    RequestTimeout: 30 * time.Second,
//	})
//	if err := controller.Connect(ctx, "ws://127.0.0.1:9696"); err != nil {
//	    return err
//	}
//
//	token, err := protocol.NewSession(log, controller, identity, persister).Authenticate(ctx)
//
//	resp, err := controller.SendAction(ctx, "get-version", nil)
package protocol
