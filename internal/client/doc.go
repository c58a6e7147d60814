// Package client implements the Client that connects an application to a host.
//
// The client package ties the pieces together: it selects a codec and a wire
// for the configured address, starts a protocol Controller on it, runs the
// token handshake, and only then exposes request/response calls. It offers:
//   - Correlated SendAction calls, safe for concurrent use
//   - SendBatch for fanning out several actions at once
//   - A handler chain and an event stream for unsolicited host messages
//   - Disconnect detection through Done and Err
//
// The Client manages its own goroutines with an errgroup and is single-use:
// after Close, create a new one.
package client
