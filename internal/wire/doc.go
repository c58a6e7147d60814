// Package wire provides the network wires a Controller can run over.
//
// WebSocket dials a host over ws:// or wss://, answers pings with pongs and
// carries one envelope per frame: text frames for JSON, binary frames for CBOR.
//
// Pipe connects to a Listener on an in-process Network. Frames are length
// prefixed. It is meant for embedding a host in the same process and for tests.
//
// Every wire decodes inbound frames with a message.Codec and invokes its
// inbound callback from a single read goroutine per connection.
package wire
