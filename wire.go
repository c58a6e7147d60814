package hostwire

import (
	"github.com/wagiedev/hostwire-go/internal/client"
	"github.com/wagiedev/hostwire-go/internal/config"
	"github.com/wagiedev/hostwire-go/internal/wire"
)

// Wire defines the channel a client talks to the host over.
// Implement this to provide custom wires for testing, mocking,
// or alternative channels (e.g., a message bus).
//
// The default wire is chosen from the address: a websocket for ws:// and
// wss://, a spawned process for exec://. Custom wires are injected with WithWire.
type Wire = config.Wire

// WireFactory builds a Wire for one client.
type WireFactory = config.WireFactory

// Network is an in-process namespace of pipe listeners. Hosts embedded in
// the same process listen on it and clients reach them with WithPipe.
type Network = wire.Network

// Listener accepts pipe connections on a Network.
type Listener = wire.Listener

// NewNetwork creates an empty pipe network.
func NewNetwork() *Network {
	return wire.NewNetwork()
}

// DefaultWire returns the wire factory selected for address.
func DefaultWire(address string) (WireFactory, error) {
	return client.DefaultWire(address)
}
