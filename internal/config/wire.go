package config

import (
	"log/slog"

	"github.com/wagiedev/hostwire-go/internal/message"
	"github.com/wagiedev/hostwire-go/internal/protocol"
)

// Wire defines the interface for host communication.
// Implement this to provide custom wires for testing, mocking,
// or alternative channels to the host.
//
// A wire must:
//   - Decode every complete inbound frame and pass it to the inbound callback,
//     from a single goroutine
//   - Answer liveness probes (pings) without surfacing them as messages
//   - Close Done() when the connection ends, with Err() reporting why
//   - Allow Connect again after the previous connection ended
//
// Send must be safe for concurrent use. Close is safe to call multiple times.
type Wire = protocol.Wire

// WireFactory builds a wire. It is called once per client with the codec the
// client selected and the inbound callback the wire must invoke.
type WireFactory func(log *slog.Logger, codec message.Codec, onMessage func(msg *message.Message)) Wire
