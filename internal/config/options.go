// Package config provides configuration types for the hostwire client.
package config

import (
	"log/slog"
	"time"

	"github.com/wagiedev/hostwire-go/internal/message"
	"github.com/wagiedev/hostwire-go/internal/protocol"
)

const (
	// DefaultRequestTimeout bounds a request when Options.RequestTimeout is nil.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultHandshakeTimeout bounds the whole handshake when
	// Options.HandshakeTimeout is zero.
	DefaultHandshakeTimeout = 60 * time.Second
)

// Identity describes the connecting application.
type Identity = message.Identity

// Observer receives request lifecycle notifications.
type Observer = protocol.Observer

// TokenPersister stores the handshake token where the host expects it.
type TokenPersister = protocol.TokenPersister

// Options configures the behavior of the hostwire client.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Address is the host endpoint. Its scheme selects the default wire:
	// ws:// and wss:// dial a websocket, exec:// spawns a host process.
	Address string

	// Identity is presented to the host during the handshake.
	// If its UUID is empty a fresh one is generated at Start.
	Identity Identity

	// Codec names the envelope codec: "json" (default) or "cbor".
	Codec string

	// Wire allows injecting a custom wire implementation.
	// If nil, the wire is chosen from the Address scheme.
	Wire WireFactory `json:"-"`

	// RequestTimeout bounds how long any request may stay pending.
	// If nil, DefaultRequestTimeout applies. A zero value disables it.
	RequestTimeout *time.Duration

	// HandshakeTimeout bounds the authentication handshake.
	// If zero, DefaultHandshakeTimeout applies.
	HandshakeTimeout time.Duration

	// TokenPersister stores the granted token.
	// If nil, the token is written to the file the host names.
	TokenPersister TokenPersister `json:"-"`

	// Handlers are registered on the handler chain before connecting, in
	// order, so the last one runs first.
	Handlers []message.Handler `json:"-"`

	// OnProtocolError receives errors raised while dispatching inbound
	// messages, such as responses for unknown correlation ids.
	OnProtocolError func(err error) `json:"-"`

	// OnDisconnect is called when the wire drops after Start succeeded.
	OnDisconnect func(err error) `json:"-"`

	// Observer receives request and handshake notifications, typically a
	// metrics recorder. May be nil.
	Observer Observer `json:"-"`
}

// EffectiveRequestTimeout resolves RequestTimeout against its default.
func (o *Options) EffectiveRequestTimeout() time.Duration {
	if o.RequestTimeout == nil {
		return DefaultRequestTimeout
	}

	return *o.RequestTimeout
}

// EffectiveHandshakeTimeout resolves HandshakeTimeout against its default.
func (o *Options) EffectiveHandshakeTimeout() time.Duration {
	if o.HandshakeTimeout <= 0 {
		return DefaultHandshakeTimeout
	}

	return o.HandshakeTimeout
}
