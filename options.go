package hostwire

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wagiedev/hostwire-go/internal/client"
	"github.com/wagiedev/hostwire-go/internal/config"
	"github.com/wagiedev/hostwire-go/internal/metrics"
	"github.com/wagiedev/hostwire-go/internal/token"
)

// Options is the resolved client configuration.
type Options = config.Options

// Observer receives request and handshake notifications.
type Observer = config.Observer

// TokenPersister stores the handshake token where the host expects it.
type TokenPersister = config.TokenPersister

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options to an Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithAddress sets the host endpoint, e.g. "ws://127.0.0.1:9696" or
// "exec:///usr/local/bin/host --stdio".
func WithAddress(address string) Option {
	return func(o *Options) {
		o.Address = address
	}
}

// WithIdentity sets the identity presented during the handshake.
func WithIdentity(identity Identity) Option {
	return func(o *Options) {
		o.Identity = identity
	}
}

// WithCodec selects the envelope codec by name: "json" (default) or "cbor".
func WithCodec(name string) Option {
	return func(o *Options) {
		o.Codec = name
	}
}

// ===== Wire =====

// WithWire injects a custom wire factory.
func WithWire(factory WireFactory) Option {
	return func(o *Options) {
		o.Wire = factory
	}
}

// WithPipe connects to a host listening on network under address
// ("pipe://name").
func WithPipe(network *Network, address string) Option {
	return func(o *Options) {
		o.Address = address
		o.Wire = client.PipeWire(network)
	}
}

// ===== Timeouts =====

// WithRequestTimeout bounds how long a request may wait for its response.
// Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.RequestTimeout = &d
	}
}

// WithHandshakeTimeout bounds the authentication handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.HandshakeTimeout = d
	}
}

// ===== Handshake =====

// WithTokenPersister replaces the default token file writer.
func WithTokenPersister(p TokenPersister) Option {
	return func(o *Options) {
		o.TokenPersister = p
	}
}

// WithTokenPersistFunc is WithTokenPersister for a plain function.
func WithTokenPersistFunc(fn func(ctx context.Context, file, token string) error) Option {
	return WithTokenPersister(token.PersistFunc(fn))
}

// ===== Callbacks =====

// WithHandler registers h on the handler chain before the client connects,
// so it also sees the handshake responses.
func WithHandler(h Handler) Option {
	return func(o *Options) {
		o.Handlers = append(o.Handlers, h)
	}
}

// WithOnProtocolError sets the callback for errors raised while dispatching
// inbound messages, such as a response nobody is waiting for.
func WithOnProtocolError(fn func(err error)) Option {
	return func(o *Options) {
		o.OnProtocolError = fn
	}
}

// WithOnDisconnect sets the callback run when the connection drops.
func WithOnDisconnect(fn func(err error)) Option {
	return func(o *Options) {
		o.OnDisconnect = fn
	}
}

// ===== Observability =====

// WithObserver sets the request lifecycle observer.
func WithObserver(observer Observer) Option {
	return func(o *Options) {
		o.Observer = observer
	}
}

// WithMetrics records request and handshake metrics in reg.
// A nil reg uses the Prometheus default registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return WithObserver(metrics.NewRecorder(reg))
}
