package protocol

import (
	"context"
	"time"

	"github.com/wagiedev/hostwire-go/internal/message"
)

// Wire defines the minimal interface the Controller needs from a wire.
//
// This interface is satisfied by every wire in internal/wire but allows for
// testing with mock wires.
type Wire interface {
	Connect(ctx context.Context, address string) error
	Send(ctx context.Context, msg *message.Message) error

	// Done is closed when the current connection ends.
	Done() <-chan struct{}

	// Err returns why the connection ended, or nil for an orderly close.
	Err() error

	Close() error
}

// InboundFunc receives every decoded inbound message. A wire calls it from a
// single goroutine, one message at a time.
type InboundFunc func(msg *message.Message)

// WireFactory builds a wire bound to the Controller's inbound callback.
type WireFactory func(onMessage InboundFunc) Wire

// Observer receives request lifecycle notifications, typically for metrics.
type Observer interface {
	RequestStarted(action string)
	RequestFinished(action string, err error, elapsed time.Duration)
	PendingChanged(n int)
	HandshakeFinished(err error)
}

type noopObserver struct{}

func (noopObserver) RequestStarted(string)                        {}
func (noopObserver) RequestFinished(string, error, time.Duration) {}
func (noopObserver) PendingChanged(int)                           {}
func (noopObserver) HandshakeFinished(error)                      {}

// outcome is what a pending request is completed with.
type outcome struct {
	msg *message.Message
	err error
}

// pendingRequest tracks an outgoing request awaiting its response.
type pendingRequest struct {
	id           uint64
	action       string
	uncorrelated bool
	started      time.Time
	result       chan outcome
}

func newPendingRequest(id uint64, action string, uncorrelated bool) *pendingRequest {
	return &pendingRequest{
		id:           id,
		action:       action,
		uncorrelated: uncorrelated,
		started:      time.Now(),
		result:       make(chan outcome, 1),
	}
}

// complete delivers the outcome. Callers must have removed the request from
// the table or slot under the Controller lock first, which guarantees a
// single delivery into the buffered channel.
func (p *pendingRequest) complete(msg *message.Message, err error) {
	p.result <- outcome{msg: msg, err: err}
}
