package hostwire

import (
	"context"
	"iter"

	"github.com/wagiedev/hostwire-go/internal/client"
)

// clientWrapper wraps the internal client to adapt it to the public interface.
type clientWrapper struct {
	impl *client.Client
}

// Compile-time check that *clientWrapper implements the Client interface.
var _ Client = (*clientWrapper)(nil)

func newClientImpl() Client {
	return &clientWrapper{impl: client.New()}
}

func (c *clientWrapper) Start(ctx context.Context, opts ...Option) error {
	return c.impl.Start(ctx, applyOptions(opts))
}

func (c *clientWrapper) SendAction(ctx context.Context, action string, payload map[string]any) (*Message, error) {
	return c.impl.SendAction(ctx, action, payload)
}

func (c *clientWrapper) SendUncorrelated(ctx context.Context, action string, payload map[string]any) (*Message, error) {
	return c.impl.SendUncorrelated(ctx, action, payload)
}

func (c *clientWrapper) SendBatch(ctx context.Context, requests []Request) ([]*Message, error) {
	return c.impl.SendBatch(ctx, requests)
}

func (c *clientWrapper) RegisterMessageHandler(h Handler) {
	c.impl.RegisterMessageHandler(h)
}

func (c *clientWrapper) Events(ctx context.Context) iter.Seq2[*Message, error] {
	return c.impl.Events(ctx)
}

func (c *clientWrapper) Token() string {
	return c.impl.Token()
}

func (c *clientWrapper) SessionID() string {
	return c.impl.SessionID()
}

func (c *clientWrapper) Identity() Identity {
	return c.impl.Identity()
}

func (c *clientWrapper) Done() <-chan struct{} {
	return c.impl.Done()
}

func (c *clientWrapper) Err() error {
	return c.impl.Err()
}

func (c *clientWrapper) Close() error {
	return c.impl.Close()
}
