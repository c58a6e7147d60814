package hostwire

import (
	"context"
	"fmt"
)

// WithClient connects to the host, runs fn with an authenticated client and
// closes the client when fn returns.
//
// Start failures are wrapped with the address that was dialed. An error from
// fn is returned unchanged; a Close error is only returned when fn succeeded,
// otherwise it is logged.
//
//	err := hostwire.WithClient(ctx, func(c hostwire.Client) error {
//	    resp, err := c.SendAction(ctx, "get-version", nil)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(resp.Data())
//	    return nil
//	},
//	    hostwire.WithLogger(log),
//	    hostwire.WithAddress("ws://127.0.0.1:9696"),
//	)
func WithClient(ctx context.Context, fn func(Client) error, opts ...Option) (err error) {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	client := NewClient()
	if err := client.Start(ctx, opts...); err != nil {
		return fmt.Errorf("failed to start client for %s: %w", options.Address, err)
	}

	defer func() {
		closeErr := client.Close()
		if closeErr == nil {
			return
		}

		if err != nil {
			log.Warn("Failed to close client", "session_id", client.SessionID(), "error", closeErr)

			return
		}

		err = fmt.Errorf("close client: %w", closeErr)
	}()

	return fn(client)
}
