package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	hostwire "github.com/wagiedev/hostwire-go"
)

func newConnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Authenticate with the host and print the granted token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd.Context(), func(c hostwire.Client) error {
				out := cmd.OutOrStdout()

				fmt.Fprintf(out, "token:      %s\n", c.Token())
				fmt.Fprintf(out, "session_id: %s\n", c.SessionID())
				fmt.Fprintf(out, "uuid:       %s\n", c.Identity().UUID)

				return nil
			})
		},
	}
}

func newSendCmd(a *app) *cobra.Command {
	var uncorrelated bool

	cmd := &cobra.Command{
		Use:   "send ACTION [PAYLOAD_JSON]",
		Short: "Send one action and print the response payload",
		Example: `  hostwire send get-version
  hostwire send open-window '{"url":"https://example.com"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload map[string]any

			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
					return fmt.Errorf("payload must be a JSON object: %w", err)
				}
			}

			return a.withClient(cmd.Context(), func(c hostwire.Client) error {
				send := c.SendAction
				if uncorrelated {
					send = c.SendUncorrelated
				}

				resp, err := send(cmd.Context(), args[0], payload)
				if err != nil {
					return err
				}

				return writeJSON(cmd, resp)
			})
		},
	}

	cmd.Flags().BoolVar(&uncorrelated, "uncorrelated", false, "wait for the next uncorrelated message instead of an ack")

	return cmd
}

func newListenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print unsolicited host messages as JSON lines until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd.Context(), func(c hostwire.Client) error {
				for msg, err := range c.Events(cmd.Context()) {
					if err != nil {
						if cmd.Context().Err() != nil {
							return nil
						}

						return err
					}

					if err := writeJSON(cmd, msg); err != nil {
						return err
					}
				}

				return nil
			})
		},
	}
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the host to MCP clients on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd.Context(), func(c hostwire.Client) error {
				return hostwire.ServeMCPStdio(cmd.Context(), c, a.log, "hostwire", version)
			})
		},
	}
}

func writeJSON(cmd *cobra.Command, msg *hostwire.Message) error {
	enc := json.NewEncoder(cmd.OutOrStdout())

	return enc.Encode(msg)
}
