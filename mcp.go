package hostwire

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	internalmcp "github.com/wagiedev/hostwire-go/internal/mcp"
)

// NewMCPServer builds an MCP server whose tools act on the connected client:
// send_action forwards an action to the host, session_info describes the
// connection.
//
// Example:
//
//	server := hostwire.NewMCPServer(client, log, "my-host", "1.0.0")
//	err := server.Run(ctx, &mcp.StdioTransport{})
func NewMCPServer(client Client, log *slog.Logger, name, version string) *mcp.Server {
	if log == nil {
		log = NopLogger()
	}

	return internalmcp.NewBridge(log, client).NewServer(name, version)
}

// ServeMCPStdio serves the MCP bridge for client on stdin/stdout until ctx
// is done or the MCP peer disconnects.
func ServeMCPStdio(ctx context.Context, client Client, log *slog.Logger, name, version string) error {
	return NewMCPServer(client, log, name, version).Run(ctx, &mcp.StdioTransport{})
}
