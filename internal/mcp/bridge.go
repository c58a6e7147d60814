package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/hostwire-go/internal/message"
)

const (
	// ToolSendAction forwards one action to the host.
	ToolSendAction = "send_action"

	// ToolSessionInfo reports the connection's identity and session.
	ToolSessionInfo = "session_info"
)

// Host is the part of a connected client the bridge needs.
type Host interface {
	SendAction(ctx context.Context, action string, payload map[string]any) (*message.Message, error)
	SessionID() string
	Identity() message.Identity
}

// Bridge answers MCP tool calls by talking to a Host.
type Bridge struct {
	log  *slog.Logger
	host Host
}

// NewBridge creates a bridge for host.
func NewBridge(log *slog.Logger, host Host) *Bridge {
	return &Bridge{
		log:  log.With("component", "mcp"),
		host: host,
	}
}

// NewServer builds an MCP server with the bridge's tools registered.
func (b *Bridge) NewServer(name, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)

	server.AddTool(NewTool(ToolSendAction,
		"Send an action to the connected host and return its response payload.",
		SendActionSchema(),
	), b.sendAction)

	server.AddTool(NewTool(ToolSessionInfo,
		"Describe the host connection: session id and client identity.",
		&jsonschema.Schema{Type: "object"},
	), b.sessionInfo)

	return server
}

// Serve runs an MCP server for the bridge on transport until ctx is done
// or the peer disconnects.
func (b *Bridge) Serve(ctx context.Context, transport mcp.Transport, name, version string) error {
	b.log.Info("Serving MCP", "server", name)

	return b.NewServer(name, version).Run(ctx, transport)
}

// SendActionSchema is the input schema of the send_action tool.
func SendActionSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"action": {
				Type:        "string",
				Description: "Action name understood by the host",
			},
			"payload": {
				Type:        "object",
				Description: "Action payload",
			},
		},
		Required: []string{"action"},
	}
}

func (b *Bridge) sendAction(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := ParseArguments(req)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	action, _ := args["action"].(string)
	if action == "" {
		return ErrorResult("action is required"), nil
	}

	var payload map[string]any

	if raw, ok := args["payload"]; ok && raw != nil {
		payload, ok = raw.(map[string]any)
		if !ok {
			return ErrorResult("payload must be an object"), nil
		}
	}

	b.log.Debug("Forwarding tool call", "action", action)

	resp, err := b.host.SendAction(ctx, action, payload)
	if err != nil {
		b.log.Warn("Host action failed", "action", action, "error", err)

		return ErrorResult(fmt.Sprintf("%s failed: %v", action, err)), nil
	}

	text, err := json.Marshal(resp.Payload)
	if err != nil {
		return ErrorResult("encode response: " + err.Error()), nil
	}

	return TextResult(string(text)), nil
}

func (b *Bridge) sessionInfo(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity := b.host.Identity()

	text, err := json.Marshal(map[string]string{
		"session_id": b.host.SessionID(),
		"uuid":       identity.UUID,
		"name":       identity.Name,
	})
	if err != nil {
		return nil, err
	}

	return TextResult(string(text)), nil
}

// TextResult creates a CallToolResult with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// ErrorResult creates a CallToolResult indicating an error.
func ErrorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// NewTool creates an mcp.Tool with the given parameters.
func NewTool(name, description string, inputSchema *jsonschema.Schema) *mcp.Tool {
	return &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
	}
}

// ParseArguments unmarshals CallToolRequest arguments into a map.
func ParseArguments(req *mcp.CallToolRequest) (map[string]any, error) {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return make(map[string]any), nil
	}

	var args map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, fmt.Errorf("unmarshal arguments: %w", err)
	}

	return args, nil
}
