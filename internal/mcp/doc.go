// Package mcp exposes a connected host as an MCP server.
//
// The server publishes a send_action tool that forwards an action and its
// payload to the host and returns the ack payload as JSON text, and a
// session_info tool describing the connection. Host failures are reported
// as tool errors so that the calling model can read them.
package mcp
