// Package mcptransport implements the Transport Adapter (spec.md §4.1): a
// uniform Session capability set — listTools, callTool, close — over the
// two wire transports, stdio subprocess and streaming HTTP, both adapted
// from github.com/mark3labs/mcp-go the same way the teacher's
// pkg/mcpclient does.
package mcptransport

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// Session is the opaque MCP session capability set spec.md §3 describes.
// Non-goals in spec.md §1 exclude reimplementing the wire protocol itself;
// everything below this interface is mark3labs/mcp-go.
type Session interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error

	// Instructions returns the server-advertised instructions captured at
	// handshake, if any (spec.md §3).
	Instructions() string
}
