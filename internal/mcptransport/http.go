package mcptransport

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cs50victor/mcpx/internal/mcpconfig"
)

// httpSession wraps a mark3labs/mcp-go streamable-HTTP client.
type httpSession struct {
	client       *client.Client
	instructions string
}

func (s *httpSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}

func (s *httpSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
}

func (s *httpSession) Close() error { return s.client.Close() }

func (s *httpSession) Instructions() string { return s.instructions }

// ConnectHTTP dials a remote MCP endpoint over the bidirectional streaming
// JSON-RPC variant carried over HTTP/1.1+ (spec.md §4.1), using the
// teacher's SSE-manager pattern generalized to the streamable-HTTP
// transport mark3labs/mcp-go also ships.
func ConnectHTTP(ctx context.Context, serverName string, cfg *mcpconfig.HTTPConfig) (Session, error) {
	var opts []transport.StreamableHTTPCOption
	if len(cfg.Headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, transport.WithHTTPTimeout(cfg.Timeout))
	}

	mcpClient, err := client.NewStreamableHttpClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP MCP client for %q: %w", serverName, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to start HTTP MCP client for %q: %w", serverName, err)
	}

	initResult, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "mcpx",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP server %q: %w", serverName, err)
	}

	return &httpSession{client: mcpClient, instructions: initResult.Instructions}, nil
}
