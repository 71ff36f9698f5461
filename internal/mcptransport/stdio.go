package mcptransport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cs50victor/mcpx/internal/mcpconfig"
)

// stdioSession wraps a mark3labs/mcp-go stdio client.
type stdioSession struct {
	client       *client.Client
	instructions string
}

func (s *stdioSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}

func (s *stdioSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
}

func (s *stdioSession) Close() error { return s.client.Close() }

func (s *stdioSession) Instructions() string { return s.instructions }

// stderrForwarder tees a subprocess's stderr to the controlling terminal's
// diagnostic stream, line by line, prefixed with the server name — this is
// required so interactive auth prompts issued by tool servers stay visible
// (spec.md §4.1). It also buffers the first portion of output until
// StopBuffering is called, so a connect failure can be annotated with what
// the process printed (spec.md §4.1's "MUST additionally buffer").
type stderrForwarder struct {
	serverName string
	diagnostic io.Writer

	mu        sync.Mutex
	buf       strings.Builder
	buffering bool
}

const stderrCaptureLimit = 4096

func newStderrForwarder(serverName string, r io.Reader, diagnostic io.Writer) *stderrForwarder {
	f := &stderrForwarder{serverName: serverName, diagnostic: diagnostic, buffering: true}
	go f.pump(r)
	return f
}

func (f *stderrForwarder) pump(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintf(f.diagnostic, "[%s] %s\n", f.serverName, line)

		f.mu.Lock()
		if f.buffering && f.buf.Len() < stderrCaptureLimit {
			f.buf.WriteString(line)
			f.buf.WriteByte('\n')
		}
		f.mu.Unlock()
	}
}

// StopBuffering ends the error-annotation capture window; forwarding to the
// diagnostic stream continues for the life of the session.
func (f *stderrForwarder) StopBuffering() {
	f.mu.Lock()
	f.buffering = false
	f.mu.Unlock()
}

func (f *stderrForwarder) Captured() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.String()
}

// ConnectStdio spawns the configured subprocess and performs the MCP
// handshake, attaching the stderr forwarder before the handshake so
// authentication banners and interactive prompts surface (spec.md §4.3
// step 2). On terminal handshake failure the error is annotated with
// whatever stderr was captured (spec.md §4.1, §4.3 step 4).
func ConnectStdio(ctx context.Context, serverName string, cfg *mcpconfig.StdioConfig, diagnostic io.Writer) (Session, error) {
	command, args := cfg.Command, cfg.Args
	env := mergedEnv(cfg.Env)

	if cfg.Cwd != "" {
		// mark3labs/mcp-go's stdio transport spawns the process directly
		// and does not expose the underlying *exec.Cmd, so there is no
		// hook to set its working directory. Route through a shell `cd`
		// instead of forking the transport package.
		quotedArgs := make([]string, 0, len(args)+1)
		quotedArgs = append(quotedArgs, shellQuote(command))
		for _, a := range args {
			quotedArgs = append(quotedArgs, shellQuote(a))
		}
		script := fmt.Sprintf("cd %s && exec %s", shellQuote(cfg.Cwd), strings.Join(quotedArgs, " "))
		command, args = "/bin/sh", []string{"-c", script}
	}

	mcpClient, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn stdio MCP server: %w", err)
	}

	var forwarder *stderrForwarder
	if stderr, ok := client.GetStderr(mcpClient); ok && stderr != nil {
		forwarder = newStderrForwarder(serverName, stderr, diagnostic)
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
		if forwarder != nil {
			if captured := forwarder.Captured(); captured != "" {
				return nil, fmt.Errorf("failed to initialize MCP server %q: %w (stderr: %s)", serverName, err, strings.TrimSpace(captured))
			}
		}
		return nil, fmt.Errorf("failed to initialize MCP server %q: %w", serverName, err)
	}
	if forwarder != nil {
		forwarder.StopBuffering()
	}

	return &stdioSession{client: mcpClient, instructions: initResult.Instructions}, nil
}

// mergedEnv merges the process environment with the config's overrides,
// config values winning on collision (spec.md §4.1).
func mergedEnv(overrides map[string]string) []string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overrides {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(merged))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
