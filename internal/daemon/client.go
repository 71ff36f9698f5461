package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// Client talks to a running daemon over its UNIX socket.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient builds a Client for the daemon at socketPath. The HTTP
// transport dials the socket directly; "http://daemon" is a placeholder
// host, never resolved over the network.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 0,
		},
	}
}

// Running reports whether a daemon is reachable at socketPath: the socket
// file must exist AND a "list" round-trip must succeed (spec.md §4.6's
// readiness probe — presence alone is insufficient, stale sockets occur).
func Running(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewClient(socketPath).Do(ctx, Request{Method: "list"})
	return err == nil
}

// Do sends req and decodes the daemon's response.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode daemon request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://daemon/", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer httpResp.Body.Close()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("malformed daemon response: %w", err)
	}
	return resp, nil
}

// Has asks the daemon whether server is pooled.
func (c *Client) Has(ctx context.Context, server string) (bool, error) {
	resp, err := c.Do(ctx, Request{Method: "has", Params: RequestParams{Server: server}})
	if err != nil {
		return false, err
	}
	return resp.Has, nil
}

// Call routes a tool call through the daemon.
func (c *Client) Call(ctx context.Context, server, configSource string, config json.RawMessage, tool string, args map[string]any) (json.RawMessage, error) {
	resp, err := c.Do(ctx, Request{
		Method: "call",
		Params: RequestParams{Server: server, Config: config, ConfigSource: configSource, Tool: tool, Args: args},
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	return resp.Result, nil
}

// List returns every pooled server name.
func (c *Client) List(ctx context.Context) ([]string, error) {
	resp, err := c.Do(ctx, Request{Method: "list"})
	if err != nil {
		return nil, err
	}
	return resp.Servers, nil
}

// ListDetailed returns the daemon's detailed pool view.
func (c *Client) ListDetailed(ctx context.Context) ([]ServerInfo, error) {
	resp, err := c.Do(ctx, Request{Method: "list-detailed"})
	if err != nil {
		return nil, err
	}
	return resp.ServersDetailed, nil
}

// Shutdown asks the daemon to release everything and exit, then polls for
// up to 500ms (10x 50ms) for the socket to disappear (spec.md §4.6).
func (c *Client) Shutdown(ctx context.Context) ([]string, error) {
	resp, err := c.Do(ctx, Request{Method: "shutdown"})
	if err != nil {
		return nil, err
	}

	for i := 0; i < 10; i++ {
		if _, statErr := os.Stat(c.socketPath); os.IsNotExist(statErr) {
			return resp.Servers, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return resp.Servers, fmt.Errorf("daemon did not exit within 500ms")
}
