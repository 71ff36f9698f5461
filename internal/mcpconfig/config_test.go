package mcpconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStdioVariant(t *testing.T) {
	data := []byte(`{"mcpServers":{"fs":{"command":"echo-mcp","args":["--root","/tmp"]}}}`)
	servers, err := Parse(data, "config.json")
	require.NoError(t, err)

	cfg := servers["fs"]
	assert.Equal(t, TransportStdio, cfg.Transport)
	require.NotNil(t, cfg.Stdio)
	assert.Nil(t, cfg.HTTP)
	assert.Equal(t, "echo-mcp", cfg.Stdio.Command)
	assert.Equal(t, "config.json", cfg.Source)
}

func TestParseHTTPVariant(t *testing.T) {
	data := []byte(`{"mcpServers":{"remote":{"url":"https://example.com/mcp"}}}`)
	servers, err := Parse(data, "<inline>")
	require.NoError(t, err)

	cfg := servers["remote"]
	assert.Equal(t, TransportHTTP, cfg.Transport)
	require.NotNil(t, cfg.HTTP)
	assert.Nil(t, cfg.Stdio)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
}

func TestParseRejectsMutuallyExclusiveFields(t *testing.T) {
	data := []byte(`{"mcpServers":{"bad":{"command":"x","url":"https://example.com"}}}`)
	_, err := Parse(data, "<inline>")
	require.Error(t, err)
}

func TestParseRejectsMissingVariant(t *testing.T) {
	data := []byte(`{"mcpServers":{"bad":{}}}`)
	_, err := Parse(data, "<inline>")
	require.Error(t, err)
}

func TestParseRejectsIncludeAndAllowedToolsAliases(t *testing.T) {
	data := []byte(`{"mcpServers":{"fs":{"command":"x","includeTools":["a"],"allowedTools":["b"]}}}`)
	_, err := Parse(data, "<inline>")
	require.Error(t, err)
}

func TestHashStableUnderKeyOrder(t *testing.T) {
	a := ServerConfig{
		Transport: TransportStdio,
		Stdio:     &StdioConfig{Command: "x", Env: map[string]string{"A": "1", "B": "2"}},
	}
	b := ServerConfig{
		Transport: TransportStdio,
		Stdio:     &StdioConfig{Command: "x", Env: map[string]string{"B": "2", "A": "1"}},
	}
	assert.Equal(t, Hash(a), Hash(b))
	assert.GreaterOrEqual(t, len(Hash(a)), 16)
}

func TestHashIgnoresSourceAndToolFilters(t *testing.T) {
	a := ServerConfig{Transport: TransportStdio, Stdio: &StdioConfig{Command: "x"}, Source: "one.json"}
	b := ServerConfig{Transport: TransportStdio, Stdio: &StdioConfig{Command: "x"}, Source: "two.json", DisabledTools: []string{"*"}}
	assert.Equal(t, Hash(a), Hash(b))
}

func TestHashDiffersOnMeaningfulFieldChange(t *testing.T) {
	a := ServerConfig{Transport: TransportStdio, Stdio: &StdioConfig{Command: "x"}}
	b := ServerConfig{Transport: TransportStdio, Stdio: &StdioConfig{Command: "y"}}
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestBlockedDisabledToolsGlob(t *testing.T) {
	cfg := ServerConfig{Name: "fs", DisabledTools: []string{"delete*"}}
	assert.True(t, Blocked(cfg, "delete_file"))
	assert.False(t, Blocked(cfg, "read_file"))
}

func TestBlockedEverythingGlob(t *testing.T) {
	cfg := ServerConfig{Name: "fs", DisabledTools: []string{"*/*"}}
	assert.True(t, Blocked(cfg, "anything"))
}

func TestBlockedIncludeToolsRequiresMatch(t *testing.T) {
	cfg := ServerConfig{Name: "fs", IncludeTools: []string{"read_*"}}
	assert.False(t, Blocked(cfg, "read_file"))
	assert.True(t, Blocked(cfg, "write_file"))
}

func TestResolveTreatsInlineJSONAsInlineAndEmptyAsNoServers(t *testing.T) {
	servers, err := Resolve(`{"mcpServers":{"fs":{"command":"echo-mcp"}}}`)
	require.NoError(t, err)
	assert.Contains(t, servers, "fs")
	assert.Equal(t, "<inline>", servers["fs"].Source)

	empty, err := Resolve("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestToRawRoundTrip(t *testing.T) {
	cfg := ServerConfig{
		Name:      "fs",
		Transport: TransportStdio,
		Stdio:     &StdioConfig{Command: "echo-mcp", Args: []string{"--root", "/tmp"}},
	}
	raw, err := ToRaw(cfg)
	require.NoError(t, err)

	reparsed, err := ParseOne("fs", raw, "<none>")
	require.NoError(t, err)
	assert.Equal(t, Hash(cfg), Hash(reparsed))
}
