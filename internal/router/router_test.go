package router

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs50victor/mcpx/internal/errs"
	"github.com/cs50victor/mcpx/internal/mcpconfig"
	"github.com/cs50victor/mcpx/internal/retry"
)

func TestCallRefusesDisabledToolBeforeOpeningSession(t *testing.T) {
	cfg := mcpconfig.ServerConfig{
		Name:          "fs",
		Transport:     mcpconfig.TransportStdio,
		Stdio:         &mcpconfig.StdioConfig{Command: "/bin/does-not-matter"},
		DisabledTools: []string{"*/*"},
	}

	_, err := Call(context.Background(), "/nonexistent/daemon.sock", cfg, "read_file", nil, io.Discard)
	require.Error(t, err)

	ce, ok := errs.AsError(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindClient, ce.Kind)
}

func TestClassifyToolErrorNotFound(t *testing.T) {
	err := classifyToolError("fs", "missing_tool", errors.New("tool not found: missing_tool"), "read_file, write_file")
	ce, ok := errs.AsError(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindServerTool, ce.Kind)
	assert.Contains(t, ce.Details, "read_file")
}

func TestClassifyToolErrorUnknownTool(t *testing.T) {
	err := classifyToolError("fs", "x", errors.New("unknown tool requested"), "")
	ce, ok := errs.AsError(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindServerTool, ce.Kind)
}

func TestClassifyToolErrorExecutionFailure(t *testing.T) {
	err := classifyToolError("fs", "write_file", errors.New("permission denied"), "")
	ce, ok := errs.AsError(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindServerTool, ce.Kind)
	assert.Contains(t, ce.Message, "failed on server")
}

func TestReadStdinArgsParsesJSON(t *testing.T) {
	budget := retry.NewBudget(time.Second)
	args, err := ReadStdinArgs(context.Background(), bytes.NewBufferString(`{"path":"/tmp"}`), budget)
	require.NoError(t, err)
	assert.Equal(t, "/tmp", args["path"])
}

func TestReadStdinArgsEmptyInputYieldsEmptyMap(t *testing.T) {
	budget := retry.NewBudget(time.Second)
	args, err := ReadStdinArgs(context.Background(), bytes.NewBufferString("   "), budget)
	require.NoError(t, err)
	assert.Empty(t, args)
}

func TestReadStdinArgsInvalidJSON(t *testing.T) {
	budget := retry.NewBudget(time.Second)
	_, err := ReadStdinArgs(context.Background(), strings.NewReader("not json"), budget)
	require.Error(t, err)
	ce, ok := errs.AsError(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindClient, ce.Kind)
}

type blockingReader struct{}

func (blockingReader) Read(p []byte) (int, error) {
	select {}
}

func TestReadStdinArgsTimesOut(t *testing.T) {
	budget := retry.NewBudget(5 * time.Millisecond)
	_, err := ReadStdinArgs(context.Background(), blockingReader{}, budget)
	require.Error(t, err)
	ce, ok := errs.AsError(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindClient, ce.Kind)
}
