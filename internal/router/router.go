// Package router implements the Invocation Router (spec.md §4.7): for
// each server/tool call, decide whether to dispatch through the daemon or
// fall back to an ephemeral session, and enrich ephemeral-path failures
// with a candidate tool list.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cs50victor/mcpx/internal/daemon"
	"github.com/cs50victor/mcpx/internal/errs"
	"github.com/cs50victor/mcpx/internal/mcpconfig"
	"github.com/cs50victor/mcpx/internal/mcpfactory"
	"github.com/cs50victor/mcpx/internal/mcptransport"
	"github.com/cs50victor/mcpx/internal/retry"
)

// CallResult is what a routed call produces, regardless of path taken.
type CallResult struct {
	Result    json.RawMessage
	ViaDaemon bool
}

// Call routes one server/tool invocation per spec.md §4.7: a disabled
// tool is refused before any session is opened (spec.md §8's "*/*"
// boundary case), a daemon with the target already registered handles the
// call, otherwise an ephemeral session is opened, used, and closed.
func Call(ctx context.Context, socketPath string, cfg mcpconfig.ServerConfig, tool string, args map[string]any, diagnostic io.Writer) (CallResult, error) {
	if mcpconfig.Blocked(cfg, tool) {
		return CallResult{}, errs.New(errs.KindClient, fmt.Sprintf("tool %q is disabled on server %q", tool, cfg.Name), nil)
	}

	if daemon.Running(socketPath) {
		client := daemon.NewClient(socketPath)
		if has, err := client.Has(ctx, cfg.Name); err == nil && has {
			return callViaDaemon(ctx, client, cfg, tool, args)
		}
	}

	return callEphemeral(ctx, cfg, tool, args, diagnostic)
}

func callViaDaemon(ctx context.Context, client *daemon.Client, cfg mcpconfig.ServerConfig, tool string, args map[string]any) (CallResult, error) {
	raw, err := mcpconfig.ToRaw(cfg)
	if err != nil {
		return CallResult{}, errs.New(errs.KindConfig, "failed to serialize server config for the daemon", err)
	}

	result, err := client.Call(ctx, cfg.Name, cfg.Source, raw, tool, args)
	if err != nil {
		return CallResult{}, classifyToolError(cfg.Name, tool, err, "")
	}
	return CallResult{Result: result, ViaDaemon: true}, nil
}

func callEphemeral(ctx context.Context, cfg mcpconfig.ServerConfig, tool string, args map[string]any, diagnostic io.Writer) (CallResult, error) {
	retryCfg := retry.FromEnv()
	budget := retry.NewBudget(retryCfg.TotalBudget)

	session, err := mcpfactory.OpenSession(ctx, cfg, retryCfg, budget, diagnostic)
	if err != nil {
		return CallResult{}, err
	}
	defer session.Close()

	result, err := session.CallTool(ctx, tool, args)
	if err != nil {
		return CallResult{}, classifyToolError(cfg.Name, tool, err, candidates(ctx, session))
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return CallResult{}, errs.New(errs.KindServerTool, "failed to marshal tool result", err)
	}
	return CallResult{Result: raw}, nil
}

// ReadStdinArgs implements spec.md §4.7 point 4: when no explicit JSON is
// given, read standard input until EOF within the given budget. The call
// command passes a budget of the MCP_TIMEOUT length; it is not the one the
// connection retries use, since callEphemeral and the daemon each start
// their own. On timeout the function stops waiting and returns an error;
// the background read itself is not interrupted and runs until the reader
// returns. The read's own timer is always stopped before returning so it
// can't leak past this call.
func ReadStdinArgs(ctx context.Context, r io.Reader, budget *retry.Budget) (map[string]any, error) {
	type readResult struct {
		data []byte
		err  error
	}
	done := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(r)
		done <- readResult{data: data, err: err}
	}()

	timer := time.NewTimer(budget.Remaining())
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, errs.New(errs.KindClient, "failed to read stdin args", res.err)
		}
		if len(strings.TrimSpace(string(res.data))) == 0 {
			return map[string]any{}, nil
		}
		var args map[string]any
		if err := json.Unmarshal(res.data, &args); err != nil {
			return nil, errs.New(errs.KindClient, "invalid JSON on stdin", err)
		}
		return args, nil
	case <-timer.C:
		return nil, errs.New(errs.KindClient, "timed out reading stdin args", nil)
	case <-ctx.Done():
		return nil, errs.New(errs.KindClient, "canceled reading stdin args", ctx.Err())
	}
}

// candidates implements spec.md §4.7 point 2's best-effort "did you mean"
// data: every tool name the server advertises. Matching the misspelled
// name against this list is out of scope for the core (spec.md §1 places
// fuzzy matching with the external CLI layer); the Router's job ends at
// supplying the raw candidate list.
func candidates(ctx context.Context, session mcptransport.Session) string {
	tools, err := session.ListTools(ctx)
	if err != nil || len(tools) == 0 {
		return ""
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}

// classifyToolError implements spec.md §4.7 point 1: messages containing
// "not found" or "unknown tool" are tool-not-found; everything else is
// tool-execution-failed. candidateList, when non-empty, is attached as
// details for the did-you-mean hint.
func classifyToolError(server, tool string, err error, candidateList string) error {
	msg := strings.ToLower(err.Error())

	var wrapped *errs.Error
	if strings.Contains(msg, "not found") || strings.Contains(msg, "unknown tool") {
		wrapped = errs.New(errs.KindServerTool, fmt.Sprintf("tool %q not found on server %q", tool, server), err)
	} else {
		wrapped = errs.New(errs.KindServerTool, fmt.Sprintf("tool %q failed on server %q", tool, server), err)
	}
	if candidateList != "" {
		wrapped = wrapped.WithDetails("available tools: " + candidateList)
	}
	return wrapped
}
