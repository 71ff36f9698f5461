// Package mcpfactory implements the Connection Factory (spec.md §4.3):
// openSession(name, config) builds a transport and performs the MCP
// handshake under the retry policy, returning an independent Session on
// every call.
package mcpfactory

import (
	"context"
	"fmt"
	"io"

	"github.com/cs50victor/mcpx/internal/errs"
	"github.com/cs50victor/mcpx/internal/mcpconfig"
	"github.com/cs50victor/mcpx/internal/mcptransport"
	"github.com/cs50victor/mcpx/internal/retry"
)

// OpenSession builds a fresh transport per cfg.Transport and attempts the
// MCP handshake under the Retry Policy, annotating terminal failures with
// whatever diagnostic output was captured (done inside the stdio
// transport itself; see mcptransport.ConnectStdio).
func OpenSession(ctx context.Context, cfg mcpconfig.ServerConfig, retryCfg retry.Config, budget *retry.Budget, diagnostic io.Writer) (mcptransport.Session, error) {
	var session mcptransport.Session

	op := func(ctx context.Context) error {
		var err error
		switch cfg.Transport {
		case mcpconfig.TransportStdio:
			session, err = mcptransport.ConnectStdio(ctx, cfg.Name, cfg.Stdio, diagnostic)
		case mcpconfig.TransportHTTP:
			session, err = mcptransport.ConnectHTTP(ctx, cfg.Name, cfg.HTTP)
		default:
			return fmt.Errorf("unknown transport %q for server %q", cfg.Transport, cfg.Name)
		}
		return err
	}

	if err := retry.Do(ctx, retryCfg, budget, op); err != nil {
		return nil, errs.New(errs.KindNetwork, fmt.Sprintf("failed to connect to server %q", cfg.Name), err)
	}
	return session, nil
}
