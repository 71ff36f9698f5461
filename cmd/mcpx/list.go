package mcpx

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cs50victor/mcpx/internal/errs"
	"github.com/cs50victor/mcpx/internal/mcpconfig"
	"github.com/cs50victor/mcpx/internal/mcpfactory"
	"github.com/cs50victor/mcpx/internal/retry"
	"github.com/cs50victor/mcpx/internal/runner"
	"github.com/cs50victor/mcpx/pkg/logger"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every configured server and its tools",
	RunE:  runList,
}

type serverTools struct {
	name  string
	tools []string
	err   error
}

func runList(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer logger.Close(log)

	servers, err := mcpconfig.Resolve(configFlag)
	if err != nil {
		return exitWith(errs.New(errs.KindConfig, "failed to load server config", err))
	}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	retryCfg := retry.FromEnv()
	concurrency := runner.ConcurrencyFromEnv()

	results := runner.Run(context.Background(), len(names), concurrency, func(ctx context.Context, i int) (serverTools, error) {
		cfg := servers[names[i]]
		budget := retry.NewBudget(retryCfg.TotalBudget)
		session, err := mcpfactory.OpenSession(ctx, cfg, retryCfg, budget, os.Stderr)
		if err != nil {
			return serverTools{name: names[i], err: err}, nil
		}
		defer session.Close()

		tools, err := session.ListTools(ctx)
		if err != nil {
			return serverTools{name: names[i], err: err}, nil
		}
		toolNames := make([]string, len(tools))
		for j, t := range tools {
			if mcpconfig.Blocked(cfg, t.Name) {
				continue
			}
			toolNames[j] = t.Name
		}
		return serverTools{name: names[i], tools: toolNames}, nil
	})

	// Tie-break per spec.md §4.4: alphabetical by server name, applied
	// here by the Runner's caller, not the Runner itself.
	for i, res := range results {
		st := res.Value
		if res.Err != nil || st.err != nil {
			fmt.Printf("%s: error: %v\n", names[i], firstNonNil(res.Err, st.err))
			continue
		}
		fmt.Printf("%s:\n", st.name)
		for _, t := range st.tools {
			if t != "" {
				fmt.Printf("  %s\n", t)
			}
		}
	}
	return nil
}

func firstNonNil(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
