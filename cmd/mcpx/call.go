package mcpx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cs50victor/mcpx/internal/daemon"
	"github.com/cs50victor/mcpx/internal/errs"
	"github.com/cs50victor/mcpx/internal/mcpconfig"
	"github.com/cs50victor/mcpx/internal/output"
	"github.com/cs50victor/mcpx/internal/retry"
	"github.com/cs50victor/mcpx/internal/router"
	"github.com/cs50victor/mcpx/pkg/logger"
)

var callOutputFormat string

var callCmd = &cobra.Command{
	Use:   "call <server/tool> [json-args]",
	Short: "Invoke a tool on a server",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runCall,
}

func init() {
	callCmd.Flags().StringVarP(&callOutputFormat, "output", "o", "text", "output format: text or json")
}

func runCall(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer logger.Close(log)

	server, tool, err := parseTarget(args[0])
	if err != nil {
		return exitWith(err)
	}

	servers, err := mcpconfig.Resolve(configFlag)
	if err != nil {
		return exitWith(errs.New(errs.KindConfig, "failed to load server config", err))
	}
	cfg, err := resolveServer(servers, server)
	if err != nil {
		return exitWith(err)
	}

	retryCfg := retry.FromEnv()
	budget := retry.NewBudget(retryCfg.TotalBudget)

	toolArgs, err := resolveArgs(cmd.Context(), args, budget)
	if err != nil {
		return exitWith(err)
	}

	result, err := router.Call(context.Background(), daemon.SocketPath(), cfg, tool, toolArgs, os.Stderr)
	if err != nil {
		return exitWith(err)
	}

	if len(result.Result) == 0 {
		return nil
	}
	if callOutputFormat == "json" {
		fmt.Println(output.JSON(result.Result))
	} else {
		fmt.Println(output.Text(result.Result))
	}
	if output.IsError(result.Result) {
		return exitWith(errs.New(errs.KindServerTool, fmt.Sprintf("tool %q reported an error", tool), nil))
	}
	return nil
}

// resolveArgs implements spec.md §4.7 point 4: explicit JSON wins; absent
// that, standard input is read only when it isn't a terminal.
func resolveArgs(ctx context.Context, args []string, budget *retry.Budget) (map[string]any, error) {
	if len(args) == 2 {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(args[1]), &parsed); err != nil {
			return nil, errs.New(errs.KindClient, "invalid JSON args", err)
		}
		return parsed, nil
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return map[string]any{}, nil
	}
	return router.ReadStdinArgs(ctx, os.Stdin, budget)
}
