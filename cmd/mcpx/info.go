package mcpx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cs50victor/mcpx/internal/errs"
	"github.com/cs50victor/mcpx/internal/mcpconfig"
	"github.com/cs50victor/mcpx/internal/mcpfactory"
	"github.com/cs50victor/mcpx/internal/retry"
	"github.com/cs50victor/mcpx/pkg/logger"
)

var infoCmd = &cobra.Command{
	Use:   "info <server>",
	Short: "Show a server's instructions and tool schemas",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer logger.Close(log)

	servers, err := mcpconfig.Resolve(configFlag)
	if err != nil {
		return exitWith(errs.New(errs.KindConfig, "failed to load server config", err))
	}
	cfg, err := resolveServer(servers, args[0])
	if err != nil {
		return exitWith(err)
	}

	retryCfg := retry.FromEnv()
	budget := retry.NewBudget(retryCfg.TotalBudget)
	session, err := mcpfactory.OpenSession(context.Background(), cfg, retryCfg, budget, os.Stderr)
	if err != nil {
		return exitWith(err)
	}
	defer session.Close()

	if instructions := session.Instructions(); instructions != "" {
		fmt.Println(instructions)
	}

	tools, err := session.ListTools(context.Background())
	if err != nil {
		return exitWith(errs.New(errs.KindServerTool, "failed to list tools", err))
	}

	for _, t := range tools {
		if mcpconfig.Blocked(cfg, t.Name) {
			continue
		}
		fmt.Printf("%s: %s\n", t.Name, t.Description)
		schema, err := json.MarshalIndent(t.InputSchema, "  ", "  ")
		if err == nil {
			fmt.Printf("  %s\n", schema)
		}
	}
	return nil
}
