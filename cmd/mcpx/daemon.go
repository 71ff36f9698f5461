package mcpx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/cs50victor/mcpx/internal/daemon"
	"github.com/cs50victor/mcpx/internal/errs"
	"github.com/cs50victor/mcpx/internal/mcppool"
	"github.com/cs50victor/mcpx/pkg/logger"
)

var daemonForce bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background connection-pooling daemon",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show servers currently pooled by the daemon",
	RunE:  runDaemonStatus,
}

func init() {
	daemonStopCmd.Flags().BoolVar(&daemonForce, "force", false, "stop even if more than one server is pooled")
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd, daemonServeCmd)
}

// daemonServeCmd is the hidden entrypoint the detached child process
// actually runs; daemonStartCmd re-execs the binary with this subcommand
// and the internal sentinel environment variable set (spec.md §4.6).
var daemonServeCmd = &cobra.Command{
	Use:    "serve",
	Hidden: true,
	RunE:   runDaemonServe,
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	socketPath := daemon.SocketPath()
	if daemon.Running(socketPath) {
		fmt.Println("daemon already running")
		return nil
	}

	exePath, err := os.Executable()
	if err != nil {
		return exitWith(errs.New(errs.KindClient, "failed to locate mcpx executable", err))
	}

	child := exec.Command(exePath, "daemon", "serve")
	child.Env = append(os.Environ(), "_MCPX_DAEMON=1")
	if err := child.Start(); err != nil {
		return exitWith(errs.New(errs.KindClient, "failed to spawn daemon", err))
	}
	_ = child.Process.Release()

	for i := 0; i < 20; i++ {
		if daemon.Running(socketPath) {
			fmt.Println("daemon started")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return exitWith(errs.New(errs.KindNetwork, "daemon did not become ready in time", nil))
}

func runDaemonServe(cmd *cobra.Command, args []string) error {
	log := newDaemonLogger()
	defer logger.Close(log)

	pool := mcppool.New(log, daemon.IdleTimeoutFromEnv())
	srv := daemon.New(daemon.SocketPath(), pool, log)
	if err := srv.Run(); err != nil {
		return exitWith(errs.New(errs.KindNetwork, "daemon failed to start", err))
	}
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	socketPath := daemon.SocketPath()
	if !daemon.Running(socketPath) {
		fmt.Println("daemon not running")
		return nil
	}

	client := daemon.NewClient(socketPath)

	// Safety check on full stop (spec.md §4.6): refuse if more than one
	// server is pooled and force wasn't given, so one caller can't tear
	// down sessions another caller is relying on.
	if !daemonForce {
		servers, err := client.List(context.Background())
		if err != nil {
			return exitWith(errs.New(errs.KindNetwork, "failed to query daemon", err))
		}
		if len(servers) > 1 {
			return exitWith(errs.New(errs.KindClient,
				fmt.Sprintf("refusing to stop: %d servers are pooled (%v); use --force", len(servers), servers), nil))
		}
	}

	released, err := client.Shutdown(context.Background())
	if err != nil {
		return exitWith(errs.New(errs.KindNetwork, "failed to stop daemon", err))
	}
	fmt.Printf("daemon stopped, released: %v\n", released)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	socketPath := daemon.SocketPath()
	if !daemon.Running(socketPath) {
		fmt.Println("daemon not running")
		return nil
	}

	client := daemon.NewClient(socketPath)
	detailed, err := client.ListDetailed(context.Background())
	if err != nil {
		return exitWith(errs.New(errs.KindNetwork, "failed to query daemon", err))
	}
	if len(detailed) == 0 {
		fmt.Println("daemon running, no servers pooled")
		return nil
	}
	for _, d := range detailed {
		fmt.Printf("%-20s %-8s source=%-20s idle=%ds\n", d.Name, d.Transport, d.ConfigSource, d.IdleSeconds)
	}
	return nil
}
