// Package mcpx is the CLI entrypoint: a cobra tree generalized from the
// teacher's cmd/root.go + cmd/mcp/ pair down to this broker's single
// concern — config, logging, and the list/info/call/daemon surface.
package mcpx

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cs50victor/mcpx/pkg/logger"
)

var (
	configFlag string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "mcpx",
	Short: "Discover and invoke tools on Model-Context-Protocol servers",
	Long: `mcpx is a command-line broker for discovering and invoking tools
exposed by Model-Context-Protocol servers, with an optional background
daemon that keeps sessions warm across invocations.`,
}

// Execute runs the root command and returns the process exit code
// spec.md §6 defines (0/1/2/3), as computed by the failing subcommand via
// exitWith; a cobra-level failure that never reached exitWith (bad flags,
// unknown subcommand) falls back to 1.
func Execute() int {
	lastExitCode = 0
	if err := rootCmd.Execute(); err != nil && lastExitCode == 0 {
		lastExitCode = 1
	}
	return lastExitCode
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "server config: a file path or inline JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(daemonCmd)
}

func initEnv() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, using system environment variables")
	}
	viper.AutomaticEnv()
}

func newLogger() logger.Logger {
	log, err := logger.New(logger.Config{Level: effectiveLogLevel(), Format: logFormat, Output: os.Stderr})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return log
}

// newDaemonLogger builds the daemon's logger: same level/format handling as
// the one-shot CLI commands, but rotated through lumberjack since the
// daemon is long-lived and nothing else ever truncates its log file.
func newDaemonLogger() logger.Logger {
	log, err := logger.New(logger.Config{
		Level:      effectiveLogLevel(),
		Format:     logFormat,
		Output:     os.Stderr,
		RotateFile: daemonLogPath(),
		MaxSizeMB:  20,
		MaxBackups: 3,
		MaxAgeDays: 28,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize daemon logger: %v\n", err)
		os.Exit(1)
	}
	return log
}

func effectiveLogLevel() string {
	if os.Getenv("MCP_DEBUG") != "" {
		return "debug"
	}
	return logLevel
}

func daemonLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "daemon.log"
	}
	return filepath.Join(home, ".mcp-cli", "daemon.log")
}
