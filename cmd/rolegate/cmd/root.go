// Package cmd provides the CLI commands for rolegate.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/rolegate/internal/config"
)

var cfgFile string
var stateFilePath string

var rootCmd = &cobra.Command{
	Use:   "rolegate",
	Short: "rolegate - role-based authorization for avatar transactions",
	Long: `rolegate sits between modules and an avatar account and decides, per
role, which transactions a module may have the avatar execute: which
targets, which functions, with which parameter values, and whether value
transfers and delegatecalls are permitted.

Quick start:
  1. Create a config file: rolegate.yaml
  2. Run: rolegate start

Configuration:
  Config is loaded from rolegate.yaml in the current directory,
  $HOME/.rolegate/, or /etc/rolegate/.

  Environment variables can override config values with the ROLEGATE_ prefix.
  Example: ROLEGATE_SERVER_HTTP_ADDR=127.0.0.1:9090

Commands:
  start       Start the admin API and metrics server
  stop        Stop the running server
  check       Check a transaction against a role without forwarding it
  export      Print stored roles and members as YAML config
  reset       Reset to clean state (empty state.json)
  hash-key    Generate an argon2id hash for the admin key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./rolegate.yaml)")
	rootCmd.PersistentFlags().StringVar(&stateFilePath, "state", "", "path to state.json file (default: ./state.json)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// resolveStatePath returns the state file path: --state, then
// ROLEGATE_STATE_PATH, then ./state.json.
func resolveStatePath() string {
	if stateFilePath != "" {
		return stateFilePath
	}
	if env := os.Getenv("ROLEGATE_STATE_PATH"); env != "" {
		return env
	}
	return "./state.json"
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger writes text logs to stderr. DevMode always forces debug.
func newLogger(cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
