// Package main implements the rtrctl CLI: a thin operator surface over
// internal/orchestrator for driving and inspecting RTR client sessions
// from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/mellowdrifter/rtrsync/internal/config"
	"github.com/mellowdrifter/rtrsync/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cliCfg = config.DefaultClientConfig()

var rootCmd = &cobra.Command{
	Use:   "rtrctl",
	Short: "Operate RTR client sessions against one or more RPKI caches",
	Long: `rtrctl drives the RTR client session engine from the command line:
bootstrap a cache with init, force a resynchronisation with reset or
refresh, and inspect what a cache has handed over with print.`,
}

var logger *zap.SugaredLogger

func init() {
	rootCmd.PersistentFlags().StringVar(&cliCfg.StateDir, "statedir", cliCfg.StateDir, "Directory holding persisted ClientRecord JSON files")
	rootCmd.PersistentFlags().StringVar(&cliCfg.LogLevel, "loglevel", cliCfg.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&cliCfg.Port, "port", cliCfg.Port, "Port used for servers given without one")
	rootCmd.PersistentFlags().IntVar(&cliCfg.Version, "version", cliCfg.Version, "Highest RTR protocol version to offer (0, 1 or 2)")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logger = logging.New(cliCfg.LogLevel)
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
