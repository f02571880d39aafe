package main

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/igniteclient/pkg/log"
)

var (
	configPath string
	dataDir    string
	logLevel   string
	jsonLogs   bool
)

var rootCmd = &cobra.Command{
	Use:   "igniteclient",
	Short: "Ignite client - on-device edge agent",
	Long:  "igniteclient runs the on-device edge agent: event routing, activation/auth backoff, the HTTP session pool, and the local IPC command channel.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/igniteclient/config.json", "path to the configuration document")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "/var/lib/igniteclient", "directory holding the persisted state database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of the console writer")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogging() {
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: jsonLogs,
	})
}
