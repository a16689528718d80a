// Package cmd provides the CLI commands for specula.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/inercia/specula/internal/appdir"
	"github.com/inercia/specula/internal/config"
	"github.com/inercia/specula/internal/logging"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFile    string
	logJSON    bool

	// Loaded configuration
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "specula",
	Short: "specula - live observation of mutating agent sessions",
	Long: `specula distributes session change events to any number of viewers.

A server process fans out typed events (sessions, messages, message parts,
permission requests) over Server-Sent Events and WebSocket streams; consumers
reconcile the stream into a local, causally ordered view that converges even
under duplicate, delayed or out-of-order delivery.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		// Without --config, fall back to config.yaml in the data
		// directory when one exists there.
		if configPath == "" {
			if p, err := appdir.ConfigPath(); err == nil {
				if _, err := os.Stat(p); err == nil {
					configPath = p
				}
			}
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		// Flags override file values.
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if logFile != "" {
			cfg.Log.File = logFile
		}
		if logJSON {
			cfg.Log.JSON = true
		}

		logCfg := logging.Config{
			Level: cfg.Log.Level,
			JSON:  cfg.Log.JSON,
		}
		if cfg.Log.File != "" {
			logCfg.FileLog = &logging.FileLogConfig{Path: cfg.Log.File}
		}
		return logging.Initialize(logCfg)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file (rotated)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log in JSON format")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
