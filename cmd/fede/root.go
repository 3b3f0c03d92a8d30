package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fede-assistant/fede/internal/conf"
	"github.com/fede-assistant/fede/internal/logutil"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "fede",
		Short:        "Fede, a personal assistant on Telegram",
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("env-file", ".env", "Environment file loaded before reading the environment")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newSendCmd())

	return cmd
}

// loadConfig loads configuration and builds the process logger
func loadConfig(cmd *cobra.Command) (*conf.Config, *slog.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := conf.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logutil.New(cfg.LogOptions())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
