package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fede-assistant/fede/internal/api"
	"github.com/fede-assistant/fede/internal/biz"
	"github.com/fede-assistant/fede/internal/data"
	"github.com/fede-assistant/fede/internal/infra/claude"
	"github.com/fede-assistant/fede/internal/infra/mcp"
	"github.com/fede-assistant/fede/internal/infra/telegram"
	"github.com/fede-assistant/fede/internal/logutil"
	"github.com/fede-assistant/fede/internal/metrics"
	"github.com/fede-assistant/fede/internal/server"
	"github.com/fede-assistant/fede/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			servers, err := cfg.MCPServers()
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := data.OpenDB(cfg.Session.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Info("database opened", "path", cfg.Session.DBPath)

			observer, err := metrics.New()
			if err != nil {
				return err
			}

			tools := mcp.NewManager(servers, mcp.Options{
				Recorder: observer,
				Version:  version,
			}, logutil.Component(logger, "mcp"))
			tools.Start(ctx)
			defer func() {
				if err := tools.Close(); err != nil {
					logger.Warn("failed to close mcp sessions", "error", err)
				}
			}()

			llm := claude.NewClient(claude.Config{
				APIKey:        cfg.Claude.APIKey,
				BaseURL:       cfg.Claude.BaseURL,
				Model:         cfg.Claude.Model,
				MaxTokens:     cfg.Claude.MaxTokens,
				MaxToolRounds: cfg.Claude.MaxToolRounds,
			}, logutil.Component(logger, "claude"))

			bot, err := telegram.NewClient(cfg.Telegram.BotToken, telegram.Options{}, logutil.Component(logger, "telegram"))
			if err != nil {
				return err
			}

			repos := data.NewRepositories(db, llm, tools, bot, observer, cfg.Claude.Timeout, logutil.Component(logger, "llm"))
			uc := biz.NewUsecases(biz.Repos{
				Session: repos.Session,
				Message: repos.Message,
				Action:  repos.Action,
				Pattern: repos.Pattern,
				LLM:     repos.LLM,
			}, biz.Options{
				Session:             cfg.Session.ToSessionConfig(),
				Prompts:             cfg.ToPromptConfig(),
				RequireConfirmation: cfg.Actions.RequireConfirmation,
				LearningEnabled:     cfg.Actions.LearningEnabled,
				LearningThreshold:   cfg.Actions.LearningThreshold,
			}, logger)

			if cfg.StatusAddr != "" {
				status := api.NewServer(cfg.StatusAddr, uc.Session, uc.Action, observer.Handler(), logutil.Component(logger, "api"))
				go func() {
					if err := status.Start(); err != nil {
						logger.Error("status server failed", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					if err := status.Stop(shutdownCtx); err != nil {
						logger.Warn("status server shutdown failed", "error", err)
					}
				}()
			}

			svc := service.NewBotService(uc, repos.LLM, repos.Chat, observer, cfg.Telegram.UserID, logutil.Component(logger, "bot"))
			srv := server.NewTelegramServer(bot, svc, observer, logutil.Component(logger, "server"))

			logger.Info("fede started",
				"version", version,
				"bot", bot.Username(),
				"model", llm.Model(),
				"integrations", tools.Servers())
			if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("shutting down")
			return nil
		},
	}
}
