package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fede-assistant/fede/internal/conf"
	"github.com/fede-assistant/fede/internal/infra/telegram"
	"github.com/fede-assistant/fede/internal/logutil"
)

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <text>",
		Short: "Send a message to the authorized user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			var errs []error
			if cfg.Telegram.BotToken == "" {
				errs = append(errs, &conf.ConfigError{Field: "TELEGRAM_BOT_TOKEN", Message: "required"})
			}
			if cfg.Telegram.UserID <= 0 {
				errs = append(errs, &conf.ConfigError{Field: "TELEGRAM_USER_ID", Message: "required"})
			}
			if err := errors.Join(errs...); err != nil {
				return err
			}

			bot, err := telegram.NewClient(cfg.Telegram.BotToken, telegram.Options{}, logutil.Component(logger, "telegram"))
			if err != nil {
				return err
			}
			// Private chats share the user's id
			return bot.SendText(cmd.Context(), cfg.Telegram.UserID, strings.Join(args, " "))
		},
	}
}
