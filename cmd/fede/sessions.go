package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fede-assistant/fede/internal/biz/usecase"
	"github.com/fede-assistant/fede/internal/data"
	"github.com/fede-assistant/fede/internal/logutil"
)

func openSessionUsecase(cmd *cobra.Command) (*usecase.SessionUsecase, func(), error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := data.OpenDB(cfg.Session.DBPath)
	if err != nil {
		return nil, nil, err
	}
	repos := data.NewStoreRepositories(db)
	uc := usecase.NewSessionUsecase(repos.Session, repos.Message, cfg.Session.ToSessionConfig(), logutil.Component(logger, "session"))
	return uc, func() { db.Close() }, nil
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			uc, closeDB, err := openSessionUsecase(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			sessions, err := uc.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSER\tACTIVE\tCREATED\tLAST ACTIVE")
			for _, s := range sessions {
				fmt.Fprintf(w, "%d\t%d\t%t\t%s\t%s\n",
					s.ID, s.UserID, s.Active,
					s.CreatedAt.Format("2006-01-02 15:04"),
					s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "Number of sessions to list")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			limit, _ := cmd.Flags().GetInt("limit")

			uc, closeDB, err := openSessionUsecase(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			session, err := uc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if session == nil {
				return fmt.Errorf("session %d not found", id)
			}
			messages, err := uc.History(cmd.Context(), id, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range messages {
				fmt.Fprintf(out, "[%s] %s:\n%s\n\n", m.CreatedAt.Format("2006-01-02 15:04:05"), strings.ToUpper(string(m.Role)), m.Content)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 100, "Number of most recent messages to print")
	return cmd
}
