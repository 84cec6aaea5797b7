package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"promoter/internal/config"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	cfg config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "promoter",
		Short:         "Generate, post and announce content for social promotion",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.WarnContext(cmd.Context(), "Failed to load .env file",
					"error", err)
			}

			cfg, err := config.Load()
			if err != nil {
				slog.ErrorContext(cmd.Context(), "Failed to load config",
					"error", err)

				return err
			}

			opts.cfg = cfg
			opts.log = newLogger(cfg.LogLevel)
			slog.SetDefault(opts.log)

			return nil
		},
	}

	root.AddCommand(
		newServeCmd(opts),
		newGenerateCmd(opts),
		newPostCmd(opts),
		newDigestCmd(opts),
		newNotifyCmd(opts),
		newRefreshTokensCmd(opts),
		newInviteCmd(opts),
		newAuthURLCmd(opts),
		newMigrateCmd(opts),
	)

	return root
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
