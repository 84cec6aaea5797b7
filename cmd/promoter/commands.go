package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"promoter/internal/app"
	"promoter/internal/database"
	"promoter/internal/generator"
	"promoter/internal/orchestrator"
	"promoter/internal/scheduler"
	"promoter/internal/tasks"
)

const (
	shutdownTimeout = 10 * time.Second
	readTimeout     = 5 * time.Second
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the task workers, the scheduler and the metrics endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			log := opts.log

			rt, err := build(ctx, opts.cfg, log)
			if err != nil {
				log.ErrorContext(ctx, "Failed to initialize runtime",
					"error", err)

				return err
			}
			defer rt.Close()

			rt.queue.Start(ctx)
			log.InfoContext(ctx, "Task workers are started",
				"workers", opts.cfg.Tasks.Workers)

			sched, err := scheduler.New(ctx, scheduler.Config{
				DigestSpec:       opts.cfg.Schedule.Digest,
				TokenRefreshSpec: opts.cfg.Schedule.TokenRefresh,
				Timezone:         opts.cfg.Schedule.Timezone,
			}, rt.app, log)
			if err == nil {
				err = sched.Start()
			}
			if err != nil {
				log.ErrorContext(ctx, "Failed to start scheduler",
					"error", err,
					"digestSpec", opts.cfg.Schedule.Digest,
					"tokenRefreshSpec", opts.cfg.Schedule.TokenRefresh,
					"timezone", opts.cfg.Schedule.Timezone)

				return err
			}
			defer sched.Stop()
			log.InfoContext(ctx, "Scheduler is started",
				"digestSpec", opts.cfg.Schedule.Digest,
				"tokenRefreshSpec", opts.cfg.Schedule.TokenRefresh,
				"timezone", opts.cfg.Schedule.Timezone)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))

			srv := &http.Server{
				Addr:              opts.cfg.MetricsAddr,
				Handler:           mux,
				ReadHeaderTimeout: readTimeout,
			}

			go func() {
				if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
					log.ErrorContext(ctx, "Failed to serve metrics",
						"error", serveErr,
						"addr", srv.Addr)
				}
			}()
			log.InfoContext(ctx, "Metrics endpoint is started",
				"addr", srv.Addr)

			<-ctx.Done()
			log.InfoContext(ctx, "Shutdown signal is received",
				"uptimeSeconds", time.Since(start).Seconds())

			shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer shutdownCancel()

			if err = srv.Shutdown(shutdownCtx); err != nil {
				log.ErrorContext(ctx, "Failed to shut down metrics endpoint",
					"error", err)
			}

			log.InfoContext(ctx, "Exiting...",
				"uptimeSeconds", time.Since(start).Seconds())

			return nil
		},
	}
}

// runTask builds the runtime, submits one task and prints its final state.
func runTask(cmd *cobra.Command, opts *options, submit func(ctx context.Context, a *app.App) (string, error)) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := build(ctx, opts.cfg, opts.log)
	if err != nil {
		opts.log.ErrorContext(ctx, "Failed to initialize runtime",
			"error", err)

		return err
	}
	defer rt.Close()

	rt.queue.Start(ctx)

	id, err := submit(ctx, rt.app)
	if err != nil {
		return fmt.Errorf("submit task: %w", err)
	}

	info, err := rt.app.Wait(ctx, id)
	if err != nil {
		return fmt.Errorf("wait for task %s: %w", id, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err = enc.Encode(info); err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	if info.State == tasks.StateFailure {
		return errors.New(info.Error)
	}

	return nil
}

func newGenerateCmd(opts *options) *cobra.Command {
	var (
		contentID   int64
		userID      int64
		platforms   []string
		autoPost    bool
		maxRetries  int
		temperature float64
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate platform copy for a content item and optionally post it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTask(cmd, opts, func(ctx context.Context, a *app.App) (string, error) {
				return a.RunGeneration(ctx, orchestrator.GenerateRequest{
					ContentID: contentID,
					UserID:    userID,
					Platforms: platforms,
					AutoPost:  autoPost,
					Options:   generator.Options{MaxRetries: maxRetries, Temperature: temperature},
				})
			})
		},
	}
	cmd.Flags().Int64Var(&contentID, "content", 0, "content id")
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().StringSliceVar(&platforms, "platform", []string{"linkedin"}, "target platforms")
	cmd.Flags().BoolVar(&autoPost, "auto-post", false, "post generated copy where the user is authorized")
	cmd.Flags().IntVar(&maxRetries, "max-retries", generator.DefaultMaxRetries, "generation attempts per platform")
	cmd.Flags().Float64Var(&temperature, "temperature", generator.DefaultTemperature, "model temperature")
	_ = cmd.MarkFlagRequired("content")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newPostCmd(opts *options) *cobra.Command {
	var (
		contentID int64
		userID    int64
		text      string
	)

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post text to LinkedIn on behalf of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTask(cmd, opts, func(ctx context.Context, a *app.App) (string, error) {
				return a.RunPosting(ctx, userID, contentID, text)
			})
		},
	}
	cmd.Flags().Int64Var(&contentID, "content", 0, "content id")
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&text, "text", "", "text to post")
	_ = cmd.MarkFlagRequired("content")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func newDigestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Announce content created since the last digest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTask(cmd, opts, func(ctx context.Context, a *app.App) (string, error) {
				return a.RunDigestNotification(ctx)
			})
		},
	}
}

func newNotifyCmd(opts *options) *cobra.Command {
	var contentID int64

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Ask the default channel to promote one content item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTask(cmd, opts, func(ctx context.Context, a *app.App) (string, error) {
				return a.RunSingleNotification(ctx, contentID)
			})
		},
	}
	cmd.Flags().Int64Var(&contentID, "content", 0, "content id")
	_ = cmd.MarkFlagRequired("content")

	return cmd
}

func newRefreshTokensCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-tokens",
		Short: "Refresh LinkedIn tokens that expire within a week",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTask(cmd, opts, func(ctx context.Context, a *app.App) (string, error) {
				return a.RunTokenRefreshScan(ctx)
			})
		},
	}
}

func newInviteCmd(opts *options) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Invite a user to the default chat channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTask(cmd, opts, func(ctx context.Context, a *app.App) (string, error) {
				return a.RunChannelInvite(ctx, userID)
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newAuthURLCmd(opts *options) *cobra.Command {
	var (
		name        string
		redirectURI string
		state       string
	)

	cmd := &cobra.Command{
		Use:   "auth-url",
		Short: "Print the OAuth consent URL for a platform",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := build(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer rt.Close()

			if state == "" {
				state = uuid.NewString()
			}
			if redirectURI == "" {
				redirectURI = opts.cfg.LinkedIn.RedirectURL
			}

			authURL, err := rt.app.AuthURL(name, redirectURI, state)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), authURL)

			return err
		},
	}
	cmd.Flags().StringVar(&name, "platform", "linkedin", "platform identifier")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "OAuth redirect URI")
	cmd.Flags().StringVar(&state, "state", "", "OAuth state; random when empty")

	return cmd
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.New(cmd.Context(), opts.cfg.DBPath, opts.log)
			if err != nil {
				return err
			}

			return db.Close()
		},
	}
}
