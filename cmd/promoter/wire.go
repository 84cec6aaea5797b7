package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"promoter/internal/app"
	"promoter/internal/cache"
	"promoter/internal/chat"
	"promoter/internal/chat/slack"
	"promoter/internal/chat/telegram"
	"promoter/internal/config"
	"promoter/internal/database"
	"promoter/internal/email"
	"promoter/internal/generator"
	"promoter/internal/metrics"
	"promoter/internal/notify"
	"promoter/internal/orchestrator"
	"promoter/internal/platform"
	"promoter/internal/platform/linkedin"
	"promoter/internal/render"
	"promoter/internal/scrape"
	"promoter/internal/tasks"
	"promoter/internal/textgen"
	"promoter/internal/tokens"
)

const sentryFlushTimeout = 2 * time.Second

// runtime owns every long-lived dependency built from config.
type runtime struct {
	app      *app.App
	queue    *tasks.Queue
	registry *prometheus.Registry
	closers  []func()
	log      *slog.Logger
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*runtime, error) {
	rt := &runtime{log: log}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			log.ErrorContext(ctx, "Failed to initialize Sentry so errors will not be reported",
				"error", err)
		} else {
			rt.closers = append(rt.closers, func() { sentry.Flush(sentryFlushTimeout) })
			log.InfoContext(ctx, "Sentry is initialized")
		}
	}

	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(rt.registry)

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("initialize db: %w", err)
	}
	rt.closers = append(rt.closers, func() {
		if closeErr := db.Close(); closeErr != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", closeErr,
				"dbPath", cfg.DBPath)
		}
	})
	log.InfoContext(ctx, "DB is initialized",
		"dbPath", cfg.DBPath)

	lastRun, err := initCache(ctx, cfg, rt, log)
	if err != nil {
		rt.Close()

		return nil, err
	}

	renderer, err := render.New()
	if err != nil {
		rt.Close()

		return nil, fmt.Errorf("initialize templates: %w", err)
	}

	messenger, err := initChat(ctx, cfg, log)
	if err != nil {
		rt.Close()

		return nil, err
	}

	notifier := notify.New(db, lastRun, messenger, initEmail(ctx, cfg, log), renderer, notify.Config{
		BaseURL:        cfg.BaseURL,
		CompanyName:    cfg.CompanyName,
		DefaultChannel: cfg.Chat.DefaultChannel,
		EmailEnabled:   cfg.EmailEnabled,
		ChatEnabled:    cfg.Chat.NotificationsEnabled,
	}, m, log)

	registry := platform.NewRegistry(map[platform.Platform]platform.Manager{
		platform.LinkedIn: linkedin.New(linkedin.Config{
			ClientID:     cfg.LinkedIn.ClientID,
			ClientSecret: cfg.LinkedIn.ClientSecret,
			RedirectURL:  cfg.LinkedIn.RedirectURL,
			AuthURL:      cfg.LinkedIn.AuthURL,
			TokenURL:     cfg.LinkedIn.TokenURL,
			APIURL:       cfg.LinkedIn.APIURL,
		}, nil, db, log),
	})

	gen := generator.New(initProvider(ctx, cfg, log), renderer, generator.Settings{
		CompanyName: cfg.CompanyName,
		UTMParams:   cfg.UTMParams,
	}, m, log)

	orch := orchestrator.New(db, gen, registry, notifier, scrape.New(nil, log), m, log)

	var reporter tasks.Reporter
	if cfg.SentryDSN != "" {
		reporter = tasks.NewSentryReporter(sentry.CurrentHub())
	}

	rt.queue = tasks.New(tasks.Config{
		Workers:    cfg.Tasks.Workers,
		BaseDelay:  cfg.Tasks.RetryBaseDelay,
		MaxRetries: cfg.Tasks.MaxRetries,
		Retention:  cfg.Tasks.ResultRetention,
	}, m, reporter, log)
	rt.closers = append(rt.closers, rt.queue.Stop)

	rt.app = app.New(app.Deps{
		Users:    db,
		Registry: registry,
		Pipeline: orch,
		Notifier: notifier,
		Tokens:   tokens.NewScanner(db, registry, notifier, m, log),
		Queue:    rt.queue,
		Log:      log,
	})

	return rt, nil
}

func initCache(ctx context.Context, cfg config.Config, rt *runtime, log *slog.Logger) (cache.Store, error) {
	if cfg.RedisURL == "" {
		log.WarnContext(ctx, "REDIS_URL is missing so in-process cache will be used",
			"envVar", "REDIS_URL")

		return cache.NewMemory(0), nil
	}

	r, err := cache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("initialize redis: %w", err)
	}
	rt.closers = append(rt.closers, func() {
		if closeErr := r.Close(); closeErr != nil {
			log.ErrorContext(ctx, "Failed to close redis",
				"error", closeErr)
		}
	})

	return r, nil
}

func initChat(ctx context.Context, cfg config.Config, log *slog.Logger) (chat.Messenger, error) {
	var next chat.Messenger

	switch cfg.Chat.Backend {
	case "telegram":
		if cfg.Chat.TelegramToken == "" {
			break
		}

		client, err := telegram.New(cfg.Chat.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("initialize telegram: %w", err)
		}
		next = client
	default:
		if cfg.Chat.SlackToken != "" {
			next = slack.New(cfg.Chat.SlackToken)
		}
	}

	if next == nil {
		log.WarnContext(ctx, "Chat token is missing so chat notifications are disabled",
			"backend", cfg.Chat.Backend)

		return nil, nil
	}

	log.InfoContext(ctx, "Chat backend is initialized",
		"backend", cfg.Chat.Backend,
		"minInterval", cfg.Chat.MinInterval)

	return chat.NewThrottled(next, cfg.Chat.MinInterval, log), nil
}

func initEmail(ctx context.Context, cfg config.Config, log *slog.Logger) email.Sender {
	if !cfg.EmailEnabled || cfg.Mail.Server == "" {
		log.InfoContext(ctx, "Email notifications are disabled",
			"emailEnabled", cfg.EmailEnabled)

		return nil
	}

	return email.NewSMTPSender(email.Config{
		Host:     cfg.Mail.Server,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.Sender,
		FromName: cfg.CompanyName,
	})
}

func initProvider(ctx context.Context, cfg config.Config, log *slog.Logger) textgen.Provider {
	if cfg.OpenAI.APIKey == "" {
		log.WarnContext(ctx, "OPENAI_API_KEY is missing so generation will fail",
			"envVar", "OPENAI_API_KEY")

		return nil
	}

	provider, err := textgen.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create OpenAI provider so generation will fail",
			"error", err)

		return nil
	}

	log.InfoContext(ctx, "OpenAI provider is initialized",
		"model", cfg.OpenAI.Model)

	return provider
}
