package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultDigestSpec       = "0 9 * * 5"
	DefaultTokenRefreshSpec = "0 3 * * *"
	DefaultTimezone         = "America/New_York"
	submitTimeout           = 30 * time.Second
)

// Submitter enqueues the periodic jobs. Each call returns the task id.
type Submitter interface {
	RunDigestNotification(ctx context.Context) (string, error)
	RunTokenRefreshScan(ctx context.Context) (string, error)
}

type Config struct {
	DigestSpec       string
	TokenRefreshSpec string
	Timezone         string
}

type Scheduler struct {
	ctx       context.Context
	cron      *cron.Cron
	cfg       Config
	submitter Submitter
	log       *slog.Logger
}

func New(ctx context.Context, cfg Config, submitter Submitter, log *slog.Logger) (*Scheduler, error) {
	if cfg.DigestSpec == "" {
		cfg.DigestSpec = DefaultDigestSpec
	}
	if cfg.TokenRefreshSpec == "" {
		cfg.TokenRefreshSpec = DefaultTokenRefreshSpec
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	return &Scheduler{
		ctx:       ctx,
		cron:      cron.New(cron.WithLocation(loc)),
		cfg:       cfg,
		submitter: submitter,
		log:       log,
	}, nil
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.DigestSpec, s.submitDigest); err != nil {
		return fmt.Errorf("add digest job: %w", err)
	}

	if _, err := s.cron.AddFunc(s.cfg.TokenRefreshSpec, s.submitTokenRefresh); err != nil {
		return fmt.Errorf("add token refresh job: %w", err)
	}

	s.cron.Start()

	return nil
}

// Stop waits for running submissions to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) submitDigest() {
	s.submit("digest", s.submitter.RunDigestNotification)
}

func (s *Scheduler) submitTokenRefresh() {
	s.submit("tokenRefresh", s.submitter.RunTokenRefreshScan)
}

func (s *Scheduler) submit(job string, fn func(ctx context.Context) (string, error)) {
	ctx, cancel := context.WithTimeout(s.ctx, submitTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err(),
			"job", job)
		return
	default:
	}

	taskID, err := fn(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to submit scheduled job",
			"error", err,
			"job", job)

		return
	}

	s.log.InfoContext(ctx, "Scheduled job is submitted",
		"job", job,
		"taskID", taskID)
}
