package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

type stubSubmitter struct {
	mu      sync.Mutex
	digests int
	scans   int
	err     error
}

func (s *stubSubmitter) RunDigestNotification(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.digests++

	return "digest-task", s.err
}

func (s *stubSubmitter) RunTokenRefreshScan(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scans++

	return "scan-task", s.err
}

func newTestScheduler(t *testing.T, ctx context.Context, cfg Config, submitter Submitter) *Scheduler {
	t.Helper()

	s, err := New(ctx, cfg, submitter, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return s
}

func TestNewAppliesDefaults(t *testing.T) {
	s := newTestScheduler(t, context.Background(), Config{}, &stubSubmitter{})

	if s.cfg.DigestSpec != DefaultDigestSpec || s.cfg.TokenRefreshSpec != DefaultTokenRefreshSpec {
		t.Fatalf("unexpected specs: %+v", s.cfg)
	}

	if _, err := New(context.Background(), Config{Timezone: "Mars/Olympus"}, &stubSubmitter{}, nil); err == nil {
		t.Fatalf("expected unknown timezone to fail")
	}
}

func TestStartRegistersJobs(t *testing.T) {
	s := newTestScheduler(t, context.Background(), Config{Timezone: "UTC"}, &stubSubmitter{})

	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	if got := len(s.cron.Entries()); got != 2 {
		t.Fatalf("expected 2 cron entries, got %d", got)
	}

	bad := newTestScheduler(t, context.Background(), Config{DigestSpec: "not a spec", Timezone: "UTC"}, &stubSubmitter{})
	if err := bad.Start(); err == nil {
		t.Fatalf("expected invalid spec to fail")
	}
}

func TestSubmitJobs(t *testing.T) {
	submitter := &stubSubmitter{}
	s := newTestScheduler(t, context.Background(), Config{Timezone: "UTC"}, submitter)

	s.submitDigest()
	s.submitTokenRefresh()

	submitter.err = errors.New("queue stopped")
	s.submitDigest()

	if submitter.digests != 2 || submitter.scans != 1 {
		t.Fatalf("unexpected calls: %d digests, %d scans", submitter.digests, submitter.scans)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := newTestScheduler(t, ctx, Config{Timezone: "UTC"}, submitter)
	done.submitDigest()

	if submitter.digests != 2 {
		t.Fatalf("expected no submission after context is done")
	}
}
