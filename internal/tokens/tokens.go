package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"promoter/internal/domain"
	"promoter/internal/metrics"
	"promoter/internal/platform"
)

// Window is how far ahead of expiry a token is refreshed.
const Window = 7 * 24 * time.Hour

type Store interface {
	ListUsersWithExpiringTokens(ctx context.Context, before time.Time) ([]domain.User, error)
	SaveGrant(ctx context.Context, userID int64, grant domain.Grant) error
	ClearGrant(ctx context.Context, userID int64) error
}

// Notifier tells a user to reconnect an account.
type Notifier interface {
	SendReauthorization(ctx context.Context, user domain.User, p platform.Platform, reason string) (bool, error)
}

type Summary struct {
	Refreshed int
	Failed    int
	Revoked   int
}

// Scanner refreshes LinkedIn grants before they expire.
type Scanner struct {
	store    Store
	registry *platform.Registry
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
	log      *slog.Logger
}

func NewScanner(
	store Store,
	registry *platform.Registry,
	notifier Notifier,
	m *metrics.Metrics,
	log *slog.Logger,
) *Scanner {
	return &Scanner{
		store:    store,
		registry: registry,
		notifier: notifier,
		metrics:  m,
		now:      time.Now,
		log:      log,
	}
}

// RunScan refreshes every grant expiring within Window. A failure for one
// user is counted and the scan moves on.
func (s *Scanner) RunScan(ctx context.Context) (Summary, error) {
	var summary Summary

	refresher, err := s.registry.Refresher(platform.LinkedIn)
	if err != nil {
		return summary, fmt.Errorf("resolve refresher: %w", err)
	}

	users, err := s.store.ListUsersWithExpiringTokens(ctx, s.now().Add(Window))
	if err != nil {
		return summary, fmt.Errorf("list expiring tokens: %w", err)
	}

	for _, user := range users {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		switch s.refreshUser(ctx, refresher, user) {
		case platform.Refreshed:
			summary.Refreshed++
		case platform.RevokedOrExpired:
			summary.Revoked++
			summary.Failed++
		default:
			summary.Failed++
		}
	}

	s.log.InfoContext(ctx, "Token refresh scan is finished",
		"candidates", len(users),
		"refreshed", summary.Refreshed,
		"failed", summary.Failed,
		"revoked", summary.Revoked)

	return summary, nil
}

func (s *Scanner) refreshUser(
	ctx context.Context,
	refresher platform.TokenRefresher,
	user domain.User,
) platform.RefreshOutcome {
	grant, outcome, err := refresher.RefreshToken(ctx, user)
	s.metrics.TokenRefresh(outcome.String())

	switch outcome {
	case platform.Refreshed:
		if err = s.store.SaveGrant(ctx, user.ID, grant); err != nil {
			s.log.ErrorContext(ctx, "Failed to save refreshed grant",
				"error", err,
				"userID", user.ID)

			return platform.RefreshFailed
		}

		return platform.Refreshed
	case platform.RevokedOrExpired:
		s.log.WarnContext(ctx, "LinkedIn grant is revoked or expired",
			"error", err,
			"userID", user.ID)

		if clearErr := s.store.ClearGrant(ctx, user.ID); clearErr != nil {
			s.log.ErrorContext(ctx, "Failed to clear revoked grant",
				"error", clearErr,
				"userID", user.ID)
		}

		if s.notifier != nil {
			if _, notifyErr := s.notifier.SendReauthorization(ctx, user, platform.LinkedIn,
				"Your LinkedIn authorization has expired."); notifyErr != nil {
				s.log.ErrorContext(ctx, "Failed to send reauthorization notice",
					"error", notifyErr,
					"userID", user.ID)
			}
		}

		return platform.RevokedOrExpired
	default:
		s.log.ErrorContext(ctx, "Failed to refresh LinkedIn token",
			"error", err,
			"userID", user.ID)

		return platform.RefreshFailed
	}
}
