package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttled spaces out messages per destination so bursts from the digest
// do not trip provider rate limits.
type Throttled struct {
	next     Messenger
	interval time.Duration
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	log      *slog.Logger
}

func NewThrottled(next Messenger, interval time.Duration, log *slog.Logger) *Throttled {
	return &Throttled{
		next:     next,
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
		log:      log,
	}
}

func (t *Throttled) limiter(destination string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.limiters[destination]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[destination] = l
	}

	return l
}

func (t *Throttled) PostMessage(ctx context.Context, destination string, msg Message) error {
	if t.interval > 0 {
		reservation := t.limiter(destination).Reserve()

		if delay := reservation.Delay(); delay > 0 {
			t.log.DebugContext(ctx, "Rate limiting message",
				"destination", destination,
				"delay", delay)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				reservation.Cancel()

				return ctx.Err()
			}
		}
	}

	return t.next.PostMessage(ctx, destination, msg)
}

var errInviteUnsupported = errors.New("chat backend does not support channel invites")

func (t *Throttled) InviteToChannel(ctx context.Context, channel, user string) error {
	inviter, ok := t.next.(Inviter)
	if !ok {
		return errInviteUnsupported
	}

	return inviter.InviteToChannel(ctx, channel, user)
}
