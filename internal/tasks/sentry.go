package tasks

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// SentryReporter forwards terminal task failures to Sentry.
type SentryReporter struct {
	hub *sentry.Hub
}

func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	return &SentryReporter{hub: hub}
}

func (r *SentryReporter) Report(_ context.Context, info Info, err error) {
	hub := r.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("task", info.Name)
		scope.SetTag("task_id", info.ID)
		scope.SetContext("task", sentry.Context{
			"retries":    info.Retries,
			"created_at": info.CreatedAt,
		})
	})
	hub.CaptureException(err)
}
