package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"promoter/internal/chat"
	"promoter/internal/database"
	"promoter/internal/domain"
	"promoter/internal/notify"
	"promoter/internal/orchestrator"
	"promoter/internal/platform"
	"promoter/internal/tasks"
	"promoter/internal/tokens"
)

const (
	TaskGenerate      = "generate_content"
	TaskPost          = "post_to_linkedin"
	TaskDigest        = "send_new_content_notification"
	TaskSingle        = "send_single_content_notification"
	TaskRefreshTokens = "refresh_expiring_tokens"
	TaskChannelInvite = "invite_to_channel"
)

type Pipeline interface {
	Generate(ctx context.Context, req orchestrator.GenerateRequest) (orchestrator.GenerateReport, error)
	Post(ctx context.Context, req orchestrator.PostRequest) (orchestrator.PostReport, error)
}

type Notifier interface {
	RunDigest(ctx context.Context) (notify.DigestReport, error)
	RunSingle(ctx context.Context, contentID int64) (notify.SingleReport, error)
	InviteToDefaultChannel(ctx context.Context, user domain.User) error
}

type TokenScanner interface {
	RunScan(ctx context.Context) (tokens.Summary, error)
}

type Users interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)
}

// Deps is everything a task needs. It is built once in main and passed
// explicitly.
type Deps struct {
	Users    Users
	Registry *platform.Registry
	Pipeline Pipeline
	Notifier Notifier
	Tokens   TokenScanner
	Queue    *tasks.Queue
	Log      *slog.Logger
}

// App submits pipeline operations to the task queue. Every Run method
// returns a task id to poll with Status or Wait.
type App struct {
	deps Deps
}

func New(deps Deps) *App {
	return &App{deps: deps}
}

func (a *App) RunGeneration(ctx context.Context, req orchestrator.GenerateRequest) (string, error) {
	return a.deps.Queue.Submit(ctx, TaskGenerate, func(ctx context.Context, taskID string) tasks.Outcome {
		req.TaskID = taskID

		report, err := a.deps.Pipeline.Generate(ctx, req)
		if err != nil {
			return classify(err)
		}

		a.retryFailedPosts(ctx, &report)

		return tasks.Done(report)
	})
}

// retryFailedPosts hands transient auto-post failures to delayed posting
// tasks so the generation result itself stays final.
func (a *App) retryFailedPosts(ctx context.Context, report *orchestrator.GenerateReport) {
	for key, pr := range report.Platforms {
		if pr.State != orchestrator.StatePostFailed || pr.Posting == nil || !pr.Posting.Transient {
			continue
		}

		p, err := platform.Parse(key)
		if err != nil {
			continue
		}

		taskID, err := a.deps.Queue.SubmitAfter(ctx, TaskPost, a.deps.Queue.BaseDelay(),
			a.postTask(report.UserID, report.ContentID, p, pr.Text))
		if err != nil {
			a.deps.Log.ErrorContext(ctx, "Failed to schedule posting retry",
				"error", err,
				"platform", key,
				"contentID", report.ContentID,
				"userID", report.UserID)

			continue
		}

		pr.PostRetryTaskID = taskID
		report.Platforms[key] = pr

		a.deps.Log.InfoContext(ctx, "Posting retry is scheduled",
			"platform", key,
			"contentID", report.ContentID,
			"userID", report.UserID,
			"retryTaskID", taskID)
	}
}

// RunPosting publishes text to LinkedIn for the user.
func (a *App) RunPosting(ctx context.Context, userID, contentID int64, text string) (string, error) {
	return a.deps.Queue.Submit(ctx, TaskPost, a.postTask(userID, contentID, platform.LinkedIn, text))
}

func (a *App) postTask(userID, contentID int64, p platform.Platform, text string) tasks.Func {
	return func(ctx context.Context, taskID string) tasks.Outcome {
		report, err := a.deps.Pipeline.Post(ctx, orchestrator.PostRequest{
			UserID:    userID,
			ContentID: contentID,
			Platform:  p,
			Text:      text,
			TaskID:    taskID,
		})
		if err != nil {
			return classify(err)
		}

		return tasks.Done(report)
	}
}

func (a *App) RunDigestNotification(ctx context.Context) (string, error) {
	return a.deps.Queue.Submit(ctx, TaskDigest, func(ctx context.Context, _ string) tasks.Outcome {
		report, err := a.deps.Notifier.RunDigest(ctx)
		if err != nil {
			return classify(err)
		}

		return tasks.Done(report)
	})
}

func (a *App) RunSingleNotification(ctx context.Context, contentID int64) (string, error) {
	return a.deps.Queue.Submit(ctx, TaskSingle, func(ctx context.Context, _ string) tasks.Outcome {
		report, err := a.deps.Notifier.RunSingle(ctx, contentID)
		if err != nil {
			return classify(err)
		}

		return tasks.Done(report)
	})
}

func (a *App) RunTokenRefreshScan(ctx context.Context) (string, error) {
	return a.deps.Queue.Submit(ctx, TaskRefreshTokens, func(ctx context.Context, _ string) tasks.Outcome {
		summary, err := a.deps.Tokens.RunScan(ctx)
		if err != nil {
			return classify(err)
		}

		return tasks.Done(summary)
	})
}

func (a *App) RunChannelInvite(ctx context.Context, userID int64) (string, error) {
	return a.deps.Queue.Submit(ctx, TaskChannelInvite, func(ctx context.Context, _ string) tasks.Outcome {
		user, err := a.deps.Users.GetUser(ctx, userID)
		if err != nil {
			return classify(fmt.Errorf("load user: %w", err))
		}

		if err = a.deps.Notifier.InviteToDefaultChannel(ctx, user); err != nil {
			return classify(err)
		}

		return tasks.Done(nil)
	})
}

// AuthURL builds the OAuth consent URL for the named platform.
func (a *App) AuthURL(name, redirectURI, state string) (string, error) {
	_, manager, err := a.deps.Registry.Lookup(name)
	if err != nil {
		return "", err
	}

	return manager.AuthURL(redirectURI, state), nil
}

func (a *App) Status(id string) (tasks.Info, bool) {
	return a.deps.Queue.Status(id)
}

func (a *App) Wait(ctx context.Context, id string) (tasks.Info, error) {
	return a.deps.Queue.Wait(ctx, id)
}

// classify is the single place that decides whether a task error is worth
// retrying.
func classify(err error) tasks.Outcome {
	switch {
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, platform.ErrInvalidPlatform),
		errors.Is(err, platform.ErrUnsupportedPlatform),
		errors.Is(err, orchestrator.ErrNotAuthorized),
		errors.Is(err, orchestrator.ErrPostRejected),
		errors.Is(err, orchestrator.ErrCredentialExpired),
		errors.Is(err, context.Canceled):
		return tasks.Fatal(err)
	}

	switch chat.CodeOf(err) {
	case chat.CodeChannelNotFound, chat.CodeUserNotFound, chat.CodeNotInChannel, chat.CodeMissingScope:
		return tasks.Fatal(err)
	}

	return tasks.Retry(err)
}
