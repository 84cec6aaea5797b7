package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"promoter/internal/domain"
	"promoter/internal/generator"
	"promoter/internal/metrics"
	"promoter/internal/platform"
	"promoter/internal/scrape"
)

var (
	ErrNotAuthorized     = errors.New("user is not authorized")
	ErrPostRejected      = errors.New("post rejected")
	ErrCredentialExpired = errors.New("platform credentials expired")
)

// State tracks one (content, user, platform) sub-task.
type State string

const (
	StatePending          State = "PENDING"
	StateGenerating       State = "GENERATING"
	StateGenerated        State = "GENERATED"
	StateGenerationFailed State = "GENERATION_FAILED"
	StatePosting          State = "POSTING"
	StatePosted           State = "POSTED"
	StatePostFailed       State = "POST_FAILED"
)

type Source string

const (
	SourceAI   Source = "ai-generated"
	SourceUser Source = "user-provided"
	SourceErr  Source = "error"
)

type Store interface {
	GetContent(ctx context.Context, id int64) (domain.Content, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
	UpdateContentBody(ctx context.Context, id int64, excerpt, body string) error
	RecordShare(ctx context.Context, s domain.Share) (domain.Share, bool, error)
	ShareByTask(ctx context.Context, taskID string) (domain.Share, error)
	ClearGrant(ctx context.Context, userID int64) error
}

type Generator interface {
	Generate(
		ctx context.Context,
		content domain.Content,
		user domain.User,
		p platform.Platform,
		opts generator.Options,
	) generator.Result
}

// Notifier tells a user to reconnect an account.
type Notifier interface {
	SendReauthorization(ctx context.Context, user domain.User, p platform.Platform, reason string) (bool, error)
}

// Enricher fetches article text for content that has none stored.
type Enricher interface {
	Fetch(ctx context.Context, pageURL string) (scrape.Page, error)
}

type Orchestrator struct {
	store     Store
	generator Generator
	registry  *platform.Registry
	notifier  Notifier
	enricher  Enricher
	metrics   *metrics.Metrics
	now       func() time.Time
	log       *slog.Logger
}

// New builds an Orchestrator. notifier and enricher may be nil.
func New(
	store Store,
	gen Generator,
	registry *platform.Registry,
	notifier Notifier,
	enricher Enricher,
	m *metrics.Metrics,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:     store,
		generator: gen,
		registry:  registry,
		notifier:  notifier,
		enricher:  enricher,
		metrics:   m,
		now:       time.Now,
		log:       log,
	}
}

// expireCredentials clears the stored grant and asks the user to reconnect.
// Both steps are best effort.
func (o *Orchestrator) expireCredentials(
	ctx context.Context,
	user domain.User,
	p platform.Platform,
	reason string,
) {
	if err := o.store.ClearGrant(ctx, user.ID); err != nil {
		o.log.ErrorContext(ctx, "Failed to clear expired grant",
			"error", err,
			"userID", user.ID,
			"platform", p.String())
	}

	if o.notifier == nil {
		return
	}

	sent, err := o.notifier.SendReauthorization(ctx, user, p, reason)
	if err != nil {
		o.log.ErrorContext(ctx, "Failed to send reauthorization notice",
			"error", err,
			"userID", user.ID,
			"platform", p.String())

		return
	}

	if !sent {
		o.log.WarnContext(ctx, "No notification channel for reauthorization notice",
			"userID", user.ID,
			"platform", p.String())
	}
}

func (o *Orchestrator) enrich(ctx context.Context, content domain.Content) domain.Content {
	if o.enricher == nil || content.Excerpt != "" || content.ScrapedBody != "" {
		return content
	}

	page, err := o.enricher.Fetch(ctx, content.URL)
	if err != nil {
		o.log.WarnContext(ctx, "Failed to scrape content page",
			"error", err,
			"contentID", content.ID,
			"url", content.URL)

		return content
	}

	if page.Excerpt == "" && page.Body == "" {
		return content
	}

	if err = o.store.UpdateContentBody(ctx, content.ID, page.Excerpt, page.Body); err != nil {
		o.log.WarnContext(ctx, "Failed to store scraped content",
			"error", err,
			"contentID", content.ID)
	}

	content.Excerpt = page.Excerpt
	content.ScrapedBody = page.Body

	return content
}
