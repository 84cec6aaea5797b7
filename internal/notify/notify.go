package notify

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"promoter/internal/cache"
	"promoter/internal/chat"
	"promoter/internal/domain"
	"promoter/internal/email"
	"promoter/internal/metrics"
	"promoter/internal/render"
)

const (
	LastRunKey      = "last_content_notification_run"
	DefaultLookback = 24 * time.Hour
	ChunkSize       = 15

	digestSubject     = "New Content Available to Share!"
	digestTitle       = "📢 New Content Ready for Promotion!"
	singleTitle       = "📢 Action Requested: Promote Content!"
	promoteLabel      = "Promote This 🚀"
	reconnectLabel    = "Reconnect account"
	noExcerpt         = "No excerpt available."
	descriptionLength = 200
)

type Store interface {
	GetContent(ctx context.Context, id int64) (domain.Content, error)
	ListContentCreatedAfter(ctx context.Context, after time.Time) ([]domain.Content, error)
	ListLinkedInAuthorizedUsers(ctx context.Context) ([]domain.User, error)
}

type Config struct {
	BaseURL        string
	CompanyName    string
	DefaultChannel string
	EmailEnabled   bool
	ChatEnabled    bool
}

// Notifier fans out email and chat notices. Delivery failures are logged
// and skipped so one bad recipient never blocks the rest.
type Notifier struct {
	store    Store
	cache    cache.Store
	chat     chat.Messenger
	email    email.Sender
	renderer *render.Renderer
	cfg      Config
	metrics  *metrics.Metrics
	now      func() time.Time
	log      *slog.Logger
}

// New builds a Notifier. chat and email may be nil when the backend is not
// configured.
func New(
	store Store,
	lastRun cache.Store,
	messenger chat.Messenger,
	sender email.Sender,
	renderer *render.Renderer,
	cfg Config,
	m *metrics.Metrics,
	log *slog.Logger,
) *Notifier {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Notifier{
		store:    store,
		cache:    lastRun,
		chat:     messenger,
		email:    sender,
		renderer: renderer,
		cfg:      cfg,
		metrics:  m,
		now:      time.Now,
		log:      log,
	}
}

// Item is one content entry as shown in notifications.
type Item struct {
	ID          int64
	Title       string
	URL         string
	Description string
	ImageURL    string
	PromoteURL  string
}

func (n *Notifier) item(c domain.Content) Item {
	description := strings.TrimSpace(c.Excerpt)
	if description == "" {
		if body := strings.TrimSpace(c.ScrapedBody); body != "" {
			if utf8.RuneCountInString(body) > descriptionLength {
				body = string([]rune(body)[:descriptionLength])
			}
			description = body + "..."
		}
	}

	return Item{
		ID:          c.ID,
		Title:       cmp.Or(strings.TrimSpace(c.Title), c.URL),
		URL:         c.URL,
		Description: description,
		ImageURL:    c.ImageURL,
		PromoteURL:  n.promoteURL(c.ID),
	}
}

func (n *Notifier) promoteURL(contentID int64) string {
	return fmt.Sprintf("%s/?promote=%d", n.cfg.BaseURL, contentID)
}

// ProfileURL is where users reconnect their accounts.
func (n *Notifier) ProfileURL() string {
	return n.cfg.BaseURL + "/auth/profile"
}

func (n *Notifier) chatEnabled() bool {
	return n.cfg.ChatEnabled && n.chat != nil && n.cfg.DefaultChannel != ""
}

var errNoChatBackend = errors.New("no chat backend is configured")
