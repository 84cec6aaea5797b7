package generator

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"promoter/internal/domain"
	"promoter/internal/metrics"
	"promoter/internal/platform"
	"promoter/internal/render"
	"promoter/internal/textgen"
)

const (
	DefaultMaxRetries  = 3
	DefaultTemperature = 0.7

	maxExcerptLength = 400
	maxBodyLength    = 2000
	maxExamplePosts  = 3

	defaultBio  = "Security professional"
	defaultName = "AI Promoter User"
)

type Options struct {
	MaxRetries  int
	Temperature float64
}

func DefaultOptions() Options {
	return Options{MaxRetries: DefaultMaxRetries, Temperature: DefaultTemperature}
}

// Result is the outcome of one generation call. Attempts counts provider
// calls and is zero when the platform was rejected up front.
type Result struct {
	Text     string
	Success  bool
	Error    string
	Attempts int
	Length   int
}

type Settings struct {
	CompanyName string
	UTMParams   string
}

type Generator struct {
	provider textgen.Provider
	renderer *render.Renderer
	settings Settings
	metrics  *metrics.Metrics
	now      func() time.Time
	log      *slog.Logger
}

func New(
	provider textgen.Provider,
	renderer *render.Renderer,
	settings Settings,
	m *metrics.Metrics,
	log *slog.Logger,
) *Generator {
	return &Generator{
		provider: provider,
		renderer: renderer,
		settings: settings,
		metrics:  m,
		now:      time.Now,
		log:      log,
	}
}

type systemPromptData struct {
	Platform       string
	Style          string
	HashtagStyle   string
	CompanyName    string
	Target         int
	URLAllowance   int
	Attempt        int
	PreviousLength int
}

type userPromptData struct {
	Platform  string
	Title     string
	Published string
	Excerpt   string
	Body      string
	UserName  string
	Bio       string
	Examples  []string
	URL       string
}

func (g *Generator) Generate(
	ctx context.Context,
	content domain.Content,
	user domain.User,
	p platform.Platform,
	opts Options,
) Result {
	cfg, ok := platform.ConfigFor(p)
	if !ok {
		return Result{Error: fmt.Sprintf("unsupported platform: %s", p)}
	}

	if g.provider == nil {
		return Result{Error: "no text provider is configured"}
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	taggedURL := TaggedURL(content.URL, g.settings.UTMParams, content.UTMCampaign)

	userPrompt, err := g.renderer.Text(render.UserPrompt, g.userPromptData(content, user, p, taggedURL))
	if err != nil {
		return Result{Error: err.Error()}
	}

	var (
		lastErr    error
		lastLength int
		attempts   int
	)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		systemPrompt, renderErr := g.renderer.Text(render.SystemPrompt, systemPromptData{
			Platform:       p.DisplayName(),
			Style:          cfg.Style,
			HashtagStyle:   cfg.HashtagStyle,
			CompanyName:    g.settings.CompanyName,
			Target:         cfg.MaxLength - platform.URLAllowance,
			URLAllowance:   platform.URLAllowance,
			Attempt:        attempt,
			PreviousLength: lastLength,
		})
		if renderErr != nil {
			return Result{Error: renderErr.Error(), Attempts: attempt - 1}
		}

		attempts = attempt

		text, genErr := g.provider.Generate(ctx, textgen.Request{
			System:      systemPrompt,
			Prompt:      userPrompt,
			MaxTokens:   cfg.MaxTokens,
			Temperature: opts.Temperature,
		})
		if genErr != nil {
			g.log.WarnContext(ctx, "Failed to generate copy",
				"error", genErr,
				"platform", p.String(),
				"contentID", content.ID,
				"attempt", attempt)

			lastErr = genErr
			lastLength = 0
			continue
		}

		text = strings.TrimSpace(retagLinks(text, content.URL, taggedURL))
		length := utf8.RuneCountInString(text)

		if cfg.Fits(text) {
			g.metrics.Generation(p.String(), true, attempt)

			return Result{
				Text:     text,
				Success:  true,
				Attempts: attempt,
				Length:   length,
			}
		}

		g.log.InfoContext(ctx, "Generated copy is too long",
			"platform", p.String(),
			"contentID", content.ID,
			"attempt", attempt,
			"length", length,
			"maxLength", cfg.MaxLength)

		lastErr = nil
		lastLength = length
	}

	g.metrics.Generation(p.String(), false, attempts)

	if lastErr != nil {
		return Result{
			Error:    fmt.Sprintf("provider error after %d attempts: %v", attempts, lastErr),
			Attempts: attempts,
		}
	}

	return Result{
		Error: fmt.Sprintf(
			"all %d attempts exceeded the %d character limit (last draft %d characters)",
			attempts, cfg.MaxLength, lastLength),
		Attempts: attempts,
		Length:   lastLength,
	}
}

func (g *Generator) userPromptData(
	content domain.Content,
	user domain.User,
	p platform.Platform,
	taggedURL string,
) userPromptData {
	examples := user.ExampleSocialPosts
	if len(examples) > maxExamplePosts {
		examples = examples[:maxExamplePosts]
	}

	return userPromptData{
		Platform:  p.DisplayName(),
		Title:     content.Title,
		Published: timeSince(content.PublishedAt, g.now()),
		Excerpt:   truncate(strings.TrimSpace(content.Excerpt), maxExcerptLength),
		Body:      truncate(strings.TrimSpace(content.ScrapedBody), maxBodyLength),
		UserName:  cmp.Or(strings.TrimSpace(user.Name), defaultName),
		Bio:       cmp.Or(strings.TrimSpace(user.Bio), defaultBio),
		Examples:  examples,
		URL:       taggedURL,
	}
}
