package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	userAgent        = "Mozilla/5.0 (compatible; PromoterBot/1.0)"
	defaultTimeout   = 15 * time.Second
	maxBodyBytes     = 2 << 20
	minParagraphSize = 40
)

// Page is what the scraper extracts from an article.
type Page struct {
	Title    string
	Excerpt  string
	Body     string
	ImageURL string
}

type Scraper struct {
	client *http.Client
	log    *slog.Logger
}

func New(client *http.Client, log *slog.Logger) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Scraper{client: client, log: log}
}

func (s *Scraper) Fetch(ctx context.Context, pageURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req) //nolint:gosec // content URL
	if err != nil {
		return Page{}, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			s.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"url", pageURL,
				"operation", "Fetch")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("do request: unexpected status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("create document from reader: %w", err)
	}

	return parse(doc), nil
}

func parse(doc *goquery.Document) Page {
	page := Page{
		Title:    meta(doc, "og:title"),
		Excerpt:  meta(doc, "og:description"),
		ImageURL: meta(doc, "og:image"),
	}

	if page.Title == "" {
		page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if page.Excerpt == "" {
		page.Excerpt = strings.TrimSpace(doc.Find("meta[name='description']").AttrOr("content", ""))
	}

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	var body strings.Builder
	root.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.Join(strings.Fields(p.Text()), " ")
		if len(text) < minParagraphSize {
			return
		}
		if body.Len() > 0 {
			body.WriteString("\n\n")
		}
		body.WriteString(text)
	})
	page.Body = body.String()

	return page
}

func meta(doc *goquery.Document, property string) string {
	return strings.TrimSpace(doc.Find("meta[property='" + property + "']").AttrOr("content", ""))
}
