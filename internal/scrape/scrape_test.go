package scrape_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"promoter/internal/scrape"
)

const articleHTML = `<!doctype html>
<html>
<head>
  <title>Fallback title</title>
  <meta property="og:title" content=" Zero trust in practice ">
  <meta property="og:image" content="https://example.com/cover.png">
  <meta name="description" content="How teams roll out zero trust.">
</head>
<body>
  <nav><p>Home | Blog | About us and other navigation links here</p></nav>
  <article>
    <p>Short.</p>
    <p>Zero trust replaces the perimeter with per-request verification of identity.</p>
    <p>Start with an inventory of users, devices and the services they reach.</p>
  </article>
</body>
</html>`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	s := scrape.New(srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	page, err := s.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if page.Title != "Zero trust in practice" {
		t.Errorf("unexpected title: %q", page.Title)
	}
	if page.Excerpt != "How teams roll out zero trust." {
		t.Errorf("unexpected excerpt: %q", page.Excerpt)
	}
	if page.ImageURL != "https://example.com/cover.png" {
		t.Errorf("unexpected image: %q", page.ImageURL)
	}

	paragraphs := strings.Split(page.Body, "\n\n")
	if len(paragraphs) != 2 || !strings.HasPrefix(paragraphs[0], "Zero trust replaces") {
		t.Errorf("unexpected body: %q", page.Body)
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s := scrape.New(srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := s.Fetch(context.Background(), srv.URL); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status error, got %v", err)
	}
}
