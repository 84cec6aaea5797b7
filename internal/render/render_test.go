package render_test

import (
	"strings"
	"testing"

	"promoter/internal/render"
)

func TestTextTemplates(t *testing.T) {
	r := render.MustNew()

	out, err := r.Text(render.UserPrompt, map[string]any{
		"Platform":  "LinkedIn",
		"Title":     "Zero trust in practice",
		"Published": "yesterday",
		"Excerpt":   "short",
		"Body":      "",
		"UserName":  "Ada",
		"Bio":       "Security professional",
		"Examples":  []string{"first", "second"},
		"URL":       "https://example.com/a?utm_source=linkedin",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"Zero trust in practice", "1. first", "2. second", "utm_source=linkedin"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	if strings.Contains(out, "Article text:") {
		t.Errorf("expected empty body to be omitted:\n%s", out)
	}
}

func TestHTMLTemplateEscapes(t *testing.T) {
	r := render.MustNew()

	out, err := r.HTML(render.DigestEmail, map[string]any{
		"UserName":    "Ada",
		"CompanyName": "Acme",
		"BaseURL":     "http://localhost:5001",
		"Items": []map[string]string{{
			"Title":       "<script>alert(1)</script>",
			"URL":         "https://example.com",
			"Description": "desc",
			"ImageURL":    "",
			"PromoteURL":  "http://localhost:5001/?promote=1",
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(out, "<script>") {
		t.Fatalf("expected title to be escaped:\n%s", out)
	}

	if !strings.Contains(out, "1 new piece of content") {
		t.Fatalf("expected singular wording:\n%s", out)
	}
}

func TestUnknownTemplateFails(t *testing.T) {
	r := render.MustNew()

	if _, err := r.Text("missing.txt.tmpl", nil); err == nil {
		t.Fatalf("expected unknown template to fail")
	}
}
