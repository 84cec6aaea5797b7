package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

const (
	SystemPrompt = "system_prompt.txt.tmpl"
	UserPrompt   = "user_prompt.txt.tmpl"
	DigestEmail  = "digest_email.html.tmpl"
	DigestChat   = "digest_chat.txt.tmpl"
	SingleChat   = "single_chat.txt.tmpl"
	ReauthChat   = "reauth_chat.txt.tmpl"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var funcs = map[string]any{
	"add": func(a, b int) int { return a + b },
}

// Renderer executes the embedded prompt and message templates.
type Renderer struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

func New() (*Renderer, error) {
	text, err := texttemplate.New("text").Funcs(funcs).ParseFS(templatesFS, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}

	html, err := htmltemplate.New("html").Funcs(funcs).ParseFS(templatesFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}

	return &Renderer{text: text, html: html}, nil
}

// MustNew panics when the embedded templates do not parse.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}

	return r
}

// Text renders a plain-text template and trims surrounding whitespace.
func (r *Renderer) Text(name string, data any) (string, error) {
	var b bytes.Buffer
	if err := r.text.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}

	return strings.TrimSpace(b.String()), nil
}

// HTML renders an escaped HTML template.
func (r *Renderer) HTML(name string, data any) (string, error) {
	var b bytes.Buffer
	if err := r.html.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}

	return b.String(), nil
}
