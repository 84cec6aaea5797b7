package textgen_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"promoter/internal/textgen"

	"github.com/openai/openai-go/v3/option"
)

type recordedRequest struct {
	Model           string  `json:"model"`
	Instructions    string  `json:"instructions"`
	Input           string  `json:"input"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	Temperature     float64 `json:"temperature"`
}

func newResponsesServer(t *testing.T, body string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()

	var (
		mu       sync.Mutex
		requests []recordedRequest
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recordedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv, &requests
}

func TestOpenAIProviderGenerate(t *testing.T) {
	srv, requests := newResponsesServer(t, `{
		"id": "resp_1",
		"object": "response",
		"status": "completed",
		"output": [{
			"type": "message",
			"id": "msg_1",
			"role": "assistant",
			"status": "completed",
			"content": [{"type": "output_text", "text": "  Great read!  ", "annotations": []}]
		}]
	}`)

	p, err := textgen.NewOpenAIProvider("key", "gpt-4o-mini",
		option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, err := p.Generate(context.Background(), textgen.Request{
		System:      "be brief",
		Prompt:      "write a post",
		MaxTokens:   700,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if text != "Great read!" {
		t.Fatalf("unexpected text: %q", text)
	}

	if len(*requests) != 1 {
		t.Fatalf("expected one request, got %d", len(*requests))
	}

	got := (*requests)[0]
	if got.MaxOutputTokens != 700 || got.Instructions != "be brief" || got.Input != "write a post" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestOpenAIProviderEmptyOutput(t *testing.T) {
	srv, _ := newResponsesServer(t, `{"id": "resp_2", "object": "response", "status": "completed", "output": []}`)

	p, err := textgen.NewOpenAIProvider("key", "", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err = p.Generate(context.Background(), textgen.Request{Prompt: "x"}); err == nil {
		t.Fatalf("expected empty output to fail")
	}
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	if _, err := textgen.NewOpenAIProvider(" ", ""); err == nil {
		t.Fatalf("expected missing key to fail")
	}
}
