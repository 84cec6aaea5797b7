package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const (
	DefaultModel = openai.ChatModelGPT4oMini

	fallbackMaxOutputTokens int64 = 512
)

// OpenAIProvider calls OpenAI's Responses API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds a provider for the given model. Extra options
// (base URL, HTTP client) are forwarded to the SDK client.
func NewOpenAIProvider(apiKey, model string, opts ...option.RequestOption) (*OpenAIProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("API key is empty")
	}

	if model == "" {
		model = string(DefaultModel)
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}

	maxOutputTokens := int64(req.MaxTokens)
	if maxOutputTokens <= 0 {
		maxOutputTokens = fallbackMaxOutputTokens
	}

	params := responses.ResponseNewParams{
		Model:           p.model,
		MaxOutputTokens: openai.Int(maxOutputTokens),
		Temperature:     openai.Float(req.Temperature),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(prompt),
		},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.Instructions = openai.String(system)
	}

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}

	text := strings.TrimSpace(resp.OutputText())

	// A response cut at the token budget still carries usable text; the
	// caller validates its length.
	if resp.Status == "incomplete" && resp.IncompleteDetails.Reason != "max_output_tokens" {
		return "", fmt.Errorf(
			"response is incomplete (reason = %s, maxOutputTokens = %d)",
			resp.IncompleteDetails.Reason,
			maxOutputTokens,
		)
	}

	if text == "" {
		return "", fmt.Errorf("output text is missing (status = %s)", resp.Status)
	}

	return text, nil
}
