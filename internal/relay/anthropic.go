package relay

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when the configured model is the Ollama default
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicRelay scores through Anthropic's Messages API. The endpoint
// argument of Send is ignored.
type AnthropicRelay struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates a relay backed by the Anthropic SDK
func NewAnthropic(apiKey, model string, httpClient *http.Client, opts ...option.RequestOption) *AnthropicRelay {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
	}, opts...)
	client := anthropic.NewClient(opts...)
	return &AnthropicRelay{
		client: &client,
		model:  model,
	}
}

// Send asks Claude to score the prompt and returns the first text block
func (a *AnthropicRelay) Send(ctx context.Context, _ string, req GenerateRequest) (*GenerateResponse, error) {
	model := a.model
	if model == "" {
		model = req.Model
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call Claude API: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return &GenerateResponse{Response: block.Text}, nil
		}
	}
	return nil, fmt.Errorf("Claude returned empty response")
}
