// Package relay performs the network calls to the scoring service on behalf
// of the pipeline.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/ytfilter/internal/config"
)

// ErrStatus is returned when the scoring service answers with a non-2xx status
var ErrStatus = errors.New("unexpected status")

// GenerateRequest is the body posted to the scoring endpoint
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// GenerateResponse is the decoded reply. Response holds free text that
// should contain a {score, reason} fragment.
type GenerateResponse struct {
	Response string `json:"response"`
}

// Relay sends a scoring request to endpoint and returns the decoded reply
type Relay interface {
	Send(ctx context.Context, endpoint string, req GenerateRequest) (*GenerateResponse, error)
}

// New creates the relay for the configured provider. client may be nil.
func New(cfg config.ScoringConfig, client *http.Client, logger *zap.Logger) (Relay, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.ScoringTimeout()}
	}

	var r Relay
	switch cfg.Provider {
	case config.ProviderOllama, "":
		r = NewHTTP(client)
	case config.ProviderAnthropic:
		model := cfg.Model
		if model == "" || model == config.DefaultModel {
			model = DefaultAnthropicModel
		}
		r = NewAnthropic(cfg.APIKey, model, client)
	default:
		return nil, fmt.Errorf("unknown scoring provider: %s", cfg.Provider)
	}

	if cfg.BreakerEnabled {
		r = WithBreaker(r, BreakerConfig{
			FailureThreshold: uint(max(cfg.BreakerFailureThreshold, 1)),
			Delay:            time.Duration(cfg.BreakerDelaySeconds) * time.Second,
		}, logger)
	}
	return r, nil
}

// HTTPRelay posts the request as JSON to the endpoint (Ollama's /api/generate shape)
type HTTPRelay struct {
	client *http.Client
}

func NewHTTP(client *http.Client) *HTTPRelay {
	return &HTTPRelay{client: client}
}

// Send posts req to endpoint
func (h *HTTPRelay) Send(ctx context.Context, endpoint string, req GenerateRequest) (*GenerateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call scoring endpoint: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, truncate(string(data), 200))
	}

	var out GenerateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
