package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the peripheral endpoints next to the scorer: the health
// probe and the click-through topic extractor.
type Client struct {
	http          *http.Client
	healthTimeout time.Duration
}

// NewClient creates a Client. A zero healthTimeout uses 3 seconds.
func NewClient(httpClient *http.Client, healthTimeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if healthTimeout <= 0 {
		healthTimeout = 3 * time.Second
	}
	return &Client{http: httpClient, healthTimeout: healthTimeout}
}

// Health probes url and returns nil when it answers 2xx within the timeout
func (c *Client) Health(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

type topicRequest struct {
	Title string `json:"title"`
}

type topicResponse struct {
	Topic *string `json:"topic"`
}

// Topic sends a clicked title to url and returns the derived topic, or ""
// when the service returns null.
func (c *Client) Topic(ctx context.Context, url, title string) (string, error) {
	body, err := json.Marshal(topicRequest{Title: title})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call topic endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	}

	var out topicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse topic response: %w", err)
	}
	if out.Topic == nil {
		return "", nil
	}
	return *out.Topic, nil
}
