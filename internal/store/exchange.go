package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/ibeckermayer/ytfilter/internal/config"
)

// Exchange is a scoring prompt/response pair kept for debugging
type Exchange struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"` // e.g. "ollama"
	Model     string    `json:"model"`
	VideoID   string    `json:"video_id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ExchangeDir returns the path to the exchange dump directory.
// On Linux this is ~/.cache/ytfilter/exchanges/
func ExchangeDir() (string, error) {
	cacheDir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "exchanges"), nil
}

// SaveExchange writes an exchange to a timestamped JSON file.
// Returns the path to the saved file.
func SaveExchange(exchange Exchange) (string, error) {
	dir, err := ExchangeDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create exchange dir: %w", err)
	}

	if exchange.Timestamp.IsZero() {
		exchange.Timestamp = time.Now()
	}
	// Several items score within one second, so the video id disambiguates.
	filename := exchange.Timestamp.Format("2006-01-02T15-04-05.000")
	if exchange.VideoID != "" {
		filename += "_" + unsafeName.ReplaceAllString(exchange.VideoID, "_")
	}
	path := filepath.Join(dir, filename+".json")

	data, err := json.MarshalIndent(exchange, "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}

	return path, nil
}
