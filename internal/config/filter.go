package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

// FilterKey is the store key holding the runtime Filter blob
const FilterKey = "ytFilterConfig"

// Filter is the runtime filter configuration. It is owned by the settings
// surface, persisted as a JSON blob in the store, and seeded from the
// [filter] section of the file config.
type Filter struct {
	APIEndpoint       string `toml:"api_endpoint" json:"apiEndpoint"`
	Enabled           bool   `toml:"enabled" json:"enabled"`
	ShowScores        bool   `toml:"show_scores" json:"showScores"`
	Threshold         int    `toml:"threshold" json:"threshold"`
	TopicCooldownDays int    `toml:"topic_cooldown_days" json:"topicCooldownDays"`
	MaxTopicVideos    int    `toml:"max_topic_videos" json:"maxTopicVideos"`

	// WatchedEndpoint overrides the click-through topic endpoint. Empty
	// derives it from APIEndpoint.
	WatchedEndpoint string `toml:"watched_endpoint" json:"watchedEndpoint,omitempty"`
}

// DefaultFilter returns the filter used when the store holds no blob
func DefaultFilter() Filter {
	return Filter{
		APIEndpoint:       "http://localhost:11434/api/generate",
		Enabled:           true,
		ShowScores:        true,
		Threshold:         60,
		TopicCooldownDays: 14,
		MaxTopicVideos:    4,
	}
}

// Keys of the stored filter blob
const (
	FieldAPIEndpoint       = "apiEndpoint"
	FieldEnabled           = "enabled"
	FieldShowScores        = "showScores"
	FieldThreshold         = "threshold"
	FieldTopicCooldownDays = "topicCooldownDays"
	FieldMaxTopicVideos    = "maxTopicVideos"
	FieldWatchedEndpoint   = "watchedEndpoint"
)

// PatchFilter sets one field in a stored blob and returns the new blob.
// Fields already in the blob are kept; a missing or corrupt blob starts
// empty.
func PatchFilter(raw json.RawMessage, field string, value any) map[string]any {
	blob := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &blob); err != nil || blob == nil {
			blob = map[string]any{}
		}
	}
	blob[field] = value
	return blob
}

// FilterOverrides lists the fields a stored blob sets, sorted
func FilterOverrides(raw json.RawMessage) []string {
	var blob map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &blob) != nil {
		return nil
	}
	return slices.Sorted(maps.Keys(blob))
}

// filterPatch is the decoded form of a stored blob. Absent fields stay nil.
type filterPatch struct {
	APIEndpoint       *string  `json:"apiEndpoint"`
	Enabled           *bool    `json:"enabled"`
	ShowScores        *bool    `json:"showScores"`
	Threshold         *float64 `json:"threshold"`
	TopicCooldownDays *float64 `json:"topicCooldownDays"`
	MaxTopicVideos    *float64 `json:"maxTopicVideos"`
	WatchedEndpoint   *string  `json:"watchedEndpoint"`
}

// MergeFilter overlays a stored blob on base field by field and clamps the
// result. A nil or empty blob returns base unchanged.
func MergeFilter(base Filter, raw json.RawMessage) (Filter, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return base.Clamp(), nil
	}

	var p filterPatch
	if err := json.Unmarshal(raw, &p); err != nil {
		return base.Clamp(), fmt.Errorf("failed to decode %s: %w", FilterKey, err)
	}

	f := base
	if p.APIEndpoint != nil && strings.TrimSpace(*p.APIEndpoint) != "" {
		f.APIEndpoint = strings.TrimSpace(*p.APIEndpoint)
	}
	if p.Enabled != nil {
		f.Enabled = *p.Enabled
	}
	if p.ShowScores != nil {
		f.ShowScores = *p.ShowScores
	}
	if p.Threshold != nil {
		f.Threshold = int(math.Round(*p.Threshold))
	}
	if p.TopicCooldownDays != nil {
		f.TopicCooldownDays = int(math.Round(*p.TopicCooldownDays))
	}
	if p.MaxTopicVideos != nil {
		f.MaxTopicVideos = int(math.Round(*p.MaxTopicVideos))
	}
	if p.WatchedEndpoint != nil {
		f.WatchedEndpoint = strings.TrimSpace(*p.WatchedEndpoint)
	}
	return f.Clamp(), nil
}

// Clamp forces numeric fields into range
func (f Filter) Clamp() Filter {
	f.Threshold = min(max(f.Threshold, 0), 100)
	f.TopicCooldownDays = max(f.TopicCooldownDays, 0)
	f.MaxTopicVideos = max(f.MaxTopicVideos, 0)
	return f
}

// WatchedURL is the click-through topic endpoint
func (f Filter) WatchedURL() string {
	if f.WatchedEndpoint != "" {
		return f.WatchedEndpoint
	}
	return strings.TrimRight(f.APIEndpoint, "/") + "/watched"
}

// HealthURL is the endpoint probed for the online indicator
func (f Filter) HealthURL() string {
	return strings.TrimRight(f.APIEndpoint, "/") + "/health"
}
