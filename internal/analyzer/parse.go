package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ibeckermayer/ytfilter/internal/types"
)

// ErrNoFragment is returned when a response carries no {...} fragment
var ErrNoFragment = errors.New("no score fragment in response")

// NeutralScore is used when a fragment has no usable score, and as the
// fallback for items that could not be scored.
const NeutralScore = 50

var fragmentPattern = regexp.MustCompile(`\{[^}]+\}`)

// ParseScore extracts the first {score, reason} fragment from free text.
// A missing or non-numeric score becomes NeutralScore; numeric scores are
// rounded and clamped to 0-100.
func ParseScore(text string) (types.ScoreEntry, error) {
	fragment := fragmentPattern.FindString(text)
	if fragment == "" {
		return types.ScoreEntry{}, ErrNoFragment
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(fragment), &raw); err != nil {
		return types.ScoreEntry{}, fmt.Errorf("failed to parse score fragment: %w (fragment was: %.200s)", err, fragment)
	}

	entry := types.ScoreEntry{Score: NeutralScore}
	if score, ok := number(raw["score"]); ok {
		entry.Score = clamp(int(math.Round(score)), 0, 100)
	}
	if reason, ok := raw["reason"].(string); ok {
		entry.Reason = strings.TrimSpace(reason)
	}
	return entry, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
