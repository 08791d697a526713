package types

import (
	"time"

	"github.com/ibeckermayer/ytfilter/internal/dom"
)

// Item represents a feed entry extracted from a rendered handle.
// Handle is the element the item was extracted from; it is never serialized.
type Item struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Channel string       `json:"channel"`
	Handle  *dom.Element `json:"-"`
}

// ScoreEntry is the cached result of a successful scoring call
type ScoreEntry struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// ScoredItem combines an item with its score
type ScoredItem struct {
	Item
	ScoreEntry
	Cached bool `json:"cached"`
	Scored bool `json:"scored"` // false when the neutral fallback was used
}

// Data attribute keys stamped on handles (read with dom.Element.Data)
const (
	MarkAttr   = "yt-filtered"
	ScoreAttr  = "yt-score"
	ReasonAttr = "yt-reason"
)

// Mark is the classification stamp left on a handle (data-yt-filtered)
type Mark string

const (
	MarkUnset        Mark = ""
	MarkSponsored    Mark = "sponsored"
	MarkShort        Mark = "short"
	MarkBlacklisted  Mark = "blacklisted"
	MarkSeenTooOften Mark = "seen-too-often"
	MarkScored       Mark = "scored"

	// Feed wrappers hidden wholesale
	MarkShortsShelf Mark = "shorts-shelf"
	MarkAd          Mark = "ad"
)

// Read returns the mark currently stamped on el
func Read(el *dom.Element) Mark {
	return Mark(el.Data(MarkAttr))
}

// ViewEntry is a persisted per-item exposure counter
type ViewEntry struct {
	Count    int   `json:"count"`
	LastSeen int64 `json:"lastSeen"` // epoch milliseconds
}

// Seen returns LastSeen as a time
func (v ViewEntry) Seen() time.Time {
	return time.UnixMilli(v.LastSeen)
}

// TopicEntry is a persisted per-topic watch counter
type TopicEntry struct {
	Count    int   `json:"count"`
	LastSeen int64 `json:"lastSeen"`
}

// Seen returns LastSeen as a time
func (t TopicEntry) Seen() time.Time {
	return time.UnixMilli(t.LastSeen)
}
