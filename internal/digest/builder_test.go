package digest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/ytfilter/internal/ledger"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

func scored(id, title string, score int, reason string, ok bool) types.ScoredItem {
	return types.ScoredItem{
		Item:       types.Item{ID: id, Title: title, Channel: "Chan " + id},
		ScoreEntry: types.ScoreEntry{Score: score, Reason: reason},
		Scored:     ok,
	}
}

func TestBuild(t *testing.T) {
	b, err := New(0)
	require.NoError(t, err)
	b.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }

	r, err := b.Build(Input{
		Items: []types.ScoredItem{
			scored("low", "You Won't BELIEVE This", 12, "rage bait", true),
			scored("top", "Writing a <Lock-Free> Queue", 91, "deep dive", true),
			scored("mid", "Weekly Vlog", 50, "Not scored", false),
		},
		Views:     map[string]types.ViewEntry{"top": {Count: 2}},
		Topics:    []ledger.RankedTopic{{Topic: "rust", TopicEntry: types.TopicEntry{Count: 4}}},
		Threshold: 60,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"top", "mid", "low"}, r.ItemIDs)
	assert.Contains(t, r.HTMLBody, "Writing a &lt;Lock-Free&gt; Queue")
	assert.Contains(t, r.HTMLBody, `href="https://www.youtube.com/watch?v=top"`)
	assert.Contains(t, r.HTMLBody, `class="score high"`)
	assert.Contains(t, r.HTMLBody, `class="score low"`)
	assert.Contains(t, r.HTMLBody, "rust (4)")
	assert.Contains(t, r.HTMLBody, "hidden 2 below 60")
	assert.Contains(t, r.HTMLBody, "1 not scored")

	assert.Contains(t, r.PlainBody, "1. [91 shown] Chan top - Writing a <Lock-Free> Queue")
	assert.Contains(t, r.PlainBody, "deep dive (2x)")
	assert.Contains(t, r.PlainBody, "3. [12 hidden]")
	assert.Contains(t, r.PlainBody, "rust: 4")
	assert.Contains(t, r.PlainBody, "Sunday, March 1 09:30")
	assert.Equal(t, b.now(), r.CreatedAt)
}

func TestBuildLimitsItems(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)

	r, err := b.Build(Input{
		Items:     []types.ScoredItem{scored("a", "A", 10, "", true), scored("b", "B", 80, "", true)},
		Threshold: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, r.ItemIDs)
	// Stats still cover the whole session
	assert.Contains(t, r.HTMLBody, "Scored 2")
}

func TestBuildEmpty(t *testing.T) {
	b, err := New(0)
	require.NoError(t, err)
	_, err = b.Build(Input{})
	assert.Error(t, err)
}
