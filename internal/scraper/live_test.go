package scraper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/ytfilter/internal/dom"
	"github.com/ibeckermayer/ytfilter/internal/filter"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

const cardHTML = `<ytd-rich-item-renderer><a id="thumbnail" href="/watch?v=abc"></a><a id="video-title" href="/watch?v=abc">Writing a Lock-Free Queue</a></ytd-rich-item-renderer>`

func snap(nodes ...snapshotNode) snapshot {
	return snapshot{Session: "s1", Location: "https://www.youtube.com/", Title: "YouTube", Nodes: nodes}
}

func TestMirrorInsertsAndRemoves(t *testing.T) {
	doc := dom.Blank()
	var inserted int
	doc.Observe(func(m dom.Mutation) { inserted += len(m.Added) })

	m := newMirror(doc)
	_, err := m.apply(snap(snapshotNode{Key: "n0", Sig: "a", HTML: cardHTML}))
	require.NoError(t, err)

	items := doc.QueryAll(FeedItems)
	require.Len(t, items, 1)
	assert.Equal(t, "n0", items[0].Data(KeyAttr))
	assert.Equal(t, 1, inserted)

	// Unchanged signature: no HTML, no reinsert
	_, err = m.apply(snap(snapshotNode{Key: "n0", Sig: "a"}))
	require.NoError(t, err)
	assert.Len(t, doc.QueryAll(FeedItems), 1)
	assert.Equal(t, 1, inserted)

	// Changed signature replaces the node
	changed := strings.Replace(cardHTML, "Lock-Free Queue", "Lock-Free Stack", 1)
	_, err = m.apply(snap(snapshotNode{Key: "n0", Sig: "b", HTML: changed}))
	require.NoError(t, err)
	items = doc.QueryAll(FeedItems)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Text(), "Stack")

	// Gone from the tab: removed from the mirror
	_, err = m.apply(snap())
	require.NoError(t, err)
	assert.Empty(t, doc.QueryAll(FeedItems))
}

func TestMirrorReplaceKeepsOrder(t *testing.T) {
	doc := dom.Blank()
	m := newMirror(doc)
	second := strings.ReplaceAll(cardHTML, "abc", "def")
	_, err := m.apply(snap(
		snapshotNode{Key: "n0", Sig: "a", HTML: cardHTML},
		snapshotNode{Key: "n1", Sig: "b", HTML: second},
	))
	require.NoError(t, err)

	changed := strings.Replace(cardHTML, "Lock-Free Queue", "Lock-Free Stack", 1)
	_, err = m.apply(snap(
		snapshotNode{Key: "n0", Sig: "a2", HTML: changed},
		snapshotNode{Key: "n1", Sig: "b"},
	))
	require.NoError(t, err)

	items := doc.QueryAll(FeedItems)
	require.Len(t, items, 2)
	assert.Equal(t, "n0", items[0].Data(KeyAttr))
	assert.Contains(t, items[0].Text(), "Stack")
	assert.Equal(t, "n1", items[1].Data(KeyAttr))

	// The tab's badge adds a child; it must not count as a change
	assert.NotContains(t, collectJS, "childElementCount")
}

func TestMirrorResetsOnNewSession(t *testing.T) {
	doc := dom.Blank()
	m := newMirror(doc)
	_, err := m.apply(snap(snapshotNode{Key: "n0", Sig: "a", HTML: cardHTML}))
	require.NoError(t, err)

	next := snap(snapshotNode{Key: "n0", Sig: "a", HTML: cardHTML})
	next.Session = "s2"
	_, err = m.apply(next)
	require.NoError(t, err)
	assert.Len(t, doc.QueryAll(FeedItems), 1)
}

func TestMirrorNavigation(t *testing.T) {
	doc := dom.Blank()
	var titles int
	doc.ObserveTitle(func() { titles++ })

	m := newMirror(doc)
	_, err := m.apply(snap())
	require.NoError(t, err)
	assert.Equal(t, 0, titles, "first location is recorded without a navigation")

	moved := snap()
	moved.Location = "https://www.youtube.com/feed/subscriptions"
	moved.Title = "Subscriptions - YouTube"
	_, err = m.apply(moved)
	require.NoError(t, err)
	assert.Equal(t, 1, titles)
	assert.Equal(t, moved.Location, doc.Location())
	assert.Equal(t, moved.Title, doc.Title())
}

func TestMirrorResolvesClicks(t *testing.T) {
	doc := dom.Blank()
	m := newMirror(doc)

	s := snap(snapshotNode{Key: "n0", Sig: "a", HTML: cardHTML})
	s.Clicks = []snapshotClick{{Key: "n0", Href: "/watch?v=abc"}, {Key: "missing", Href: "/watch?v=zzz"}}
	clicks, err := m.apply(s)
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.Equal(t, "thumbnail", clicks[0].ID())
}

func TestDiffPatches(t *testing.T) {
	doc := dom.Blank()
	m := newMirror(doc)
	_, err := m.apply(snap(
		snapshotNode{Key: "n0", Sig: "a", HTML: cardHTML},
		snapshotNode{Key: "n1", Sig: "b", HTML: strings.ReplaceAll(cardHTML, "abc", "def")},
	))
	require.NoError(t, err)

	first := m.diffPatches()
	require.Len(t, first, 2)
	assert.Equal(t, "n0", first[0].Key)
	assert.Equal(t, Patch{Key: "n0"}, first[0])

	assert.Empty(t, m.diffPatches())

	el := m.nodes["n0"]
	filter.Apply(types.ScoredItem{
		Item:       types.Item{ID: "abc", Handle: el},
		ScoreEntry: types.ScoreEntry{Score: 30, Reason: "clickbait"},
	}, filter.Options{Threshold: 60, ShowScores: true}, 1)

	patches := m.diffPatches()
	require.Len(t, patches, 1)
	p := patches[0]
	assert.Equal(t, "n0", p.Key)
	assert.Equal(t, string(types.MarkScored), p.Mark)
	assert.Equal(t, "30", p.Score)
	assert.Equal(t, "clickbait", p.Reason)
	assert.True(t, p.Hidden)
	assert.Equal(t, "30", p.Badge.Text)
	assert.Equal(t, "clickbait (1x)", p.Badge.Title)
	assert.Equal(t, filter.BadgeStyle(30), p.Badge.Style)

	// A failed push is retried
	m.forget(patches)
	assert.Len(t, m.diffPatches(), 1)
}

func TestCollectJSSelectors(t *testing.T) {
	assert.Contains(t, collectJS, FeedItems)
	assert.Contains(t, collectJS, ShortsShelves)
	assert.Contains(t, collectJS, "[data-"+KeyAttr+"]")
	assert.Equal(t, 1, strings.Count(patchJS, "%s"))
}
