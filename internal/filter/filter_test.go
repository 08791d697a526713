package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/ytfilter/internal/dom"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

func handle(t *testing.T) *dom.Element {
	t.Helper()
	doc, err := dom.ParseString(`<div id="contents"><ytd-rich-item-renderer><a id="video-title" href="/watch?v=abc">Title</a></ytd-rich-item-renderer></div>`)
	require.NoError(t, err)
	el := doc.Query("ytd-rich-item-renderer")
	require.NotNil(t, el)
	return el
}

func scored(el *dom.Element, score int, reason string) types.ScoredItem {
	return types.ScoredItem{
		Item:       types.Item{ID: "abc", Title: "Title", Handle: el},
		ScoreEntry: types.ScoreEntry{Score: score, Reason: reason},
		Scored:     true,
	}
}

func TestApplyBelowThreshold(t *testing.T) {
	el := handle(t)
	res := Apply(scored(el, 35, ""), Options{Threshold: 60}, 2)

	assert.True(t, res.Hidden)
	assert.Equal(t, types.MarkScored, types.Read(el))
	assert.Equal(t, "35", el.Data(types.ScoreAttr))
	assert.Equal(t, DefaultReason, el.Data(types.ReasonAttr))
	assert.True(t, el.HasClass(HiddenClass))
	assert.True(t, el.Hidden())
	assert.Nil(t, el.Query("."+BadgeClass))
}

func TestApplyAtThresholdIsVisible(t *testing.T) {
	el := handle(t)
	res := Apply(scored(el, 60, "fine"), Options{Threshold: 60}, 1)
	assert.False(t, res.Hidden)
	assert.False(t, el.Hidden())
	assert.Empty(t, el.Data(types.ReasonAttr))
}

func TestApplyRevertsOnlyOwnHide(t *testing.T) {
	el := handle(t)
	Apply(scored(el, 20, "bait"), Options{Threshold: 60}, 1)
	require.True(t, el.Hidden())

	Apply(scored(el, 20, "bait"), Options{Threshold: 10}, 1)
	assert.False(t, el.Hidden())
	assert.False(t, el.HasClass(HiddenClass))

	// Hidden by something else: left alone
	other := handle(t)
	other.Hide()
	Apply(scored(other, 90, "great"), Options{Threshold: 60}, 1)
	assert.True(t, other.Hidden())
}

func TestApplyBadge(t *testing.T) {
	el := handle(t)
	res := Apply(scored(el, 82, "technical deep dive"), Options{Threshold: 60, ShowScores: true}, 3)
	assert.True(t, res.Badged)

	badge := el.Query("." + BadgeClass)
	require.NotNil(t, badge)
	assert.Equal(t, "82", badge.Text())
	assert.Equal(t, "technical deep dive (3x)", badge.Attr("title"))
	assert.Equal(t, ColorHigh, badge.Style("background"))
	assert.Equal(t, "absolute", badge.Style("position"))
	assert.Equal(t, "24px", badge.Style("font-size"))
	assert.Equal(t, "relative", el.Style("position"))

	// Created once, text never rewritten
	res = Apply(scored(el, 40, "changed"), Options{Threshold: 60, ShowScores: true}, 4)
	assert.False(t, res.Badged)
	assert.Len(t, el.QueryAll("."+BadgeClass), 1)
	assert.Equal(t, "82", el.Query("."+BadgeClass).Text())
}

func TestBandColor(t *testing.T) {
	assert.Equal(t, ColorHigh, BandColor(100))
	assert.Equal(t, ColorHigh, BandColor(70))
	assert.Equal(t, ColorMid, BandColor(69))
	assert.Equal(t, ColorMid, BandColor(50))
	assert.Equal(t, ColorLow, BandColor(49))
	assert.Equal(t, ColorLow, BandColor(0))
}

func TestHide(t *testing.T) {
	el := handle(t)
	Hide(el, types.MarkSponsored)
	assert.Equal(t, types.MarkSponsored, types.Read(el))
	assert.True(t, el.Hidden())
}

func TestApplyWithoutHandle(t *testing.T) {
	assert.Equal(t, Result{}, Apply(types.ScoredItem{}, Options{}, 0))
}
