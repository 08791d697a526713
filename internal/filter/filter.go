// Package filter applies scoring decisions to feed handles: marks,
// visibility and the score badge.
package filter

import (
	"fmt"
	"strconv"

	"github.com/ibeckermayer/ytfilter/internal/dom"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

const (
	HiddenClass = "yt-filter-hidden"
	BadgeClass  = "yt-filter-badge"

	DefaultReason = "Low score"
)

// Band colors for the badge
const (
	ColorHigh = "#4CAF50"
	ColorMid  = "#FF9800"
	ColorLow  = "#f44336"
)

// badgeStyle is applied after the band background
const badgeStyle = "color: white; padding: 8px 14px; border-radius: 6px; font-size: 24px; " +
	"font-weight: bold; z-index: 9999; pointer-events: none; box-shadow: 0 2px 8px rgba(0,0,0,0.3)"

// Options are the settings in effect when an item is applied
type Options struct {
	Threshold  int
	ShowScores bool
}

// Result reports what Apply did to a handle
type Result struct {
	Hidden bool
	Badged bool
}

// Apply stamps item's handle with its score and decides visibility.
// views is the item's current view count, shown in the badge tooltip.
func Apply(item types.ScoredItem, opts Options, views int) Result {
	el := item.Handle
	if el == nil {
		return Result{}
	}

	el.SetData(types.MarkAttr, string(types.MarkScored))
	el.SetData(types.ScoreAttr, strconv.Itoa(item.Score))

	var res Result
	if item.Score < opts.Threshold {
		reason := item.Reason
		if reason == "" {
			reason = DefaultReason
		}
		el.AddClass(HiddenClass)
		el.SetData(types.ReasonAttr, reason)
		el.Hide()
		res.Hidden = true
	} else if el.HasClass(HiddenClass) {
		// Only undo a hide made here
		el.RemoveClass(HiddenClass)
		el.Show()
	}

	if opts.ShowScores && el.Query("."+BadgeClass) == nil {
		el.SetStyle("position", "relative")
		el.AppendElement("div", map[string]string{
			"class": BadgeClass,
			"style": BadgeStyle(item.Score),
			"title": fmt.Sprintf("%s (%dx)", item.Reason, views),
		}, strconv.Itoa(item.Score))
		res.Badged = true
	}
	return res
}

// Hide marks el with a heuristic rejection and hides it
func Hide(el *dom.Element, mark types.Mark) {
	el.SetData(types.MarkAttr, string(mark))
	el.Hide()
}

// BandColor returns the badge background for score
func BandColor(score int) string {
	switch {
	case score >= 70:
		return ColorHigh
	case score >= 50:
		return ColorMid
	default:
		return ColorLow
	}
}

// BadgeStyle returns the inline style of a badge showing score
func BadgeStyle(score int) string {
	return "position: absolute; top: 12px; left: 12px; background: " + BandColor(score) + "; " + badgeStyle
}
