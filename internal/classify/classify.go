// Package classify holds the network-free predicates that reject feed items
// before scoring.
package classify

import (
	"strings"

	"github.com/ibeckermayer/ytfilter/internal/dom"
	"github.com/ibeckermayer/ytfilter/internal/scraper"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

// OverExposureLimit is the view count at which an item is hidden
const OverExposureLimit = 3

const (
	adMarkers       = `[class*="ad-badge"], [class*="sponsored"], ytd-ad-slot-renderer, [id*="ad-slot"]`
	adSlot          = `ytd-ad-slot-renderer`
	metaText        = `span, yt-formatted-string`
	shortsLink      = `a[href*="/shorts/"]`
	shortsTags      = `ytd-reel-item-renderer, ytd-reel-shelf-renderer`
	shortsOverlay   = `[overlay-style="SHORTS"]`
	shortsContainer = scraper.ShortsShelves
)

// SponsorLabels are exact metadata texts that mark an item as sponsored
var SponsorLabels = []string{
	"Sponsored",
	"Ad",
	"Anzeige",
	"Gesponsert",
	"Sponsorisé",
	"Patrocinado",
	"Sponsorizzato",
}

// DefaultBlacklist is matched as substrings of the lowercased title and channel
var DefaultBlacklist = []string{
	// Cooking and baking
	"recipe", "recipes", "cooking", "baking", "cook", "bake",
	"kitchen", "chef", "food", "meal", "dinner", "lunch", "breakfast",
	"dish", "cuisine", "rezept", "kochen", "backen", "kueche", "kuche",
	"essen", "gericht", "mahlzeit",
	// Precious metals
	"gold", "silver", "silber",
}

// Sponsored reports whether the handle carries an ad marker or an exact
// sponsorship label.
func Sponsored(el *dom.Element) bool {
	if el.Query(adMarkers) != nil || el.Closest(adSlot) != nil {
		return true
	}
	for _, m := range el.QueryAll(metaText) {
		text := strings.TrimSpace(m.Text())
		for _, label := range SponsorLabels {
			if text == label {
				return true
			}
		}
	}
	return false
}

// Short reports whether the handle is short-form content
func Short(el *dom.Element) bool {
	if el.Query(shortsLink) != nil {
		return true
	}
	if el.Matches(shortsTags) || el.Closest(shortsContainer) != nil {
		return true
	}
	return el.Query(shortsOverlay) != nil
}

// Blacklisted reports whether title or channel contains a denylisted keyword
func Blacklisted(el *dom.Element) bool {
	return MatchesBlacklist(el, DefaultBlacklist)
}

// MatchesBlacklist checks the handle against an arbitrary keyword list
func MatchesBlacklist(el *dom.Element, keywords []string) bool {
	title, channel := scraper.Fields(el)
	text := strings.ToLower(title + " " + channel)
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Heuristic runs the handle-only predicates in order and returns the first
// matching mark, or MarkUnset.
func Heuristic(el *dom.Element) types.Mark {
	switch {
	case Sponsored(el):
		return types.MarkSponsored
	case Short(el):
		return types.MarkShort
	case Blacklisted(el):
		return types.MarkBlacklisted
	}
	return types.MarkUnset
}

// OverExposed reports whether an item has been shown too often
func OverExposed(count int) bool {
	return count >= OverExposureLimit
}

// SweepWrappers hides shorts shelves and ad wrappers that carry no mark yet.
// It returns how many were newly hidden.
func SweepWrappers(doc *dom.Document) int {
	n := 0
	for _, shelf := range doc.QueryAll(scraper.ShortsShelves) {
		if shelf.Data(types.MarkAttr) == "" {
			shelf.Hide()
			shelf.SetData(types.MarkAttr, string(types.MarkShortsShelf))
			n++
		}
	}
	for _, ad := range doc.QueryAll(scraper.AdWrappers) {
		if ad.Data(types.MarkAttr) == "" {
			ad.Hide()
			ad.SetData(types.MarkAttr, string(types.MarkAd))
			n++
		}
	}
	return n
}
