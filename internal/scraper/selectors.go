package scraper

import "regexp"

// YouTube DOM selectors
// These are isolated here because YouTube changes their DOM frequently
// Update these when extraction breaks

const (
	// Feed item renderers: home grid, search results, sidebar, channel grid
	FeedItems = `ytd-rich-item-renderer, ytd-video-renderer, ytd-compact-video-renderer, ytd-grid-video-renderer`

	// Feed-level wrappers hidden wholesale
	ShortsShelves = `ytd-reel-shelf-renderer, ytd-rich-shelf-renderer[is-shorts]`
	AdWrappers    = `ytd-ad-slot-renderer, ytd-in-feed-ad-layout-renderer, ytd-banner-promo-renderer`

	// Container the live session mirrors feed nodes into
	FeedContainer = `#contents`

	// Click-through detection
	WatchLink  = `a[href*="watch?v="]`
	ClickTitle = `#video-title`
	Filtered   = `[data-yt-filtered]`
)

// Strategy is one way of locating a field inside an item. Attr names the
// attribute to read; empty reads the element text.
type Strategy struct {
	Selector string
	Attr     string
}

// Title strategies, first non-empty value wins. Text is tried before the
// title attribute for each element.
var TitleSelectors = []string{
	`#video-title`,
	`a#video-title-link`,
	`[id="video-title"]`,
	`h3 a`,
	`a[title]`,
}

// Channel strategies, first match wins
var ChannelSelectors = []string{
	`#channel-name a`,
	`ytd-channel-name a`,
	`[id="channel-name"] a`,
	`.ytd-channel-name`,
}

// Link strategies for the canonical id. The title element's href is the
// final fallback.
var LinkSelectors = []Strategy{
	{Selector: `a#thumbnail`, Attr: "href"},
	{Selector: `a[href*="/watch?v="]`, Attr: "href"},
	{Selector: `a[href*="shorts/"]`, Attr: "href"},
}

// The blacklist check reads a narrower set of locations than extraction
var (
	BlacklistTitleSelectors   = []string{`#video-title`, `a#video-title-link`, `h3 a`}
	BlacklistChannelSelectors = []string{`#channel-name a`, `ytd-channel-name a`}
)

// DefaultChannel is used when no channel element is found
const DefaultChannel = "Unknown"

var (
	watchIDPattern  = regexp.MustCompile(`[?&]v=([^&#]+)`)
	shortsIDPattern = regexp.MustCompile(`shorts/([^?&/#]+)`)
)
