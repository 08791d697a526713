package scraper

import (
	"strings"

	"github.com/ibeckermayer/ytfilter/internal/dom"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

// Extract derives an Item from a feed handle. It returns nil when no title
// or no video id can be found. It does not modify the handle.
func Extract(el *dom.Element) *types.Item {
	if el == nil {
		return nil
	}

	title, titleEl := findTitle(el)
	if title == "" {
		return nil
	}

	href := ""
	for _, s := range LinkSelectors {
		if link := el.Query(s.Selector); link != nil {
			href = link.Attr(s.Attr)
			break
		}
	}
	if href == "" && titleEl != nil {
		href = titleEl.Attr("href")
	}

	id := VideoID(href)
	if id == "" {
		return nil
	}

	return &types.Item{
		ID:      id,
		Title:   title,
		Channel: findChannel(el),
		Handle:  el,
	}
}

// VideoID parses the id from a watch or shorts URL
func VideoID(href string) string {
	if m := watchIDPattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	if m := shortsIDPattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

// Fields returns the raw title and channel text used by the blacklist
func Fields(el *dom.Element) (title, channel string) {
	for _, sel := range BlacklistTitleSelectors {
		if t := el.Query(sel); t != nil {
			title = t.Text()
			if title == "" {
				title = t.Attr("title")
			}
			break
		}
	}
	for _, sel := range BlacklistChannelSelectors {
		if c := el.Query(sel); c != nil {
			channel = c.Text()
			break
		}
	}
	return title, channel
}

// ItemShaped reports whether an inserted node looks like a feed item, which
// is what re-arms the scheduler.
func ItemShaped(el *dom.Element) bool {
	tag := el.Tag()
	if strings.Contains(tag, "video") || strings.Contains(tag, "renderer") {
		return true
	}
	return el.Query(`[id*="video"]`) != nil
}

func findTitle(el *dom.Element) (string, *dom.Element) {
	for _, sel := range TitleSelectors {
		t := el.Query(sel)
		if t == nil {
			continue
		}
		if title := strings.TrimSpace(t.Text()); title != "" {
			return title, t
		}
		if title := strings.TrimSpace(t.Attr("title")); title != "" {
			return title, t
		}
	}
	return "", nil
}

func findChannel(el *dom.Element) string {
	for _, sel := range ChannelSelectors {
		c := el.Query(sel)
		if c == nil {
			continue
		}
		if channel := strings.TrimSpace(c.Text()); channel != "" {
			return channel
		}
	}
	return DefaultChannel
}
