package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/ytfilter/internal/dom"
)

func item(t *testing.T, markup string) *dom.Element {
	t.Helper()
	doc := dom.Blank()
	added, err := doc.Insert(doc.Query(FeedContainer), markup)
	require.NoError(t, err)
	require.Len(t, added, 1)
	return added[0]
}

func TestExtractVariants(t *testing.T) {
	tests := []struct {
		name    string
		markup  string
		id      string
		title   string
		channel string
	}{
		{
			name: "home grid",
			markup: `<ytd-rich-item-renderer>
				<a id="thumbnail" href="/watch?v=xyz789&t=10s"></a>
				<a id="video-title-link"><yt-formatted-string id="video-title">  Writing a Lock-Free Queue </yt-formatted-string></a>
				<ytd-channel-name><a href="/@systemsdaily">SystemsDaily</a></ytd-channel-name>
			</ytd-rich-item-renderer>`,
			id:      "xyz789",
			title:   "Writing a Lock-Free Queue",
			channel: "SystemsDaily",
		},
		{
			name: "title attribute only",
			markup: `<ytd-video-renderer>
				<a id="video-title" title="Compilers 101" href="/watch?v=c101"></a>
				<div id="channel-name"><a>PL Weekly</a></div>
			</ytd-video-renderer>`,
			id:      "c101",
			title:   "Compilers 101",
			channel: "PL Weekly",
		},
		{
			name: "h3 link with title href fallback",
			markup: `<ytd-compact-video-renderer>
				<h3><a href="https://www.youtube.com/watch?v=h3link">Sidebar pick</a></h3>
			</ytd-compact-video-renderer>`,
			id:      "h3link",
			title:   "Sidebar pick",
			channel: DefaultChannel,
		},
		{
			name: "shorts link and class channel",
			markup: `<ytd-grid-video-renderer>
				<a title="Tiny clip" href="/shorts/s0rt?feature=share"></a>
				<span class="ytd-channel-name">Clips</span>
			</ytd-grid-video-renderer>`,
			id:      "s0rt",
			title:   "Tiny clip",
			channel: "Clips",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := item(t, tt.markup)
			got := Extract(el)
			require.NotNil(t, got)
			assert.Equal(t, tt.id, got.ID)
			assert.Equal(t, tt.title, got.Title)
			assert.Equal(t, tt.channel, got.Channel)
			assert.True(t, got.Handle.Same(el))
		})
	}
}

func TestExtractMisses(t *testing.T) {
	noTitle := item(t, `<ytd-rich-item-renderer><a id="thumbnail" href="/watch?v=abc"></a></ytd-rich-item-renderer>`)
	assert.Nil(t, Extract(noTitle))

	noID := item(t, `<ytd-rich-item-renderer><h3><a href="/channel/xyz">Title</a></h3></ytd-rich-item-renderer>`)
	assert.Nil(t, Extract(noID))

	assert.Nil(t, Extract(nil))
}

func TestExtractDoesNotMutate(t *testing.T) {
	el := item(t, `<ytd-rich-item-renderer><a id="thumbnail" href="/watch?v=abc"></a><h3><a>T</a></h3></ytd-rich-item-renderer>`)
	before := el.OuterHTML()
	require.NotNil(t, Extract(el))
	assert.Equal(t, before, el.OuterHTML())
}

func TestVideoID(t *testing.T) {
	assert.Equal(t, "abc123", VideoID("https://www.youtube.com/watch?v=abc123"))
	assert.Equal(t, "abc123", VideoID("/watch?list=PL1&v=abc123&index=2"))
	assert.Equal(t, "q1", VideoID("/shorts/q1"))
	assert.Equal(t, "", VideoID("/@channel/videos"))
	assert.Equal(t, "", VideoID(""))
}

func TestFields(t *testing.T) {
	el := item(t, `<ytd-video-renderer>
		<a id="video-title-link" title="GOLD RALLY INCOMING!!!"></a>
		<ytd-channel-name><a>MoneyNow</a></ytd-channel-name>
	</ytd-video-renderer>`)
	title, channel := Fields(el)
	assert.Equal(t, "GOLD RALLY INCOMING!!!", title)
	assert.Equal(t, "MoneyNow", channel)
}

func TestItemShaped(t *testing.T) {
	assert.True(t, ItemShaped(item(t, `<ytd-rich-item-renderer></ytd-rich-item-renderer>`)))
	assert.True(t, ItemShaped(item(t, `<ytd-playlist-video-list></ytd-playlist-video-list>`)))
	assert.True(t, ItemShaped(item(t, `<div><span id="video-title"></span></div>`)))
	assert.False(t, ItemShaped(item(t, `<div class="spinner"><span></span></div>`)))
}
