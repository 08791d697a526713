package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *CookieStore {
	t.Helper()
	cs := NewCookieStore(filepath.Join(t.TempDir(), "nested", "cookies.json"))
	cs.now = func() time.Time { return now }
	return cs
}

func signedInCookies() []*network.Cookie {
	return []*network.Cookie{
		{Name: "LOGIN_INFO", Value: "abc", Domain: ".youtube.com", Path: "/", Expires: float64(now.Add(48 * time.Hour).Unix())},
		{Name: "SID", Value: "sid", Domain: ".youtube.com", Path: "/", Expires: float64(now.Add(24 * time.Hour).Unix())},
		{Name: "PREF", Value: "f6=40000000", Domain: ".youtube.com", Path: "/", Session: true},
		{Name: "SID", Value: "gsid", Domain: ".google.com", Path: "/", Expires: float64(now.Add(time.Hour).Unix())},
	}
}

func TestCookieStoreRoundTrip(t *testing.T) {
	cs := newStore(t)
	assert.False(t, cs.IsValid())

	require.NoError(t, cs.Save(signedInCookies()))

	stored, err := cs.Load()
	require.NoError(t, err)
	assert.Len(t, stored.Cookies, 4)
	assert.True(t, stored.CapturedAt.Equal(now))
	// Google's SID counts too since it is a required name
	assert.Equal(t, now.Add(time.Hour).Unix(), stored.ExpiresAt.Unix())
	assert.True(t, cs.IsValid())

	yt, err := cs.YouTubeCookies()
	require.NoError(t, err)
	assert.Len(t, yt, 3)
	for _, c := range yt {
		assert.Equal(t, ".youtube.com", c.Domain)
	}
}

func TestCookieStoreExpiry(t *testing.T) {
	cs := newStore(t)
	require.NoError(t, cs.Save(signedInCookies()))

	cs.now = func() time.Time { return now.Add(2 * time.Hour) }
	assert.False(t, cs.IsValid())
}

func TestCookieStoreRequiresCookies(t *testing.T) {
	cs := newStore(t)
	require.NoError(t, cs.Save([]*network.Cookie{
		{Name: "LOGIN_INFO", Value: "abc", Domain: ".youtube.com", Expires: float64(now.Add(time.Hour).Unix())},
	}))
	assert.False(t, cs.IsValid())
}

func TestCookieStoreClear(t *testing.T) {
	cs := newStore(t)
	assert.NoError(t, cs.Clear())
	require.NoError(t, cs.Save(signedInCookies()))
	require.NoError(t, cs.Clear())
	assert.False(t, cs.IsValid())
}

func TestIsYouTubeDomain(t *testing.T) {
	assert.True(t, IsYouTubeDomain(".youtube.com"))
	assert.True(t, IsYouTubeDomain("youtube.com"))
	assert.True(t, IsYouTubeDomain("www.youtube.com"))
	assert.False(t, IsYouTubeDomain(".google.com"))
	assert.False(t, IsYouTubeDomain("notyoutube.com"))
}

func TestSignedIn(t *testing.T) {
	assert.True(t, SignedIn(signedInCookies()))
	assert.False(t, SignedIn([]*network.Cookie{{Name: "LOGIN_INFO", Value: "", Domain: ".youtube.com"}}))
	assert.False(t, SignedIn([]*network.Cookie{{Name: "LOGIN_INFO", Value: "x", Domain: ".google.com"}}))
}
