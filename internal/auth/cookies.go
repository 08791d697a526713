package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/ibeckermayer/ytfilter/internal/config"
)

// RequiredCookies must all be present for a signed-in YouTube session
var RequiredCookies = []string{"LOGIN_INFO", "SID"}

// CookieStore persists the YouTube session cookies
type CookieStore struct {
	path string
	now  func() time.Time
}

// StoredCookies represents the persisted cookie data
type StoredCookies struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// NewCookieStore creates a cookie store at the given path
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path, now: time.Now}
}

// DefaultCookieStorePath returns the default path for cookie storage
func DefaultCookieStorePath() (string, error) {
	dataDir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "cookies.json"), nil
}

// Save persists cookies to disk. The stored expiry is the earliest expiry
// among the required cookies; session cookies do not count.
func (cs *CookieStore) Save(cookies []*network.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(cs.path), 0700); err != nil {
		return fmt.Errorf("failed to create cookie dir: %w", err)
	}

	var earliestExpiry time.Time
	for _, c := range cookies {
		if !slices.Contains(RequiredCookies, c.Name) || c.Session || c.Expires <= 0 {
			continue
		}
		exp := time.Unix(int64(c.Expires), 0)
		if earliestExpiry.IsZero() || exp.Before(earliestExpiry) {
			earliestExpiry = exp
		}
	}

	stored := StoredCookies{
		Cookies:    cookies,
		CapturedAt: cs.now(),
		ExpiresAt:  earliestExpiry,
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cs.path, data, 0600)
}

// Load retrieves cookies from disk
func (cs *CookieStore) Load() (*StoredCookies, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		return nil, err
	}

	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse cookie store: %w", err)
	}
	return &stored, nil
}

// IsValid checks that every required cookie is stored and unexpired
func (cs *CookieStore) IsValid() bool {
	stored, err := cs.Load()
	if err != nil {
		return false
	}
	if !stored.ExpiresAt.IsZero() && cs.now().After(stored.ExpiresAt) {
		return false
	}

	for _, name := range RequiredCookies {
		if !slices.ContainsFunc(stored.Cookies, func(c *network.Cookie) bool {
			return c.Name == name && c.Value != ""
		}) {
			return false
		}
	}
	return true
}

// Clear removes stored cookies. A missing file is not an error.
func (cs *CookieStore) Clear() error {
	if err := os.Remove(cs.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// YouTubeCookies returns only the cookies scoped to youtube.com
func (cs *CookieStore) YouTubeCookies() ([]*network.Cookie, error) {
	stored, err := cs.Load()
	if err != nil {
		return nil, err
	}

	var out []*network.Cookie
	for _, c := range stored.Cookies {
		if IsYouTubeDomain(c.Domain) {
			out = append(out, c)
		}
	}
	return out, nil
}

// IsYouTubeDomain reports whether a cookie domain belongs to youtube.com
func IsYouTubeDomain(domain string) bool {
	d := strings.TrimPrefix(strings.ToLower(domain), ".")
	return d == "youtube.com" || strings.HasSuffix(d, ".youtube.com")
}
