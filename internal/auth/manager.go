package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ibeckermayer/ytfilter/internal/browser"
)

const (
	LoginURL = "https://accounts.google.com/ServiceLogin?service=youtube&continue=https%3A%2F%2Fwww.youtube.com%2F"
	HomeURL  = "https://www.youtube.com/"
)

// Manager handles YouTube sign-in
type Manager struct {
	cookieStore *CookieStore
	logger      *zap.Logger
}

// NewManager creates a new auth manager
func NewManager(cookieStore *CookieStore, logger *zap.Logger) *Manager {
	return &Manager{cookieStore: cookieStore, logger: logger.Named("auth")}
}

// IsAuthenticated checks if we have valid stored credentials
func (m *Manager) IsAuthenticated() bool {
	return m.cookieStore.IsValid()
}

// Login opens a visible browser for the user to sign in and stores the
// resulting cookies
func (m *Manager) Login(ctx context.Context) error {
	browserCtx, cancel := browser.NewContext(ctx, false, m.logger)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(LoginURL)); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}
	m.logger.Info("waiting for sign-in")

	cookies, err := m.waitForLogin(browserCtx)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := m.cookieStore.Save(cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}
	m.logger.Info("signed in", zap.Int("cookies", len(cookies)))
	return nil
}

// waitForLogin polls until the tab is back on YouTube with a LOGIN_INFO cookie
func (m *Manager) waitForLogin(ctx context.Context) ([]*network.Cookie, error) {
	timeout := time.After(5 * time.Minute)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return nil, fmt.Errorf("login timeout exceeded")
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var url string
			if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
				continue
			}
			if !strings.HasPrefix(url, HomeURL) {
				continue
			}

			cookies, err := extractCookies(ctx)
			if err != nil {
				continue
			}
			if SignedIn(cookies) {
				return cookies, nil
			}
		}
	}
}

// SignedIn reports whether cookies carry a non-empty LOGIN_INFO for youtube.com
func SignedIn(cookies []*network.Cookie) bool {
	for _, c := range cookies {
		if c.Name == "LOGIN_INFO" && c.Value != "" && IsYouTubeDomain(c.Domain) {
			return true
		}
	}
	return false
}

func extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	return cookies, err
}

// Logout clears stored credentials
func (m *Manager) Logout() error {
	return m.cookieStore.Clear()
}

// GetCookies returns the stored YouTube cookies, or none when not signed in
func (m *Manager) GetCookies() ([]*network.Cookie, error) {
	if !m.IsAuthenticated() {
		return nil, nil
	}
	return m.cookieStore.YouTubeCookies()
}
