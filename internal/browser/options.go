// Package browser provides shared chromedp configuration for YouTube sessions.
package browser

import (
	"context"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// DefaultUserAgent is a realistic Chrome user agent
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options returns chromedp allocator options. Every browser the daemon
// starts (login and the live feed session) uses these.
func Options(headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),

		// Google sign-in refuses browsers that report navigator.webdriver
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		chromedp.UserAgent(DefaultUserAgent),
		chromedp.WindowSize(1920, 1080),

		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),

		// Autoplay previews steal focus and CPU from the feed
		chromedp.Flag("autoplay-policy", "user-gesture-required"),
	)

	if headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}

	return opts
}

// NewContext starts a browser and returns a tab context. cancel shuts the
// browser down.
func NewContext(ctx context.Context, headless bool, logger *zap.Logger) (context.Context, context.CancelFunc) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, Options(headless)...)

	sugar := logger.Named("chromedp").Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(sugar.Errorf),
		chromedp.WithDebugf(sugar.Debugf),
	)

	return browserCtx, func() {
		browserCancel()
		allocCancel()
	}
}
