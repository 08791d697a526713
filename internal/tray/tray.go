package tray

import (
	"context"
	"fmt"
	"time"

	"github.com/getlantern/systray"
	"github.com/pkg/browser"
	"go.uber.org/zap"

	"github.com/ibeckermayer/ytfilter/internal/app"
	"github.com/ibeckermayer/ytfilter/internal/config"
)

// OnReady returns a systray onReady callback that sets up the menu and
// starts the filter session. The tray quits when the session ends.
func OnReady(ctx context.Context, a *app.App, logger *zap.Logger) func() {
	logger = logger.Named("tray")
	return func() {
		systray.SetTemplateIcon(iconBytes, iconBytes)
		systray.SetTitle("")
		systray.SetTooltip("ytfilter - a calmer YouTube feed")

		mStatus := systray.AddMenuItem("○ Scorer: checking", "Scoring endpoint status")
		mStatus.Disable()

		mAuthAction := systray.AddMenuItem(authLabel(a), "Sign in to or out of YouTube")

		systray.AddSeparator()

		f := a.Filter()
		mEnabled := systray.AddMenuItemCheckbox("Filter Enabled", "Hide low-scoring videos", f.Enabled)
		mShowScores := systray.AddMenuItemCheckbox("Show Scores", "Badge each video with its score", f.ShowScores)
		mRescan := systray.AddMenuItem("Rescan Feed", "Run a filtering pass now")

		systray.AddSeparator()

		mTopics := systray.AddMenuItem("Watched Topics", "Topics you clicked recently")
		mClearTopics := mTopics.AddSubMenuItem("Clear All Topics", "Forget every watched topic")

		mReport := systray.AddMenuItem("View Session Report", "Open the scored videos of this session")
		mEditConfig := systray.AddMenuItem("Edit Config", "Open config file in editor")
		mReloadConfig := systray.AddMenuItem("Reload Config", "Reload configuration from disk")

		systray.AddSeparator()

		mQuit := systray.AddMenuItem("Quit", "Exit ytfilter")

		runCtx, stop := context.WithCancel(ctx)
		go func() {
			if err := a.Run(runCtx); err != nil {
				logger.Error("session ended", zap.Error(err))
			}
			systray.Quit()
		}()

		updateStatus := func() {
			s := a.Status()
			switch {
			case s.Checked.IsZero():
				mStatus.SetTitle("○ Scorer: checking")
			case s.Online:
				mStatus.SetTitle("● Scorer: online")
			default:
				mStatus.SetTitle("○ Scorer: offline")
			}
			mTopics.SetTitle(fmt.Sprintf("Watched Topics (%d)", len(a.Topics())))
		}
		updateStatus()

		ticker := time.NewTicker(5 * time.Second)

		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return

				case <-ticker.C:
					updateStatus()

				case <-mAuthAction.ClickedCh:
					var err error
					if a.IsAuthenticated() {
						err = a.TriggerLogout()
					} else {
						err = a.TriggerLogin(runCtx)
					}
					if err != nil {
						logger.Warn("auth action failed", zap.Error(err))
					}
					mAuthAction.SetTitle(authLabel(a))

				case <-mEnabled.ClickedCh:
					toggle(mEnabled, func(on bool) error { return a.SetEnabled(runCtx, on) }, logger)

				case <-mShowScores.ClickedCh:
					toggle(mShowScores, func(on bool) error { return a.SetShowScores(runCtx, on) }, logger)

				case <-mRescan.ClickedCh:
					a.ProcessNow()

				case <-mClearTopics.ClickedCh:
					a.ClearTopics()
					updateStatus()

				case <-mReport.ClickedCh:
					if err := a.ViewReport(); err != nil {
						logger.Warn("no session report", zap.Error(err))
					}

				case <-mEditConfig.ClickedCh:
					path, err := config.ConfigPath()
					if err != nil {
						logger.Warn("failed to get config path", zap.Error(err))
						continue
					}
					if err := browser.OpenFile(path); err != nil {
						logger.Warn("failed to open config file", zap.Error(err))
					}

				case <-mReloadConfig.ClickedCh:
					if err := a.ReloadConfig(); err != nil {
						logger.Warn("failed to reload config", zap.Error(err))
					}

				case <-mQuit.ClickedCh:
					stop()
				}
			}
		}()
	}
}

// OnExit is the systray onExit callback.
func OnExit(logger *zap.Logger) func() {
	return func() {
		logger.Info("ytfilter shutting down")
	}
}

// toggle flips a checkbox item and persists the new state, reverting the
// checkbox when the write fails
func toggle(item *systray.MenuItem, save func(bool) error, logger *zap.Logger) {
	on := !item.Checked()
	if err := save(on); err != nil {
		logger.Warn("failed to save setting", zap.Error(err))
		return
	}
	if on {
		item.Check()
	} else {
		item.Uncheck()
	}
}

func authLabel(a *app.App) string {
	if a.IsAuthenticated() {
		return "Sign out of YouTube"
	}
	return "Sign in to YouTube"
}
