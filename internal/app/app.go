// Package app wires the filter stages into a running session and exposes
// the actions behind the tray menu and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/ytfilter/internal/analyzer"
	"github.com/ibeckermayer/ytfilter/internal/auth"
	"github.com/ibeckermayer/ytfilter/internal/config"
	"github.com/ibeckermayer/ytfilter/internal/digest"
	"github.com/ibeckermayer/ytfilter/internal/dom"
	"github.com/ibeckermayer/ytfilter/internal/ledger"
	"github.com/ibeckermayer/ytfilter/internal/metrics"
	"github.com/ibeckermayer/ytfilter/internal/pipeline"
	"github.com/ibeckermayer/ytfilter/internal/relay"
	"github.com/ibeckermayer/ytfilter/internal/scheduler"
	"github.com/ibeckermayer/ytfilter/internal/scraper"
	"github.com/ibeckermayer/ytfilter/internal/store"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

// HealthJob is the cron job name of the endpoint probe
const HealthJob = "health"

// Options are the optional collaborators of an App
type Options struct {
	// ConfigPath is watched for changes while running. Empty disables the watcher.
	ConfigPath string
	// Store overrides the sqlite store opened from the config
	Store store.KV
	Auth  *auth.Manager
	Clock clockwork.Clock
	// Live starts the browser session in Run. Off for tests and dry runs.
	Live   bool
	Logger *zap.Logger
}

// Status is the last health probe result
type Status struct {
	Online  bool
	Checked time.Time
	Err     error
}

// App holds the application state.
type App struct {
	opts      Options
	sessionID string
	logger    *zap.Logger
	clock     clockwork.Clock

	kv       store.KV
	db       *store.Store // nil when Options.Store was given
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	doc       *dom.Document
	ledger    *ledger.Ledger
	client    *relay.Client
	analyzer  *analyzer.Analyzer
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler
	jobs      *scheduler.Jobs
	reports   *digest.Builder

	mu       sync.RWMutex
	config   *config.Config
	location string
	status   Status

	unsubscribe []func()
}

// New creates an App from cfg. The store is opened and the ledger loaded;
// nothing runs until Run.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	sessionID := uuid.NewString()
	a := &App{
		opts:      opts,
		sessionID: sessionID,
		logger:    opts.Logger.With(zap.String("session", sessionID)),
		clock:     opts.Clock,
		config:    cfg,
		registry:  prometheus.NewRegistry(),
		doc:       dom.Blank(),
	}
	a.metrics = metrics.New(a.registry)

	a.kv = opts.Store
	if a.kv == nil {
		dbPath, err := cfg.DBPath()
		if err != nil {
			return nil, err
		}
		db, err := store.New(dbPath)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.kv = db
	}

	filter, err := a.loadFilter(ctx, cfg)
	if err != nil {
		a.logger.Warn("stored filter config ignored", zap.Error(err))
	}

	a.ledger = ledger.New(a.kv, a.clock, a.logger)
	if err := a.ledger.Load(ctx, filter.TopicCooldownDays); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	r, err := relay.New(cfg.Scoring, nil, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = relay.NewClient(nil, cfg.Scoring.HealthTimeout())
	a.analyzer = analyzer.New(r, cfg.Scoring, a.ledger, a.metrics, a.logger)
	a.pipeline = pipeline.New(pipeline.Deps{
		Document: a.doc,
		Ledger:   a.ledger,
		Analyzer: a.analyzer,
		Topics:   a.client,
		Metrics:  a.metrics,
		Logger:   a.logger,
		Filter:   filter,
		Model:    cfg.Scoring.Model,
	})
	a.scheduler = scheduler.New(a.clock, scheduler.Options{Debounce: cfg.Scheduler.Debounce()}, a.pass, a.logger)
	a.jobs = scheduler.NewJobs(cfg.Scoring.HealthTimeout()+time.Second, a.logger)

	if a.reports, err = digest.New(0); err != nil {
		a.Close()
		return nil, err
	}

	a.subscribe()
	return a, nil
}

// subscribe connects the document and store notifications to the scheduler
func (a *App) subscribe() {
	a.unsubscribe = append(a.unsubscribe,
		a.doc.Observe(func(m dom.Mutation) {
			for _, el := range m.Added {
				if scraper.ItemShaped(el) {
					a.scheduler.Trigger()
					return
				}
			}
		}),
		a.doc.ObserveTitle(func() {
			loc := a.doc.Location()
			a.mu.Lock()
			changed := loc != a.location
			a.location = loc
			a.mu.Unlock()
			if changed {
				a.scheduler.TriggerAfter(a.Config().Scheduler.NavigationDelay())
			}
		}),
		a.kv.OnChange(func(c store.Change) {
			if c.Key == store.KeyFilterConfig {
				a.reconfigure(c.New)
			}
		}),
	)
}

// loadFilter merges the stored filter blob over the file defaults
func (a *App) loadFilter(ctx context.Context, cfg *config.Config) (config.Filter, error) {
	vals, err := a.kv.Get(ctx, store.KeyFilterConfig)
	if err != nil {
		return cfg.Filter.Clamp(), err
	}
	return config.MergeFilter(cfg.Filter, vals[store.KeyFilterConfig])
}

func (a *App) reconfigure(raw []byte) {
	f, err := config.MergeFilter(a.Config().Filter, raw)
	if err != nil {
		a.logger.Warn("stored filter config ignored", zap.Error(err))
	}
	a.pipeline.Reconfigure(f)
	a.scheduler.RunNow()
}

func (a *App) pass(ctx context.Context) {
	if err := a.pipeline.Process(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("pass failed", zap.Error(err))
	}
}

// SessionID identifies this run in the logs
func (a *App) SessionID() string {
	return a.sessionID
}

// Config returns the file config currently in effect
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// Filter returns the runtime filter currently in effect
func (a *App) Filter() config.Filter {
	return a.pipeline.Filter()
}

// Document is the feed the pipeline works on
func (a *App) Document() *dom.Document {
	return a.doc
}

// Run starts the scheduler loop, background jobs, the optional metrics
// listener and config watcher, and the live browser session when enabled.
// It blocks until ctx is cancelled or the browser goes away.
func (a *App) Run(ctx context.Context) error {
	cfg := a.Config()
	a.logger.Info("ytfilter starting", zap.Bool("live", a.opts.Live))

	if cfg.Scheduler.HealthSchedule != "" {
		if err := a.jobs.AddJob(HealthJob, cfg.Scheduler.HealthSchedule, func(ctx context.Context) error {
			a.CheckHealth(ctx)
			return nil
		}); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.scheduler.Run(ctx)
	})

	a.jobs.Start()
	defer a.jobs.Stop()
	go a.CheckHealth(ctx)

	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, cfg.Metrics.Listen, a.registry, a.logger)
		})
	}

	if a.opts.ConfigPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, a.opts.ConfigPath, a.logger, a.applyConfig)
		})
	}

	if a.opts.Live {
		cookies, err := a.cookies()
		if err != nil {
			a.logger.Warn("continuing signed out", zap.Error(err))
		}
		live := scraper.NewLive(a.doc, cfg.Browser, cookies, a.logger)
		live.OnClick(a.pipeline.OnClick)
		g.Go(func() error {
			return live.Run(ctx)
		})
	}

	a.scheduler.TriggerAfter(cfg.Scheduler.InitialDelay())

	err := g.Wait()
	a.logger.Info("ytfilter stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close flushes the ledger and closes the store
func (a *App) Close() error {
	for _, fn := range a.unsubscribe {
		fn()
	}
	a.unsubscribe = nil
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// ProcessNow runs a pass immediately, skipping the debounce window
func (a *App) ProcessNow() {
	a.scheduler.RunNow()
}

// ReloadConfig reloads the configuration from disk.
func (a *App) ReloadConfig() error {
	path := a.opts.ConfigPath
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return err
		}
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	a.applyConfig(cfg)
	return nil
}

// applyConfig swaps the relay and model, then re-merges the stored filter
// over the new defaults
func (a *App) applyConfig(cfg *config.Config) {
	r, err := relay.New(cfg.Scoring, nil, a.logger)
	if err != nil {
		a.logger.Error("config reload rejected", zap.Error(err))
		return
	}

	a.mu.Lock()
	a.config = cfg
	a.mu.Unlock()

	a.analyzer.SetRelay(r, cfg.Scoring)
	a.pipeline.SetModel(cfg.Scoring.Model)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	vals, err := a.kv.Get(ctx, store.KeyFilterConfig)
	if err != nil {
		a.logger.Warn("failed to read stored filter config", zap.Error(err))
	}
	raw := vals[store.KeyFilterConfig]
	if fields := config.FilterOverrides(raw); len(fields) > 0 {
		a.logger.Info("runtime filter settings override the file", zap.Strings("fields", fields))
	}
	a.reconfigure(raw)
	a.logger.Info("configuration reloaded",
		zap.String("provider", cfg.Scoring.Provider),
		zap.String("model", cfg.Scoring.Model))
}

// SetEnabled turns filtering on or off through the stored filter blob
func (a *App) SetEnabled(ctx context.Context, enabled bool) error {
	return a.writeFilter(ctx, config.FieldEnabled, enabled)
}

// SetShowScores toggles the score badges through the stored filter blob
func (a *App) SetShowScores(ctx context.Context, show bool) error {
	return a.writeFilter(ctx, config.FieldShowScores, show)
}

// SetThreshold changes the hide threshold, clamped to 0..100
func (a *App) SetThreshold(ctx context.Context, threshold int) error {
	return a.writeFilter(ctx, config.FieldThreshold, min(max(threshold, 0), 100))
}

// SetTopicCooldown changes how many days a watched topic stays counted
func (a *App) SetTopicCooldown(ctx context.Context, days int) error {
	return a.writeFilter(ctx, config.FieldTopicCooldownDays, max(days, 0))
}

// SetMaxTopicVideos changes the watch count at which a topic saturates
func (a *App) SetMaxTopicVideos(ctx context.Context, n int) error {
	return a.writeFilter(ctx, config.FieldMaxTopicVideos, max(n, 0))
}

// SetAPIEndpoint changes the scoring endpoint
func (a *App) SetAPIEndpoint(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint must not be empty")
	}
	return a.writeFilter(ctx, config.FieldAPIEndpoint, endpoint)
}

// writeFilter sets one field of the stored filter blob. Fields never set
// at runtime keep following the file config. The store change
// notification applies the result.
func (a *App) writeFilter(ctx context.Context, field string, value any) error {
	vals, err := a.kv.Get(ctx, store.KeyFilterConfig)
	if err != nil {
		return fmt.Errorf("failed to read filter config: %w", err)
	}
	blob := config.PatchFilter(vals[store.KeyFilterConfig], field, value)
	if err := a.kv.Set(ctx, map[string]any{store.KeyFilterConfig: blob}); err != nil {
		return fmt.Errorf("failed to save filter config: %w", err)
	}
	a.logger.Info("filter setting changed", zap.String("field", field), zap.Any("value", value))
	return nil
}

// Topics returns the watched topics, most watched first
func (a *App) Topics() []ledger.RankedTopic {
	return a.ledger.Ranked()
}

// ClearTopics forgets every watched topic
func (a *App) ClearTopics() {
	a.ledger.ClearTopics()
	a.logger.Info("watched topics cleared")
}

// RemoveTopic forgets one watched topic
func (a *App) RemoveTopic(topic string) bool {
	return a.ledger.RemoveTopic(topic)
}

// Views returns the per-video exposure counters
func (a *App) Views() map[string]types.ViewEntry {
	return a.ledger.Views()
}

// Score scores one item outside the feed with the settings in effect
func (a *App) Score(ctx context.Context, item types.Item) types.ScoredItem {
	f := a.pipeline.Filter()
	return a.analyzer.Score(ctx, item, analyzer.Options{
		Endpoint:       f.APIEndpoint,
		Model:          a.Config().Scoring.Model,
		MaxTopicVideos: f.MaxTopicVideos,
	})
}

// CheckHealth probes the scoring endpoint and records the result
func (a *App) CheckHealth(ctx context.Context) Status {
	err := a.client.Health(ctx, a.pipeline.Filter().HealthURL())
	s := Status{Online: err == nil, Checked: a.clock.Now(), Err: err}

	a.mu.Lock()
	changed := a.status.Online != s.Online || a.status.Checked.IsZero()
	a.status = s
	a.mu.Unlock()

	if changed {
		a.logger.Info("scoring endpoint status", zap.Bool("online", s.Online), zap.Error(err))
	}
	return s
}

// Status returns the last health probe result
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// SaveReport renders the session report and writes it to the report dir
func (a *App) SaveReport() (string, error) {
	r, err := a.reports.Build(digest.Input{
		Items:     a.pipeline.Session(),
		Views:     a.ledger.Views(),
		Topics:    a.ledger.Ranked(),
		Threshold: a.pipeline.Filter().Threshold,
	})
	if err != nil {
		return "", err
	}
	path, err := store.SaveReport(r.HTMLBody, ".html")
	if err != nil {
		return "", err
	}
	a.logger.Info("session report saved", zap.String("path", path), zap.Int("items", len(r.ItemIDs)))
	return path, nil
}

// ViewReport saves a fresh session report and opens it. With nothing
// scored yet the most recent saved report is opened instead.
func (a *App) ViewReport() error {
	path, err := a.SaveReport()
	if err != nil {
		a.logger.Debug("no fresh report", zap.Error(err))
		if path, err = store.LatestReport(); err != nil {
			return err
		}
	}
	return browser.OpenFile(path)
}

// IsAuthenticated reports whether YouTube session cookies are stored.
func (a *App) IsAuthenticated() bool {
	return a.opts.Auth != nil && a.opts.Auth.IsAuthenticated()
}

// TriggerLogin opens a browser for the YouTube sign-in. The live session
// picks the cookies up on its next start.
func (a *App) TriggerLogin(ctx context.Context) error {
	if a.opts.Auth == nil {
		return errors.New("no auth manager configured")
	}
	a.logger.Info("login triggered")
	if err := a.opts.Auth.Login(ctx); err != nil {
		a.logger.Error("login failed", zap.Error(err))
		return err
	}
	return nil
}

// TriggerLogout clears the stored YouTube cookies.
func (a *App) TriggerLogout() error {
	if a.opts.Auth == nil {
		return nil
	}
	if err := a.opts.Auth.Logout(); err != nil {
		a.logger.Error("logout failed", zap.Error(err))
		return err
	}
	a.logger.Info("logged out")
	return nil
}

func (a *App) cookies() ([]*network.Cookie, error) {
	if a.opts.Auth == nil {
		return nil, nil
	}
	return a.opts.Auth.GetCookies()
}
