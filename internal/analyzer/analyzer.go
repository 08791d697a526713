package analyzer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ibeckermayer/ytfilter/internal/config"
	"github.com/ibeckermayer/ytfilter/internal/metrics"
	"github.com/ibeckermayer/ytfilter/internal/relay"
	"github.com/ibeckermayer/ytfilter/internal/store"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

// FallbackReason is attached to items that could not be scored
const FallbackReason = "Not scored"

// Topics supplies the saturated topics used as prompt context
type Topics interface {
	SaturatedTopics(maxCount int) []string
}

// Options are read per item so that scoring follows the current settings
type Options struct {
	Endpoint       string
	Model          string
	MaxTopicVideos int
}

// Analyzer scores items through a relay, one network round trip per id
type Analyzer struct {
	mu       sync.RWMutex
	relay    relay.Relay
	provider string
	dump     bool

	cache   *Cache
	topics  Topics
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates an analyzer. topics may be nil.
func New(r relay.Relay, cfg config.ScoringConfig, topics Topics, m *metrics.Metrics, logger *zap.Logger) *Analyzer {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Analyzer{
		relay:    r,
		provider: providerName(cfg.Provider),
		dump:     cfg.DumpExchanges,
		cache:    NewCache(),
		topics:   topics,
		metrics:  m,
		logger:   logger.Named("analyzer"),
	}
}

// SetRelay swaps the provider after a config reload. The cache is kept.
func (a *Analyzer) SetRelay(r relay.Relay, cfg config.ScoringConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.relay = r
	a.provider = providerName(cfg.Provider)
	a.dump = cfg.DumpExchanges
}

// Cache returns the session score cache
func (a *Analyzer) Cache() *Cache {
	return a.cache
}

// Score returns item merged with its score. Cached entries short-circuit
// the relay. Failures yield the neutral fallback, which is not cached.
func (a *Analyzer) Score(ctx context.Context, item types.Item, opts Options) types.ScoredItem {
	if entry, ok := a.cache.Get(item.ID); ok {
		a.metrics.CacheHits.Inc()
		return types.ScoredItem{Item: item, ScoreEntry: entry, Cached: true, Scored: true}
	}

	v, err, _ := a.group.Do(item.ID, func() (any, error) {
		if entry, ok := a.cache.Get(item.ID); ok {
			return entry, nil
		}
		// Joined callers share this call, so one caller's cancellation must
		// not fail the others. The relay client's timeout still bounds it.
		entry, err := a.request(context.WithoutCancel(ctx), item, opts)
		if err != nil {
			return nil, err
		}
		a.cache.Put(item.ID, entry)
		return entry, nil
	})
	if err != nil {
		a.logger.Debug("scoring failed",
			zap.String("id", item.ID),
			zap.String("title", truncate(item.Title, 25)),
			zap.Error(err))
		return types.ScoredItem{
			Item:       item,
			ScoreEntry: types.ScoreEntry{Score: NeutralScore, Reason: FallbackReason},
		}
	}

	entry := v.(types.ScoreEntry)
	a.metrics.Scores.Observe(float64(entry.Score))
	a.logger.Debug("scored",
		zap.String("id", item.ID),
		zap.String("title", truncate(item.Title, 25)),
		zap.Int("score", entry.Score))
	return types.ScoredItem{Item: item, ScoreEntry: entry, Scored: true}
}

// ScoreAll scores items one at a time in order. apply receives each result
// before the next relay call starts. opts is consulted per item. ScoreAll
// returns early only when ctx is cancelled.
func (a *Analyzer) ScoreAll(ctx context.Context, items []types.Item, opts func() Options, apply func(types.ScoredItem)) error {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		apply(a.Score(ctx, item, opts()))
	}
	return nil
}

func (a *Analyzer) request(ctx context.Context, item types.Item, opts Options) (types.ScoreEntry, error) {
	a.mu.RLock()
	r, provider, dump := a.relay, a.provider, a.dump
	a.mu.RUnlock()

	if r == nil {
		return types.ScoreEntry{}, fmt.Errorf("no scoring relay configured")
	}

	var saturated []string
	if a.topics != nil {
		saturated = a.topics.SaturatedTopics(opts.MaxTopicVideos)
	}
	model := opts.Model
	if model == "" {
		model = config.DefaultModel
	}
	prompt := BuildPrompt(item, saturated)

	start := time.Now()
	resp, err := r.Send(ctx, opts.Endpoint, relay.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
	})
	a.metrics.RelayDuration.Observe(time.Since(start).Seconds())

	var text string
	if resp != nil {
		text = resp.Response
	}
	if dump {
		a.saveExchange(provider, model, item.ID, prompt, text, err)
	}
	if err != nil {
		a.metrics.RelayCalls.WithLabelValues("error").Inc()
		return types.ScoreEntry{}, err
	}

	entry, err := ParseScore(text)
	if err != nil {
		a.metrics.RelayCalls.WithLabelValues("malformed").Inc()
		return types.ScoreEntry{}, err
	}
	a.metrics.RelayCalls.WithLabelValues("ok").Inc()
	return entry, nil
}

func (a *Analyzer) saveExchange(provider, model, id, prompt, response string, callErr error) {
	ex := store.Exchange{
		Timestamp: time.Now(),
		Provider:  provider,
		Model:     model,
		VideoID:   id,
		Prompt:    prompt,
		Response:  response,
	}
	if callErr != nil {
		ex.Error = callErr.Error()
	}
	path, err := store.SaveExchange(ex)
	if err != nil {
		a.logger.Warn("failed to save exchange", zap.Error(err))
		return
	}
	a.logger.Debug("saved exchange", zap.String("path", path))
}

func providerName(p string) string {
	if p == "" {
		return config.ProviderOllama
	}
	return p
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
