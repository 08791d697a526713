// Package pipeline runs one filtering pass over the current document:
// wrapper sweep, heuristics, extraction, exposure tracking, then sequential
// scoring with the result applied to each handle as it arrives.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/ytfilter/internal/analyzer"
	"github.com/ibeckermayer/ytfilter/internal/classify"
	"github.com/ibeckermayer/ytfilter/internal/config"
	"github.com/ibeckermayer/ytfilter/internal/dom"
	"github.com/ibeckermayer/ytfilter/internal/filter"
	"github.com/ibeckermayer/ytfilter/internal/ledger"
	"github.com/ibeckermayer/ytfilter/internal/metrics"
	"github.com/ibeckermayer/ytfilter/internal/scraper"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

// TopicClient derives a topic from a clicked title
type TopicClient interface {
	Topic(ctx context.Context, url, title string) (string, error)
}

// Deps are the collaborators a Pipeline works with
type Deps struct {
	Document *dom.Document
	Ledger   *ledger.Ledger
	Analyzer *analyzer.Analyzer
	Topics   TopicClient
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	Filter config.Filter
	Model  string
}

// Pipeline holds the per-session filtering context
type Pipeline struct {
	doc      *dom.Document
	ledger   *ledger.Ledger
	analyzer *analyzer.Analyzer
	topics   TopicClient
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu     sync.RWMutex
	filter config.Filter
	model  string

	sessionMu sync.Mutex
	session   map[string]types.ScoredItem
	order     []string
}

func New(d Deps) *Pipeline {
	m := d.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		doc:      d.Document,
		ledger:   d.Ledger,
		analyzer: d.Analyzer,
		topics:   d.Topics,
		metrics:  m,
		logger:   logger.Named("pipeline"),
		filter:   d.Filter.Clamp(),
		model:    d.Model,
		session:  make(map[string]types.ScoredItem),
	}
}

// Filter returns the settings currently in effect
func (p *Pipeline) Filter() config.Filter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filter
}

// SetModel changes the model sent with scoring requests
func (p *Pipeline) SetModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = model
}

// Process runs one pass. Handles that already carry a mark are skipped.
// Returns early only when ctx is cancelled.
func (p *Pipeline) Process(ctx context.Context) error {
	f := p.Filter()
	if !f.Enabled {
		return nil
	}

	start := time.Now()
	p.metrics.Passes.Inc()
	defer func() { p.metrics.PassDuration.Observe(time.Since(start).Seconds()) }()

	if n := classify.SweepWrappers(p.doc); n > 0 {
		p.logger.Debug("hid feed wrappers", zap.Int("count", n))
	}

	var items []types.Item
	for _, el := range p.doc.QueryAll(scraper.FeedItems) {
		if types.Read(el) != types.MarkUnset {
			continue
		}

		if mark := classify.Heuristic(el); mark != types.MarkUnset {
			p.hide(el, mark, "")
			continue
		}

		item := scraper.Extract(el)
		if item == nil {
			continue
		}

		// Counted before scoring so the current showing is included
		if views := p.ledger.RecordView(item.ID); classify.OverExposed(views) {
			p.hide(el, types.MarkSeenTooOften, item.Title)
			continue
		}
		items = append(items, *item)
	}

	if len(items) == 0 {
		return nil
	}
	p.logger.Info("processing items", zap.Int("count", len(items)))

	err := p.analyzer.ScoreAll(ctx, items, p.scoreOptions, p.apply)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scoring interrupted: %w", err)
	}
	return err
}

// Reconfigure installs f, prunes topics when the cooldown changed, and
// clears every mark so the next pass reclassifies all handles.
func (p *Pipeline) Reconfigure(f config.Filter) int {
	f = f.Clamp()

	p.mu.Lock()
	old := p.filter
	p.filter = f
	p.mu.Unlock()

	if old.TopicCooldownDays != f.TopicCooldownDays {
		p.ledger.SetCooldown(f.TopicCooldownDays)
	}

	marked := p.doc.QueryAll(scraper.Filtered)
	for _, el := range marked {
		el.DeleteData(types.MarkAttr)
	}
	p.logger.Info("reconfigured",
		zap.Bool("enabled", f.Enabled),
		zap.Int("threshold", f.Threshold),
		zap.Bool("show_scores", f.ShowScores),
		zap.Int("cleared", len(marked)))
	return len(marked)
}

// OnClick handles a click on target. When it lands on a watch link inside a
// classified handle, the handle's title is sent to the topic endpoint and a
// returned topic is counted. Failures are logged and otherwise ignored.
func (p *Pipeline) OnClick(ctx context.Context, target *dom.Element) {
	if target == nil || p.topics == nil {
		return
	}
	link := target.Closest(scraper.WatchLink)
	if link == nil {
		return
	}
	handle := link.Closest(scraper.Filtered)
	if handle == nil {
		return
	}
	titleEl := handle.Query(scraper.ClickTitle)
	if titleEl == nil {
		return
	}
	title := strings.TrimSpace(titleEl.Text())
	if title == "" {
		return
	}

	topic, err := p.topics.Topic(ctx, p.Filter().WatchedURL(), title)
	if err != nil {
		p.metrics.TopicClicks.WithLabelValues("error").Inc()
		p.logger.Debug("topic lookup failed", zap.String("title", title), zap.Error(err))
		return
	}
	if topic == "" {
		p.metrics.TopicClicks.WithLabelValues("null").Inc()
		return
	}

	count := p.ledger.RecordTopicClick(topic)
	p.metrics.TopicClicks.WithLabelValues("recorded").Inc()
	p.logger.Info("topic watched", zap.String("topic", topic), zap.Int("count", count))
}

// Session returns the latest result for every item scored this session,
// highest score first
func (p *Pipeline) Session() []types.ScoredItem {
	p.sessionMu.Lock()
	out := make([]types.ScoredItem, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.session[id])
	}
	p.sessionMu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (p *Pipeline) scoreOptions() analyzer.Options {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return analyzer.Options{
		Endpoint:       p.filter.APIEndpoint,
		Model:          p.model,
		MaxTopicVideos: p.filter.MaxTopicVideos,
	}
}

// apply runs between relay calls with the settings current at that moment
func (p *Pipeline) apply(s types.ScoredItem) {
	f := p.Filter()
	res := filter.Apply(s, filter.Options{Threshold: f.Threshold, ShowScores: f.ShowScores}, p.ledger.ViewCount(s.ID))
	p.metrics.Classified.WithLabelValues(string(types.MarkScored)).Inc()
	if res.Hidden {
		p.logger.Info("hidden",
			zap.String("title", s.Title),
			zap.Int("score", s.Score),
			zap.String("reason", s.Reason))
	}

	p.sessionMu.Lock()
	if _, ok := p.session[s.ID]; !ok {
		p.order = append(p.order, s.ID)
	}
	p.session[s.ID] = s
	p.sessionMu.Unlock()
}

func (p *Pipeline) hide(el *dom.Element, mark types.Mark, title string) {
	filter.Hide(el, mark)
	p.metrics.Classified.WithLabelValues(string(mark)).Inc()
	p.logger.Debug("hidden", zap.String("mark", string(mark)), zap.String("title", title))
}
