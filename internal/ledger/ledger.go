// Package ledger keeps the persisted exposure counters: per-video view counts
// and per-topic click-through counts.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ibeckermayer/ytfilter/internal/store"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

// ViewTTL is how long a view entry survives without being seen
const ViewTTL = 30 * 24 * time.Hour

const day = 24 * time.Hour

// Ledger holds view and topic counters in memory and persists them in the
// background. Writes are fire-and-forget: a crash between a mutation and
// its write loses that increment.
type Ledger struct {
	kv     store.KV
	clock  clockwork.Clock
	logger *zap.Logger

	mu       sync.Mutex
	views    map[string]types.ViewEntry
	topics   map[string]types.TopicEntry
	counted  map[string]struct{} // ids counted this session
	cooldown time.Duration
	dirty    map[string]bool

	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a ledger and starts its writer goroutine. Call Load before use
// and Close on shutdown.
func New(kv store.KV, clock clockwork.Clock, logger *zap.Logger) *Ledger {
	l := &Ledger{
		kv:       kv,
		clock:    clock,
		logger:   logger.Named("ledger"),
		views:    make(map[string]types.ViewEntry),
		topics:   make(map[string]types.TopicEntry),
		counted:  make(map[string]struct{}),
		cooldown: 14 * day,
		dirty:    make(map[string]bool),
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.writer()
	return l
}

// Load reads both blobs, prunes stale entries and starts a new session.
// Pruned blobs are written back; untouched ones are not.
func (l *Ledger) Load(ctx context.Context, cooldownDays int) error {
	got, err := l.kv.Get(ctx, store.KeyViewCounts, store.KeyTopics)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	views := make(map[string]types.ViewEntry)
	if raw, ok := got[store.KeyViewCounts]; ok {
		if err := json.Unmarshal(raw, &views); err != nil {
			l.logger.Warn("discarding unreadable view counts", zap.Error(err))
			views = make(map[string]types.ViewEntry)
		}
	}
	topics := make(map[string]types.TopicEntry)
	if raw, ok := got[store.KeyTopics]; ok {
		if err := json.Unmarshal(raw, &topics); err != nil {
			l.logger.Warn("discarding unreadable topics", zap.Error(err))
			topics = make(map[string]types.TopicEntry)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.views = views
	l.topics = topics
	l.counted = make(map[string]struct{})
	l.cooldown = time.Duration(max(cooldownDays, 0)) * day

	now := l.clock.Now()
	if n := l.pruneViewsLocked(now); n > 0 {
		l.logger.Debug("pruned view counts", zap.Int("removed", n))
		l.markDirtyLocked(store.KeyViewCounts)
	}
	if n := l.pruneTopicsLocked(now); n > 0 {
		l.logger.Debug("pruned topics", zap.Int("removed", n))
		l.markDirtyLocked(store.KeyTopics)
	}

	l.logger.Info("loaded",
		zap.Int("views", len(l.views)),
		zap.Int("topics", len(l.topics)))
	return nil
}

// RecordView counts a view of id at most once per session and returns the
// updated count. The write happens in the background.
func (l *Ledger) RecordView(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.counted[id]; ok {
		return l.views[id].Count
	}
	l.counted[id] = struct{}{}

	e := l.views[id]
	e.Count++
	e.LastSeen = l.clock.Now().UnixMilli()
	l.views[id] = e
	l.markDirtyLocked(store.KeyViewCounts)
	return e.Count
}

// ViewCount returns the persisted count for id, 0 if unknown
func (l *Ledger) ViewCount(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.views[id].Count
}

// RecordTopicClick increments a topic after a click-through
func (l *Ledger) RecordTopicClick(topic string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.topics[topic]
	e.Count++
	e.LastSeen = l.clock.Now().UnixMilli()
	l.topics[topic] = e
	l.markDirtyLocked(store.KeyTopics)
	return e.Count
}

// SaturatedTopics returns the topics whose count reached maxCount, sorted
func (l *Ledger) SaturatedTopics(maxCount int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for topic, e := range l.topics {
		if e.Count >= maxCount {
			out = append(out, topic)
		}
	}
	sort.Strings(out)
	return out
}

// SetCooldown changes the topic cooldown and prunes topics that fall outside it
func (l *Ledger) SetCooldown(days int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cooldown = time.Duration(max(days, 0)) * day
	if n := l.pruneTopicsLocked(l.clock.Now()); n > 0 {
		l.logger.Debug("pruned topics after cooldown change",
			zap.Int("days", days), zap.Int("removed", n))
		l.markDirtyLocked(store.KeyTopics)
	}
}

// Topics returns a snapshot of the topic counters
func (l *Ledger) Topics() map[string]types.TopicEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.topics)
}

// Views returns a snapshot of the view counters
func (l *Ledger) Views() map[string]types.ViewEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.views)
}

// ClearTopics forgets every topic
func (l *Ledger) ClearTopics() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.topics = make(map[string]types.TopicEntry)
	l.markDirtyLocked(store.KeyTopics)
}

// RemoveTopic forgets one topic and reports whether it existed
func (l *Ledger) RemoveTopic(topic string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.topics[topic]; !ok {
		return false
	}
	delete(l.topics, topic)
	l.markDirtyLocked(store.KeyTopics)
	return true
}

// Close stops the writer after flushing pending writes
func (l *Ledger) Close() {
	l.closeOnce.Do(func() {
		close(l.stop)
	})
	<-l.done
}

func (l *Ledger) pruneViewsLocked(now time.Time) int {
	n := 0
	for id, e := range l.views {
		if now.Sub(e.Seen()) > ViewTTL {
			delete(l.views, id)
			n++
		}
	}
	return n
}

func (l *Ledger) pruneTopicsLocked(now time.Time) int {
	n := 0
	for topic, e := range l.topics {
		if now.Sub(e.Seen()) > l.cooldown {
			delete(l.topics, topic)
			n++
		}
	}
	return n
}

func (l *Ledger) markDirtyLocked(key string) {
	l.dirty[key] = true
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// writer persists dirty blobs one Set at a time, so writes land in order
// and bursts of increments coalesce into one write.
func (l *Ledger) writer() {
	defer close(l.done)
	for {
		select {
		case <-l.kick:
			l.flush()
		case <-l.stop:
			l.flush()
			return
		}
	}
}

func (l *Ledger) flush() {
	l.mu.Lock()
	if len(l.dirty) == 0 {
		l.mu.Unlock()
		return
	}
	entries := make(map[string]any, len(l.dirty))
	if l.dirty[store.KeyViewCounts] {
		entries[store.KeyViewCounts] = maps.Clone(l.views)
	}
	if l.dirty[store.KeyTopics] {
		entries[store.KeyTopics] = maps.Clone(l.topics)
	}
	l.dirty = make(map[string]bool)
	l.mu.Unlock()

	if err := l.kv.Set(context.Background(), entries); err != nil {
		l.logger.Warn("failed to persist ledger", zap.Error(err))
	}
}

// RankedTopic is a topic with its count, as listed to the user
type RankedTopic struct {
	Topic string
	types.TopicEntry
}

// Ranked returns the topics by count descending, ties broken by name
func (l *Ledger) Ranked() []RankedTopic {
	topics := l.Topics()
	out := make([]RankedTopic, 0, len(topics))
	for topic, e := range topics {
		out = append(out, RankedTopic{Topic: topic, TopicEntry: e})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}
