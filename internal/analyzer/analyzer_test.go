package analyzer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ibeckermayer/ytfilter/internal/config"
	"github.com/ibeckermayer/ytfilter/internal/metrics"
	"github.com/ibeckermayer/ytfilter/internal/relay"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

type fakeRelay struct {
	mu      sync.Mutex
	calls   atomic.Int32
	prompts []string
	send    func(req relay.GenerateRequest) (*relay.GenerateResponse, error)
}

func (f *fakeRelay) Send(ctx context.Context, endpoint string, req relay.GenerateRequest) (*relay.GenerateResponse, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()
	return f.send(req)
}

func reply(text string) func(relay.GenerateRequest) (*relay.GenerateResponse, error) {
	return func(relay.GenerateRequest) (*relay.GenerateResponse, error) {
		return &relay.GenerateResponse{Response: text}, nil
	}
}

type staticTopics []string

func (s staticTopics) SaturatedTopics(int) []string { return s }

func newAnalyzer(r relay.Relay, topics Topics) (*Analyzer, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return New(r, config.Default().Scoring, topics, m, zap.NewNop()), m
}

var item = types.Item{ID: "abc123", Title: "Writing a Lock-Free Queue", Channel: "Systems Lab"}

func TestScoreCachesSuccess(t *testing.T) {
	r := &fakeRelay{send: reply(`Here you go: {"score": 82, "reason": "technical deep dive"}`)}
	a, m := newAnalyzer(r, nil)

	got := a.Score(context.Background(), item, Options{Endpoint: "http://scorer"})
	assert.Equal(t, types.ScoreEntry{Score: 82, Reason: "technical deep dive"}, got.ScoreEntry)
	assert.True(t, got.Scored)
	assert.False(t, got.Cached)
	assert.Equal(t, item.Title, got.Title)

	again := a.Score(context.Background(), item, Options{Endpoint: "http://scorer"})
	assert.True(t, again.Cached)
	assert.Equal(t, got.ScoreEntry, again.ScoreEntry)
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, 1, a.Cache().Len())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayCalls.WithLabelValues("ok")))
}

func TestScoreFallbackIsNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	r := &fakeRelay{send: func(relay.GenerateRequest) (*relay.GenerateResponse, error) {
		if fail.Load() {
			return nil, errors.New("connection refused")
		}
		return &relay.GenerateResponse{Response: `{"score": 64, "reason": "fine"}`}, nil
	}}
	a, m := newAnalyzer(r, nil)

	got := a.Score(context.Background(), item, Options{})
	assert.Equal(t, types.ScoreEntry{Score: 50, Reason: FallbackReason}, got.ScoreEntry)
	assert.False(t, got.Scored)
	assert.Equal(t, 0, a.Cache().Len())

	fail.Store(false)
	got = a.Score(context.Background(), item, Options{})
	assert.Equal(t, 64, got.Score)
	assert.Equal(t, int32(2), r.calls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayCalls.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayCalls.WithLabelValues("ok")))
}

func TestScoreMalformedResponse(t *testing.T) {
	r := &fakeRelay{send: reply("I think this video is pretty good")}
	a, m := newAnalyzer(r, nil)

	got := a.Score(context.Background(), item, Options{})
	assert.Equal(t, NeutralScore, got.Score)
	assert.Equal(t, FallbackReason, got.Reason)
	assert.Equal(t, 0, a.Cache().Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayCalls.WithLabelValues("malformed")))
}

func TestScoreDeduplicatesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	r := &fakeRelay{send: func(relay.GenerateRequest) (*relay.GenerateResponse, error) {
		<-release
		return &relay.GenerateResponse{Response: `{"score": 90, "reason": "great"}`}, nil
	}}
	a, _ := newAnalyzer(r, nil)

	var wg sync.WaitGroup
	results := make([]types.ScoredItem, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = a.Score(context.Background(), item, Options{})
		}()
	}

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), r.calls.Load())
	for _, res := range results {
		assert.Equal(t, 90, res.Score)
	}
}

// blockingRelay answers once release is closed, or fails when its ctx ends
type blockingRelay struct {
	calls   atomic.Int32
	release chan struct{}
}

func (b *blockingRelay) Send(ctx context.Context, endpoint string, req relay.GenerateRequest) (*relay.GenerateResponse, error) {
	b.calls.Add(1)
	select {
	case <-b.release:
		return &relay.GenerateResponse{Response: `{"score": 90, "reason": "great"}`}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestScoreJoinedCallerSurvivesLeaderCancel(t *testing.T) {
	r := &blockingRelay{release: make(chan struct{})}
	a, _ := newAnalyzer(r, nil)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leader := make(chan types.ScoredItem, 1)
	go func() { leader <- a.Score(leaderCtx, item, Options{}) }()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	joined := make(chan types.ScoredItem, 1)
	go func() { joined <- a.Score(context.Background(), item, Options{}) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(r.release)

	got := <-joined
	assert.True(t, got.Scored)
	assert.Equal(t, 90, got.Score)
	<-leader
	assert.Equal(t, int32(1), r.calls.Load())

	_, ok := a.Cache().Get(item.ID)
	assert.True(t, ok)
}

func TestScoreIncludesSaturatedTopics(t *testing.T) {
	r := &fakeRelay{send: reply(`{"score": 30, "reason": "seen it"}`)}
	a, _ := newAnalyzer(r, staticTopics{"crypto", "rust"})

	a.Score(context.Background(), item, Options{MaxTopicVideos: 4})
	require.Len(t, r.prompts, 1)
	assert.Contains(t, r.prompts[0], "SATURATED TOPICS (score lower): crypto, rust")
	assert.Contains(t, r.prompts[0], "VIDEO: [Systems Lab] Writing a Lock-Free Queue")
}

func TestScoreUsesModel(t *testing.T) {
	var model atomic.Value
	r := &fakeRelay{send: func(req relay.GenerateRequest) (*relay.GenerateResponse, error) {
		model.Store(req.Model)
		assert.False(t, req.Stream)
		return &relay.GenerateResponse{Response: `{"score": 70}`}, nil
	}}
	a, _ := newAnalyzer(r, nil)

	a.Score(context.Background(), item, Options{})
	assert.Equal(t, config.DefaultModel, model.Load())

	a.Score(context.Background(), types.Item{ID: "other"}, Options{Model: "qwen2.5:7b"})
	assert.Equal(t, "qwen2.5:7b", model.Load())
}

func TestScoreAllAppliesBeforeNextCall(t *testing.T) {
	var mu sync.Mutex
	var events []string
	r := &fakeRelay{send: func(req relay.GenerateRequest) (*relay.GenerateResponse, error) {
		mu.Lock()
		events = append(events, "send")
		mu.Unlock()
		return &relay.GenerateResponse{Response: `{"score": 75, "reason": "ok"}`}, nil
	}}
	a, _ := newAnalyzer(r, nil)

	items := []types.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	var order []string
	err := a.ScoreAll(context.Background(), items, func() Options { return Options{} }, func(s types.ScoredItem) {
		mu.Lock()
		events = append(events, "apply")
		mu.Unlock()
		order = append(order, s.ID)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, []string{"send", "apply", "send", "apply", "send", "apply"}, events)
}

func TestScoreAllReadsOptionsPerItem(t *testing.T) {
	var endpoints []string
	r := &fakeRelay{send: reply(`{"score": 75}`)}
	a, _ := newAnalyzer(relayFunc(func(ctx context.Context, endpoint string, req relay.GenerateRequest) (*relay.GenerateResponse, error) {
		endpoints = append(endpoints, endpoint)
		return r.Send(ctx, endpoint, req)
	}), nil)

	current := "http://one"
	items := []types.Item{{ID: "a"}, {ID: "b"}}
	err := a.ScoreAll(context.Background(), items, func() Options { return Options{Endpoint: current} }, func(types.ScoredItem) {
		current = "http://two"
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://one", "http://two"}, endpoints)
}

func TestScoreAllStopsOnCancel(t *testing.T) {
	r := &fakeRelay{send: reply(`{"score": 75}`)}
	a, _ := newAnalyzer(r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var applied int
	err := a.ScoreAll(ctx, []types.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}, func() Options { return Options{} }, func(types.ScoredItem) {
		applied++
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, applied)
}

func TestScoreDumpsExchanges(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	cfg := config.Default().Scoring
	cfg.DumpExchanges = true
	r := &fakeRelay{send: reply(`{"score": 75, "reason": "ok"}`)}
	a := New(r, cfg, nil, metrics.New(nil), zap.NewNop())

	a.Score(context.Background(), item, Options{})

	cacheDir, err := config.CacheDir()
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(cacheDir, "exchanges"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "abc123")
}

func TestSetRelayKeepsCache(t *testing.T) {
	first := &fakeRelay{send: reply(`{"score": 81, "reason": "good"}`)}
	a, _ := newAnalyzer(first, nil)
	a.Score(context.Background(), item, Options{})

	second := &fakeRelay{send: reply(`{"score": 10, "reason": "bad"}`)}
	a.SetRelay(second, config.Default().Scoring)

	got := a.Score(context.Background(), item, Options{})
	assert.Equal(t, 81, got.Score)
	assert.Equal(t, int32(0), second.calls.Load())

	a.Score(context.Background(), types.Item{ID: "new"}, Options{})
	assert.Equal(t, int32(1), second.calls.Load())
}

type relayFunc func(ctx context.Context, endpoint string, req relay.GenerateRequest) (*relay.GenerateResponse, error)

func (f relayFunc) Send(ctx context.Context, endpoint string, req relay.GenerateRequest) (*relay.GenerateResponse, error) {
	return f(ctx, endpoint, req)
}
