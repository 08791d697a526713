package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const debounce = 500 * time.Millisecond

type loop struct {
	clock *clockwork.FakeClock
	s     *Scheduler
	runs  atomic.Int32
	gate  chan struct{} // when set, each pass waits for a receive
}

func startLoop(t *testing.T, gated bool) *loop {
	t.Helper()
	l := &loop{clock: clockwork.NewFakeClock()}
	if gated {
		l.gate = make(chan struct{})
	}
	l.s = New(l.clock, Options{Debounce: debounce}, func(ctx context.Context) {
		l.runs.Add(1)
		if l.gate != nil {
			select {
			case <-l.gate:
			case <-ctx.Done():
			}
		}
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
	return l
}

func (l *loop) waitRuns(t *testing.T, n int32) {
	t.Helper()
	require.Eventually(t, func() bool { return l.runs.Load() == n }, time.Second, 2*time.Millisecond)
}

func (l *loop) noMoreRuns(t *testing.T, n int32) {
	t.Helper()
	assert.Never(t, func() bool { return l.runs.Load() != n }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestTriggerDebounces(t *testing.T) {
	l := startLoop(t, false)

	l.s.Trigger()
	assert.True(t, l.s.Pending())
	l.clock.Advance(400 * time.Millisecond)
	l.s.Trigger()
	l.clock.Advance(400 * time.Millisecond)
	l.noMoreRuns(t, 0)

	l.clock.Advance(100 * time.Millisecond)
	l.waitRuns(t, 1)
	assert.False(t, l.s.Pending())
	l.noMoreRuns(t, 1)
}

func TestRunNowBypassesDebounce(t *testing.T) {
	l := startLoop(t, false)

	l.s.Trigger()
	l.s.RunNow()
	l.waitRuns(t, 1)
	assert.False(t, l.s.Pending())

	// The superseded debounce timer does not produce a second pass
	l.clock.Advance(time.Second)
	l.noMoreRuns(t, 1)
}

func TestTriggersDuringPassCoalesce(t *testing.T) {
	l := startLoop(t, true)

	l.s.RunNow()
	l.waitRuns(t, 1)

	l.s.RunNow()
	l.s.RunNow()
	l.s.Trigger()
	l.clock.Advance(debounce)
	require.Eventually(t, func() bool { return !l.s.Pending() }, time.Second, 2*time.Millisecond)

	l.gate <- struct{}{}
	l.waitRuns(t, 2)
	l.gate <- struct{}{}
	l.noMoreRuns(t, 2)
}

func TestTriggerAfterWaitsThenDebounces(t *testing.T) {
	l := startLoop(t, false)

	l.s.TriggerAfter(2 * time.Second)
	assert.False(t, l.s.Pending())
	l.clock.Advance(2 * time.Second)
	require.Eventually(t, l.s.Pending, time.Second, 2*time.Millisecond)
	l.noMoreRuns(t, 0)

	l.clock.Advance(debounce)
	l.waitRuns(t, 1)
}

func TestStoppedLoopIgnoresTriggers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var runs atomic.Int32
	s := New(clock, Options{Debounce: debounce}, func(context.Context) { runs.Add(1) }, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)

	s.Trigger()
	s.TriggerAfter(time.Second)
	assert.False(t, s.Pending())
	clock.Advance(2 * time.Second)
	assert.Equal(t, int32(0), runs.Load())
}

func TestJobs(t *testing.T) {
	j := NewJobs(time.Second, zap.NewNop())

	assert.Error(t, j.AddJob("bad", "not a schedule", func(context.Context) error { return nil }))

	require.NoError(t, j.AddJob("health", "@every 30s", func(context.Context) error { return nil }))
	require.NoError(t, j.AddJob("health", "@every 1m", func(context.Context) error { return nil }))
	require.NoError(t, j.AddJob("cleanup", "0 4 * * *", func(context.Context) error { return nil }))

	jobs := j.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "cleanup", jobs[0].Name)
	assert.Equal(t, "health", jobs[1].Name)

	j.RemoveJob("cleanup")
	assert.Len(t, j.ListJobs(), 1)

	boom := errors.New("probe failed")
	assert.ErrorIs(t, j.RunNow(context.Background(), "health", func(context.Context) error { return boom }), boom)

	var ran atomic.Bool
	require.NoError(t, j.RunNow(context.Background(), "health", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		ran.Store(ok)
		return nil
	}))
	assert.True(t, ran.Load())

	j.Start()
	<-j.Stop().Done()
}
