// Package scheduler funnels pass triggers into one debounced, serial loop
// and runs the periodic background jobs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Options configures the trigger loop
type Options struct {
	// Debounce is the trailing-edge window. Each Trigger inside it restarts the timer.
	Debounce time.Duration
}

// Scheduler runs passes one at a time. Triggers that arrive while a pass
// is running coalesce into a single follow-up pass.
type Scheduler struct {
	clock  clockwork.Clock
	opts   Options
	run    func(ctx context.Context)
	logger *zap.Logger

	wake chan struct{}

	mu      sync.Mutex
	timer   clockwork.Timer
	gen     uint64
	armed   bool
	delayed map[clockwork.Timer]struct{}
	stopped bool
}

func New(clock clockwork.Clock, opts Options, run func(ctx context.Context), logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		clock:   clock,
		opts:    opts,
		run:     run,
		logger:  logger.Named("scheduler"),
		wake:    make(chan struct{}, 1),
		delayed: make(map[clockwork.Timer]struct{}),
	}
}

// Trigger schedules a pass after the debounce window, replacing any pending one
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	if s.opts.Debounce <= 0 {
		s.armed = false
		s.signal()
		return
	}
	gen := s.gen
	s.armed = true
	s.timer = s.clock.AfterFunc(s.opts.Debounce, func() { s.fire(gen) })
}

// TriggerAfter calls Trigger once d has elapsed. Used for the initial load
// and for navigation, which wait for the feed to render.
func (s *Scheduler) TriggerAfter(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if d <= 0 {
		go s.Trigger()
		return
	}
	var t clockwork.Timer
	t = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.delayed, t)
		s.mu.Unlock()
		s.Trigger()
	})
	s.delayed[t] = struct{}{}
}

// RunNow requests a pass without waiting for the debounce window and
// cancels any pending debounced pass
func (s *Scheduler) RunNow() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	s.armed = false
	stopped := s.stopped
	s.mu.Unlock()

	if !stopped {
		s.signal()
	}
}

// Pending reports whether a debounced pass is waiting for its window
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Run executes passes until ctx is cancelled. A pass in progress is not
// interrupted by new triggers.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}

		start := s.clock.Now()
		s.run(ctx)
		s.logger.Debug("pass finished", zap.Duration("elapsed", s.clock.Since(start)))
	}
}

// fire ignores timers superseded by a later Trigger or RunNow
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.armed || s.stopped {
		s.mu.Unlock()
		return
	}
	s.armed = false
	s.signal()
	s.mu.Unlock()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.armed = false
	for t := range s.delayed {
		t.Stop()
	}
	clear(s.delayed)
}
