package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job represents a periodic background task
type Job func(ctx context.Context) error

// Jobs runs named cron jobs. A run that is still in progress when its next
// tick arrives causes that tick to be skipped.
type Jobs struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// NewJobs creates a job runner. timeout bounds each run; zero means one minute.
func NewJobs(timeout time.Duration, logger *zap.Logger) *Jobs {
	if timeout <= 0 {
		timeout = time.Minute
	}
	logger = logger.Named("jobs")
	return &Jobs{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
		logger:  logger,
		jobs:    make(map[string]cron.EntryID),
	}
}

// AddJob adds a job with a cron schedule, e.g. "@every 30s" or "0 7 * * *".
// Adding a name twice replaces the earlier job.
func (j *Jobs) AddJob(name, schedule string, job Job) error {
	entryID, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		j.execute(ctx, name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	j.mu.Lock()
	if old, ok := j.jobs[name]; ok {
		j.cron.Remove(old)
	}
	j.jobs[name] = entryID
	j.mu.Unlock()

	j.logger.Debug("added job", zap.String("name", name), zap.String("schedule", schedule))
	return nil
}

// RemoveJob removes a scheduled job
func (j *Jobs) RemoveJob(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if entryID, ok := j.jobs[name]; ok {
		j.cron.Remove(entryID)
		delete(j.jobs, name)
		j.logger.Debug("removed job", zap.String("name", name))
	}
}

// Start begins running scheduled jobs
func (j *Jobs) Start() {
	j.cron.Start()
}

// Stop halts the runner. The returned context is done when running jobs finish.
func (j *Jobs) Stop() context.Context {
	return j.cron.Stop()
}

// RunNow executes job immediately under ctx
func (j *Jobs) RunNow(ctx context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	return j.execute(ctx, name, job)
}

// ListJobs returns info about scheduled jobs, sorted by name
func (j *Jobs) ListJobs() []JobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()

	infos := make([]JobInfo, 0, len(j.jobs))
	for name, entryID := range j.jobs {
		entry := j.cron.Entry(entryID)
		infos = append(infos, JobInfo{
			Name:    name,
			NextRun: entry.Next,
			LastRun: entry.Prev,
		})
	}
	sort.Slice(infos, func(a, b int) bool { return infos[a].Name < infos[b].Name })
	return infos
}

func (j *Jobs) execute(ctx context.Context, name string, job Job) error {
	start := time.Now()
	if err := job(ctx); err != nil {
		j.logger.Warn("job failed", zap.String("name", name), zap.Error(err))
		return err
	}
	j.logger.Debug("job completed", zap.String("name", name), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}
