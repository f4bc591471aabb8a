// Package worker runs background jobs on a fixed interval. Each run takes a
// named lock first so that only one replica of a service does the work.
package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/lock"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/telemetry"
)

const minLockTTL = 5 * time.Minute

// Report carries the counters a run wants logged, e.g. {"deleted": 12}.
type Report map[string]int64

// Task is one unit of periodic work.
type Task func(ctx context.Context) (Report, error)

// Config describes a periodic job.
type Config struct {
	Name     string
	Interval time.Duration
	// LockKey defaults to lock.Keys.Job(Name).
	LockKey string
	// LockTTL defaults to half the interval, never less than five minutes.
	LockTTL time.Duration
	// Timeout bounds a single run. Zero means the lock TTL.
	Timeout time.Duration
}

// Runner schedules a Task. Runs in progress are never interrupted by Stop;
// cancellation only happens between runs.
type Runner struct {
	cfg     Config
	task    Task
	locker  lock.Locker
	metrics *telemetry.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewRunner builds a runner; a nil locker runs without coordination.
func NewRunner(cfg Config, task Task, locker lock.Locker, m *telemetry.Metrics, logger *zap.Logger) *Runner {
	if cfg.LockKey == "" {
		cfg.LockKey = lock.Keys.Job(cfg.Name)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval / 2
		if cfg.LockTTL < minLockTTL {
			cfg.LockTTL = minLockTTL
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.LockTTL
	}
	if locker == nil {
		locker = lock.NewNoOpLocker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		task:    task,
		locker:  locker,
		metrics: m,
		logger:  logger.With(zap.String("job", cfg.Name)),
	}
}

// Name returns the job name.
func (r *Runner) Name() string {
	return r.cfg.Name
}

// Start runs the task immediately and then on every tick until Stop or ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.doneChan = make(chan struct{})
	r.mu.Unlock()

	r.logger.Info("starting background job",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("lock_ttl", r.cfg.LockTTL),
	)

	go r.runLoop(ctx, r.stopChan, r.doneChan)
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stop, done := r.stopChan, r.doneChan
	r.mu.Unlock()

	close(stop)
	<-done

	r.logger.Info("background job stopped")
}

func (r *Runner) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	r.runScheduled(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runScheduled(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) runScheduled(ctx context.Context) {
	_, _, _ = r.RunOnce(context.WithoutCancel(ctx))
}

// ErrLockUnavailable is returned by RunOnce when another replica holds the lock.
var ErrLockUnavailable = errors.New("worker: lock held elsewhere")

// RunOnce executes the task under the job lock. It reports whether the task ran.
func (r *Runner) RunOnce(ctx context.Context) (Report, bool, error) {
	start := time.Now()

	acquired, err := r.locker.Acquire(ctx, r.cfg.LockKey, r.cfg.LockTTL)
	if err != nil {
		r.logger.Error("failed to acquire job lock", zap.Error(err))
		r.metrics.JobRun(r.cfg.Name, time.Since(start), err)
		return nil, false, err
	}
	if !acquired {
		r.logger.Debug("job lock held by another process, skipping run")
		return nil, false, ErrLockUnavailable
	}
	defer func() {
		if _, err := r.locker.Release(context.WithoutCancel(ctx), r.cfg.LockKey); err != nil {
			r.logger.Error("failed to release job lock", zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	report, err := r.task(runCtx)
	elapsed := time.Since(start)
	r.metrics.JobRun(r.cfg.Name, elapsed, err)

	fields := append(report.fields(), zap.Duration("duration", elapsed))
	if err != nil {
		r.logger.Error("background job failed", append(fields, zap.Error(err))...)
		return report, true, err
	}
	r.logger.Info("background job completed", fields...)
	return report, true, nil
}

func (r Report) fields() []zap.Field {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys)+1)
	for _, k := range keys {
		fields = append(fields, zap.Int64(k, r[k]))
	}
	return fields
}

// Group starts and stops several runners together.
type Group struct {
	runners []*Runner
}

// NewGroup collects runners; nil entries are skipped.
func NewGroup(runners ...*Runner) *Group {
	g := &Group{}
	for _, r := range runners {
		if r != nil {
			g.runners = append(g.runners, r)
		}
	}
	return g
}

// Start launches every runner.
func (g *Group) Start(ctx context.Context) {
	for _, r := range g.runners {
		r.Start(ctx)
	}
}

// Stop halts every runner and waits for in-flight runs.
func (g *Group) Stop() {
	for _, r := range g.runners {
		r.Stop()
	}
}
