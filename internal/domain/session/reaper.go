package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// reapTimeout bounds a single reap run
const reapTimeout = 5 * time.Minute

// IdleReaper terminates sessions idle for longer than a threshold
type IdleReaper interface {
	ReapIdle(ctx context.Context, maxIdle time.Duration) (int, error)
}

// Reaper runs ReapIdle on a cron schedule
type Reaper struct {
	target  IdleReaper
	maxIdle time.Duration
	cron    *cron.Cron
	logger  *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewReaper schedules target. schedule is a cron expression, a descriptor
// such as "@every 5m", or a plain duration.
func NewReaper(target IdleReaper, schedule string, maxIdle time.Duration, logger *zap.Logger) (*Reaper, error) {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Reaper{
		target:  target,
		maxIdle: maxIdle,
		cron:    cron.New(),
		logger:  logger.Named("reaper"),
	}
	r.cron.Schedule(sched, cron.FuncJob(r.run))
	return r, nil
}

// Start begins running the schedule
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.cron.Start()
	r.started = true
	r.logger.Info("Idle reaper started", zap.Duration("max_idle", r.maxIdle))
}

// Stop halts the schedule and waits for a running reap to finish
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.started = false
	r.ctx = nil
	r.mu.Unlock()

	<-r.cron.Stop().Done()
}

// RunOnce reaps immediately
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, reapTimeout)
	defer cancel()
	return r.target.ReapIdle(ctx, r.maxIdle)
}

func (r *Reaper) run() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	if ctx == nil {
		return
	}

	start := time.Now()
	n, err := r.RunOnce(ctx)
	if err != nil {
		r.logger.Warn("Idle reap failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	if n > 0 {
		r.logger.Info("Idle reap completed", zap.Int("reaped", n), zap.Duration("duration", time.Since(start)))
	}
}

// ParseSchedule accepts a cron expression or descriptor, falling back to a
// positive duration
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	d, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return cron.Every(d), nil
}
