package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"MediMind/internal/ports"
)

// ErrInvalidJob is returned by Register for malformed jobs.
var ErrInvalidJob = errors.New("invalid job")

// Timer is the subset of *time.Timer the scheduler relies on.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// Option customizes a Daily scheduler.
type Option func(*Daily)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(d *Daily) { d.now = now }
}

// WithTimerFactory overrides how the scheduler waits for the next fire time.
func WithTimerFactory(newTimer func(time.Duration) Timer) Option {
	return func(d *Daily) { d.newTimer = newTimer }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Daily) { d.logger = logger }
}

type entry struct {
	job    ports.Job
	next   *time.Time
	cancel context.CancelFunc
}

// Daily fires each registered job once a day at its wall-clock time in loc.
// Every job has its own timer loop; execution is serialized so two jobs never
// run at the same time.
type Daily struct {
	loc      *time.Location
	now      func() time.Time
	newTimer func(time.Duration) Timer
	logger   *zap.Logger

	runMu sync.Mutex

	mu      sync.Mutex
	jobs    map[string]*entry
	order   []string
	running bool
	base    context.Context
	stop    context.CancelFunc
	// wg tracks the loops of the current Start; each Start gets a fresh one.
	wg *sync.WaitGroup
}

var _ ports.Scheduler = (*Daily)(nil)

// NewDaily builds a stopped scheduler resolving fire times in loc.
func NewDaily(loc *time.Location, opts ...Option) *Daily {
	if loc == nil {
		loc = time.Local
	}
	d := &Daily{
		loc:      loc,
		now:      time.Now,
		newTimer: func(dur time.Duration) Timer { return realTimer{t: time.NewTimer(dur)} },
		logger:   zap.NewNop(),
		jobs:     map[string]*entry{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "scheduler"))
	return d
}

// Register adds or replaces a job. Replacing a job of a running scheduler
// restarts its loop with the new time.
func (d *Daily) Register(job ports.Job) error {
	if job.ID == "" || job.Run == nil {
		return fmt.Errorf("%w: id and run func are required", ErrInvalidJob)
	}
	if job.Hour < 0 || job.Hour > 23 || job.Minute < 0 || job.Minute > 59 {
		return fmt.Errorf("%w: %s at %02d:%02d", ErrInvalidJob, job.ID, job.Hour, job.Minute)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.jobs[job.ID]; ok {
		if old.cancel != nil {
			old.cancel()
		}
	} else {
		d.order = append(d.order, job.ID)
	}
	e := &entry{job: job}
	d.jobs[job.ID] = e
	if d.running {
		d.spawn(e)
	}
	return nil
}

// Cancel removes a job and reports whether it existed.
func (d *Daily) Cancel(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.jobs[id]
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(d.jobs, id)
	for i, name := range d.order {
		if name == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

// Jobs lists registered jobs in registration order.
func (d *Daily) Jobs() []ports.JobInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]ports.JobInfo, 0, len(d.order))
	for _, id := range d.order {
		e := d.jobs[id]
		info := ports.JobInfo{ID: e.job.ID, Name: e.job.Name}
		if d.running && e.next != nil {
			next := *e.next
			info.NextRun = &next
		}
		out = append(out, info)
	}
	return out
}

// Start launches one loop per job. Starting twice is a no-op.
func (d *Daily) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}
	d.base, d.stop = context.WithCancel(ctx)
	d.wg = &sync.WaitGroup{}
	d.running = true
	for _, id := range d.order {
		d.spawn(d.jobs[id])
	}
	d.logger.Info("scheduler started", zap.Int("jobs", len(d.order)), zap.String("location", d.loc.String()))
	return nil
}

// Stop cancels every loop and waits for in-flight jobs until ctx expires.
func (d *Daily) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.stop()
	for _, e := range d.jobs {
		e.cancel = nil
		e.next = nil
	}
	wg := d.wg
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

// Running reports whether Start was called without a matching Stop.
func (d *Daily) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// spawn must be called with d.mu held.
func (d *Daily) spawn(e *entry) {
	ctx, cancel := context.WithCancel(d.base)
	e.cancel = cancel
	d.wg.Add(1)
	go d.loop(ctx, d.wg, e)
}

func (d *Daily) loop(ctx context.Context, wg *sync.WaitGroup, e *entry) {
	defer wg.Done()
	log := d.logger.With(zap.String("job", e.job.ID))

	var last time.Time
	for ctx.Err() == nil {
		next := NextFire(d.now(), e.job.Hour, e.job.Minute, d.loc)
		// A timer may wake slightly early; never fire the same slot twice.
		if !last.IsZero() && !next.After(last) {
			next = NextFire(last, e.job.Hour, e.job.Minute, d.loc)
		}
		d.setNext(e, next)
		log.Debug("next run scheduled", zap.Time("at", next))

		timer := d.newTimer(next.Sub(d.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}

		last = next
		d.fire(ctx, log, e.job, next)
	}
}

func (d *Daily) fire(ctx context.Context, log *zap.Logger, job ports.Job, at time.Time) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
		}
	}()
	job.Run(ctx, at)
}

func (d *Daily) setNext(e *entry, next time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e.next = &next
}

// NextFire returns the first instant strictly after now at hour:minute in loc.
// On days where that wall time does not exist, the normalized instant is used.
func NextFire(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	for day := 1; !candidate.After(local); day++ {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+day, hour, minute, 0, 0, loc)
	}
	return candidate
}
