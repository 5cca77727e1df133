package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// JobFunc is one maintenance task. The context is cancelled when the
// runner stops.
type JobFunc func(ctx context.Context)

type job struct {
	name     string
	schedule Schedule
	fn       JobFunc
}

// Runner owns the timers for registered maintenance jobs. One-shot "at"
// schedules run once; "every" and "cron" schedules re-arm after each run.
type Runner struct {
	mu      sync.Mutex
	jobs    map[string]*job
	timers  map[string]*time.Timer
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRunner creates an empty runner
func NewRunner() *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		jobs:   make(map[string]*job),
		timers: make(map[string]*time.Timer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a named job. Registering before Start is allowed; after
// Start the job is armed immediately.
func (r *Runner) Register(name string, schedule Schedule, fn JobFunc) error {
	if name == "" {
		return fmt.Errorf("maintenance: job name is required")
	}
	if _, err := CalculateNextRun(schedule); err != nil {
		return fmt.Errorf("maintenance: invalid schedule for %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return fmt.Errorf("maintenance: runner is stopped")
	}
	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("maintenance: job %s already registered", name)
	}

	j := &job{name: name, schedule: schedule, fn: fn}
	r.jobs[name] = j

	if r.started {
		r.armLocked(j)
	}
	return nil
}

// Start arms every registered job
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started || r.stopped {
		return
	}
	r.started = true

	for _, j := range r.jobs {
		r.armLocked(j)
	}

	log.Info().Int("jobs", len(r.jobs)).Msg("Maintenance runner started")
}

// Stop cancels all timers and in-flight jobs
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	for name, timer := range r.timers {
		timer.Stop()
		delete(r.timers, name)
	}
	r.mu.Unlock()

	r.cancel()
	log.Info().Msg("Maintenance runner stopped")
}

// Jobs returns the registered job names
func (r *Runner) Jobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	return names
}

func (r *Runner) armLocked(j *job) {
	nextMs, err := CalculateNextRun(j.schedule)
	if err != nil {
		// Validated at registration; only an "at" in the past gets here.
		log.Warn().Err(err).Str("job", j.name).Msg("Job cannot be scheduled")
		return
	}

	delay := time.Until(time.UnixMilli(nextMs))
	if delay < 0 {
		delay = 0
	}

	r.timers[j.name] = time.AfterFunc(delay, func() {
		r.runJob(j)
	})
}

func (r *Runner) runJob(j *job) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	started := time.Now()
	j.fn(r.ctx)

	log.Debug().
		Str("job", j.name).
		Dur("duration", time.Since(started)).
		Msg("Maintenance job ran")

	if j.schedule.Kind == ScheduleKindAt {
		r.mu.Lock()
		delete(r.timers, j.name)
		delete(r.jobs, j.name)
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	if !r.stopped {
		r.armLocked(j)
	}
	r.mu.Unlock()
}
