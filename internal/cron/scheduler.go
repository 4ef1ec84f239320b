package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// DefaultJobTimeout bounds a single run.
const DefaultJobTimeout = 30 * time.Minute

type job struct {
	name    string
	fn      JobFunc
	entry   cron.EntryID
	timeout time.Duration
}

// Scheduler runs named jobs on cron schedules. A job never overlaps
// itself: a tick that arrives while the previous run is active is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger

	mu      sync.RWMutex
	jobs    map[string]*job
	running bool

	executing sync.Map // name -> start time
	wg        sync.WaitGroup

	// ctx is cancelled on Stop so running jobs see shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler in loc; nil means time.Local.
func NewScheduler(logger zerolog.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		logger: logger,
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// parser accepts 5-field, 6-field and descriptor ("@every 6h") schedules.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates a schedule expression.
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, &InvalidScheduleError{Schedule: spec, Message: "empty schedule"}
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, &InvalidScheduleError{Schedule: spec, Message: err.Error()}
	}
	return sched, nil
}

// Add registers a job. timeout <= 0 means DefaultJobTimeout.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, fn JobFunc) error {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, name)
	}

	j := &job{name: name, fn: fn, timeout: timeout}
	j.entry = s.cron.Schedule(sched, cron.FuncJob(func() { s.execute(j) }))
	s.jobs[name] = j

	s.logger.Debug().Str("job_name", name).Str("schedule", spec).Msg("job registered")
	return nil
}

// Start begins firing jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop stops firing, cancels running jobs and waits for them or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.cron.Stop()
		s.running = false
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs a job immediately in the caller's goroutine, honoring the
// no-overlap rule. It reports false when the job was already running.
func (s *Scheduler) RunNow(name string) (bool, error) {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.run(j)
}

// NextRun returns when the job fires next. It is only known once the
// scheduler has started.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(j.entry)
	if entry.ID == 0 || entry.Next.IsZero() {
		return time.Time{}, false
	}
	return entry.Next, true
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Scheduler) execute(j *job) {
	if _, err := s.run(j); err != nil {
		s.logger.Error().Err(err).Str("job_name", j.name).Msg("job execution failed")
	}
}

func (s *Scheduler) run(j *job) (bool, error) {
	start := time.Now()
	if prev, loaded := s.executing.LoadOrStore(j.name, start); loaded {
		s.logger.Warn().
			Str("job_name", j.name).
			Time("previous_start", prev.(time.Time)).
			Msg("skipping overlapping execution, previous run still active")
		return false, nil
	}
	defer s.executing.Delete(j.name)

	s.wg.Add(1)
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, j.timeout)
	defer cancel()

	err := j.fn(ctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		err = fmt.Errorf("job %s timed out after %s: %w", j.name, j.timeout, err)
	}
	if err == nil {
		s.logger.Info().Str("job_name", j.name).Dur("duration", time.Since(start)).Msg("job execution completed")
	}
	return true, err
}
