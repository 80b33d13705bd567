// Package scheduler runs registered billing jobs on wall-clock schedules.
// It is deliberately in-process: jobs are idempotent guarded updates, so a
// missed or doubled tick is harmless and no external cron is needed.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cyberrange-billing-be/internal/pkg/logger"
)

// Job is a unit of scheduled work. It must tolerate being invoked again
// over the same data.
type Job func(ctx context.Context) error

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the first instant strictly after t at which the job
	// should run.
	Next(t time.Time) time.Time
	String() string
}

// Every runs at a fixed interval.
type Every time.Duration

func (e Every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

func (e Every) String() string {
	return fmt.Sprintf("every %s", time.Duration(e))
}

// DailyAt runs once per day at the given UTC time.
type DailyAt struct {
	Hour   int
	Minute int
}

func (d DailyAt) Next(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (d DailyAt) String() string {
	return fmt.Sprintf("daily at %02d:%02d UTC", d.Hour, d.Minute)
}

type scheduledJob struct {
	name     string
	schedule Schedule
	run      Job

	mu      sync.Mutex
	running bool
	nextRun time.Time
}

// Scheduler drives registered jobs from a single ticker goroutine.
type Scheduler struct {
	jobs   []*scheduledJob
	tick   time.Duration
	log    logger.ILogger
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

func NewScheduler(tick time.Duration, log logger.ILogger) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		tick:   tick,
		log:    log,
		stopCh: make(chan struct{}),
	}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(name string, schedule Schedule, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &scheduledJob{
		name:     name,
		schedule: schedule,
		run:      job,
	})
}

// Start launches the tick loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	now := time.Now().UTC()
	for _, j := range s.jobs {
		j.nextRun = j.schedule.Next(now)
		s.log.Info("scheduler", "Job registered", map[string]interface{}{
			"job":      j.name,
			"schedule": j.schedule.String(),
			"next_run": j.nextRun.Format(time.RFC3339),
		})
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.dispatch(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, now time.Time) {
	for _, j := range s.jobs {
		j.mu.Lock()
		due := !now.Before(j.nextRun)
		if due && !j.running {
			j.running = true
			j.nextRun = j.schedule.Next(now)
			j.mu.Unlock()

			s.wg.Add(1)
			go s.execute(ctx, j)
			continue
		}
		if due && j.running {
			// Previous run still in flight. Push the slot forward instead of
			// stacking a second invocation over the same rows.
			j.nextRun = j.schedule.Next(now)
			s.log.Warn("scheduler", "Job still running, skipping slot", map[string]interface{}{
				"job": j.name,
			})
		}
		j.mu.Unlock()
	}
}

func (s *Scheduler) execute(ctx context.Context, j *scheduledJob) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler", "Job panicked", map[string]interface{}{
				"job":   j.name,
				"panic": fmt.Sprintf("%v", r),
			})
		}
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	start := time.Now()
	s.log.Info("scheduler", "Job started", map[string]interface{}{"job": j.name})

	if err := j.run(ctx); err != nil {
		s.log.Error("scheduler", "Job failed", map[string]interface{}{
			"job":      j.name,
			"error":    err.Error(),
			"duration": time.Since(start).String(),
		})
		return
	}

	s.log.Info("scheduler", "Job finished", map[string]interface{}{
		"job":      j.name,
		"duration": time.Since(start).String(),
	})
}

// RunNow executes a registered job immediately, bypassing its schedule.
// Used by the manual trigger endpoint and by tests.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.name != name {
			continue
		}
		j.mu.Lock()
		if j.running {
			j.mu.Unlock()
			return fmt.Errorf("job %s is already running", name)
		}
		j.running = true
		j.mu.Unlock()

		defer func() {
			j.mu.Lock()
			j.running = false
			j.mu.Unlock()
		}()
		return j.run(ctx)
	}
	return fmt.Errorf("unknown job: %s", name)
}

// Stop halts the tick loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.log.Info("scheduler", "Scheduler stopped", nil)
}
