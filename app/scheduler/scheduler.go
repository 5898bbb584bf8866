// Package scheduler drives the recurring pipeline actions. Ingestion
// sweeps, queue drains and the maintenance sweep run on independent
// intervals inside one control loop; the durable store carries all state,
// so a missed tick only delays work, never loses it.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one recurring action. At most one instance of a job runs at a
// time: a tick that arrives while the previous run is still going is
// skipped.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)

	nextDueAt time.Time
	running   bool
}

type Scheduler struct {
	tick   time.Duration
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs []*Job
}

func NewScheduler(tick time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tick:   tick,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers a job. The first run happens on the next tick.
func (s *Scheduler) AddJob(name string, interval time.Duration, run func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &Job{Name: name, Interval: interval, Run: run})
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		s.RunDue()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.RunDue()
			}
		}
	}()
}

// Stop cancels the loop and waits for in-flight job runs to return. Rows
// claimed by an interrupted run are recovered by the maintenance sweep.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// RunDue starts every job whose interval has elapsed. Exposed so the loop
// can be driven directly with a simulated clock.
func (s *Scheduler) RunDue() {
	now := s.now()

	s.mu.Lock()
	var due []*Job
	for _, job := range s.jobs {
		if job.running || now.Before(job.nextDueAt) {
			continue
		}
		job.running = true
		job.nextDueAt = now.Add(job.Interval)
		due = append(due, job)
	}
	s.mu.Unlock()

	for _, job := range due {
		s.wg.Add(1)
		go func(job *Job) {
			defer s.wg.Done()
			defer s.finish(job)

			started := s.now()
			job.Run(s.ctx)
			slog.Debug("Job finished", "job", job.Name, "duration", s.now().Sub(started).String())
		}(job)
	}
}

func (s *Scheduler) finish(job *Job) {
	s.mu.Lock()
	job.running = false
	s.mu.Unlock()
}
