package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Starter is the interface the scheduler uses to launch executions.
// Satisfied by the engine (avoids import cycle).
type Starter interface {
	Start(ctx context.Context, templateID, ownerID string, triggerData map[string]any) (string, error)
}

// Job describes a recurring template start.
type Job struct {
	ID             string         `json:"id"`
	TemplateID     string         `json:"template_id"`
	OwnerID        string         `json:"owner_id"`
	CronExpression string         `json:"cron_expression"`
	TriggerData    map[string]any `json:"trigger_data,omitempty"`
	Enabled        bool           `json:"enabled"`

	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// Scheduler fires due jobs against the engine on a ticker loop.
type Scheduler struct {
	starter  Starter
	parser   cron.Parser
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	jobsMu sync.Mutex
	jobs   map[string]*Job

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently firing (dedup)
}

// NewScheduler creates a Scheduler with a 60s tick interval.
func NewScheduler(starter Starter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		starter:  starter,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		interval: 60 * time.Second,
		logger:   logger,
		jobs:     make(map[string]*Job),
		inflight: make(map[string]struct{}),
	}
}

// SetInterval overrides the tick interval. Call before Start.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// AddJob validates the cron expression, computes the job's first run time
// and registers it. Re-adding an existing id replaces the job.
func (s *Scheduler) AddJob(job Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	next, err := s.CalculateNextRun(job.CronExpression, time.Now().UTC())
	if err != nil {
		return err
	}
	job.NextRunAt = &next
	job.Enabled = true

	s.jobsMu.Lock()
	s.jobs[job.ID] = &job
	s.jobsMu.Unlock()
	return nil
}

// RemoveJob deletes a job. Removing an unknown id is a no-op.
func (s *Scheduler) RemoveJob(id string) {
	s.jobsMu.Lock()
	delete(s.jobs, id)
	s.jobsMu.Unlock()
}

// List returns a snapshot of all registered jobs.
func (s *Scheduler) List() []*Job {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		cp := *job
		out = append(out, &cp)
	}
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires every enabled job whose next run time has arrived.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	s.jobsMu.Lock()
	due := make([]*Job, 0)
	for _, job := range s.jobs {
		if job.Enabled && (job.NextRunAt == nil || !job.NextRunAt.After(now)) {
			due = append(due, job)
		}
	}
	s.jobsMu.Unlock()

	for _, job := range due {
		if !s.tryAcquire(job.ID) {
			continue // already firing (dedup)
		}
		if err := s.runJob(ctx, job, now); err != nil {
			s.logger.Error("failed to run scheduled job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		s.release(job.ID)
	}
}

// runJob starts one execution for the job and updates its timestamps.
func (s *Scheduler) runJob(ctx context.Context, job *Job, now time.Time) error {
	s.logger.Info("running scheduled job",
		slog.String("job_id", job.ID),
		slog.String("template_id", job.TemplateID),
	)

	execID, err := s.starter.Start(ctx, job.TemplateID, job.OwnerID, job.TriggerData)
	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("scheduled job start failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("scheduled execution started",
			slog.String("job_id", job.ID),
			slog.String("execution_id", execID),
		)
	}

	next, nerr := s.CalculateNextRun(job.CronExpression, now)
	if nerr != nil {
		return fmt.Errorf("calculate next run for job %q: %w", job.ID, nerr)
	}

	s.jobsMu.Lock()
	if current, ok := s.jobs[job.ID]; ok {
		t := now
		current.LastRunAt = &t
		current.NextRunAt = &next
		current.LastRunStatus = status
	}
	s.jobsMu.Unlock()
	return err
}

// tryAcquire returns true and marks the job as in-flight if it is not already firing.
func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

func (s *Scheduler) release(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
