package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"MediMind/internal/ports"
)

// Trigger is one daily instant at which a dispatch run fires.
type Trigger struct {
	ID     string
	Name   string
	Hour   int
	Minute int
}

// SchedulerStatus reports the lifecycle state and upcoming runs.
type SchedulerStatus struct {
	Running bool            `json:"running"`
	Jobs    []ports.JobInfo `json:"jobs"`
}

// Scheduler wires the timer driver with the dispatch engine.
type Scheduler struct {
	driver     ports.Scheduler
	dispatcher *Dispatcher
	triggers   []Trigger
	logger     *zap.Logger
}

// NewScheduler returns a helper to start/stop the daily reminder checks.
func NewScheduler(driver ports.Scheduler, dispatcher *Dispatcher, triggers []Trigger, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{driver: driver, dispatcher: dispatcher, triggers: triggers, logger: logger}
}

// Start registers every trigger with the driver and starts it. Starting a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.dispatcher == nil {
		return nil
	}
	if s.driver.Running() {
		s.logger.Info("scheduler already running")
		return nil
	}

	for _, trigger := range s.triggers {
		job := ports.Job{
			ID:     trigger.ID,
			Name:   trigger.Name,
			Hour:   trigger.Hour,
			Minute: trigger.Minute,
			Run:    s.runJob(trigger.ID),
		}
		if err := s.driver.Register(job); err != nil {
			return fmt.Errorf("register trigger %s: %w", trigger.ID, err)
		}
	}

	if err := s.driver.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	s.logger.Info("scheduler started", zap.Int("triggers", len(s.triggers)))
	return nil
}

// Stop tears down the underlying driver. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil || !s.driver.Running() {
		return nil
	}
	if err := s.driver.Stop(ctx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// Status reports whether the driver runs and when each trigger fires next.
func (s *Scheduler) Status() SchedulerStatus {
	if s.driver == nil {
		return SchedulerStatus{Jobs: []ports.JobInfo{}}
	}
	jobs := s.driver.Jobs()
	if jobs == nil {
		jobs = []ports.JobInfo{}
	}
	return SchedulerStatus{Running: s.driver.Running(), Jobs: jobs}
}

// RunNow performs an on-demand dispatch run outside the trigger schedule.
func (s *Scheduler) RunNow(ctx context.Context) (RunReport, error) {
	if s.dispatcher == nil {
		return RunReport{}, fmt.Errorf("dispatcher is not configured")
	}
	return s.dispatcher.Run(ctx)
}

func (s *Scheduler) runJob(triggerID string) func(context.Context, time.Time) {
	return func(ctx context.Context, firedAt time.Time) {
		s.logger.Info("trigger fired", zap.String("trigger", triggerID), zap.Time("fired_at", firedAt))
		if _, err := s.dispatcher.Run(ctx); err != nil {
			s.logger.Error("reminder check failed", zap.String("trigger", triggerID), zap.Error(err))
		}
	}
}
