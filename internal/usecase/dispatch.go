package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"MediMind/internal/domain"
	"MediMind/internal/ports"
)

// DispatcherDeps wires the collaborators of a dispatch run.
type DispatcherDeps struct {
	Schedules ports.ScheduleRepository
	Users     ports.UserDirectory
	Notifier  ports.Notifier
	Clock     ports.Clock
	// Location is the wall-clock zone periods are resolved in.
	Location *time.Location
	Logger   *zap.Logger
}

// Dispatcher sends reminders for every schedule due in the current period.
// It keeps no state between runs; a second run in the same period sends again.
type Dispatcher struct {
	schedules ports.ScheduleRepository
	users     ports.UserDirectory
	notifier  ports.Notifier
	clock     ports.Clock
	location  *time.Location
	logger    *zap.Logger
}

// RunReport summarizes one dispatch run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	Period     domain.Timing `json:"period"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Matched    int           `json:"matched"`
	Sent       int           `json:"sent"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSkipped
	outcomeFailed
)

// NewDispatcher constructs the dispatch engine.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Dispatcher{
		schedules: deps.Schedules,
		users:     deps.Users,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		location:  deps.Location,
		logger:    deps.Logger,
	}
}

// Run resolves the current period, then notifies every enabled schedule due in
// it. Failures of individual schedules are logged and counted; only a failure
// to list due schedules is returned.
func (d *Dispatcher) Run(ctx context.Context) (RunReport, error) {
	now := d.clock.Now()
	report := RunReport{
		RunID:     uuid.NewString(),
		Period:    domain.PeriodAt(now.In(d.location)),
		StartedAt: now.UTC(),
	}
	log := d.logger.With(zap.String("run_id", report.RunID), zap.String("period", report.Period.String()))
	log.Info("reminder check started")

	if d.schedules == nil || d.users == nil || d.notifier == nil {
		report.FinishedAt = d.clock.Now().UTC()
		return report, fmt.Errorf("dispatcher is not fully configured")
	}

	due, err := d.schedules.ListDueSchedules(ctx, report.Period)
	if err != nil {
		log.Error("list due schedules", zap.Error(err))
		report.FinishedAt = d.clock.Now().UTC()
		return report, fmt.Errorf("list due schedules: %w: %w", domain.ErrPersistence, err)
	}
	report.Matched = len(due)
	log.Info("due schedules found", zap.Int("count", len(due)))

	for _, schedule := range due {
		switch d.dispatchOne(ctx, log, schedule, report.Period, report.StartedAt) {
		case outcomeSent:
			report.Sent++
		case outcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	report.FinishedAt = d.clock.Now().UTC()
	log.Info("reminder check completed",
		zap.Int("matched", report.Matched),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, runLog *zap.Logger, schedule domain.MedicineSchedule, period domain.Timing, sentAt time.Time) (result outcome) {
	log := runLog.With(zap.String("schedule_id", schedule.ID), zap.String("user_id", schedule.UserID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("schedule processing panicked", zap.Any("panic", r))
			result = outcomeFailed
		}
	}()

	user, err := d.users.FindUser(ctx, schedule.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("skipping schedule: user not found")
			return outcomeSkipped
		}
		log.Error("resolve user", zap.Error(err))
		return outcomeFailed
	}
	if strings.TrimSpace(user.Email) == "" {
		log.Warn("skipping schedule: user has no email")
		return outcomeSkipped
	}

	reminder := domain.Reminder{
		ScheduleID:   schedule.ID,
		UserID:       schedule.UserID,
		Recipient:    user.Email,
		MedicineName: schedule.MedicineName,
		Dosage:       schedule.Dosage,
		Period:       period,
	}
	if err := d.notifier.SendReminder(ctx, reminder); err != nil {
		log.Warn("reminder not delivered", zap.String("medicine_name", schedule.MedicineName), zap.Error(err))
		return outcomeFailed
	}

	if err := d.schedules.MarkReminderSent(ctx, schedule.ID, sentAt); err != nil {
		log.Error("record reminder sent", zap.Error(err))
		return outcomeFailed
	}

	log.Info("reminder sent", zap.String("medicine_name", schedule.MedicineName), zap.String("recipient", user.Email))
	return outcomeSent
}
