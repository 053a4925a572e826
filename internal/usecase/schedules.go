package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"MediMind/internal/domain"
	"MediMind/internal/ports"
)

// Schedules exposes listing and management of persisted schedules and prescriptions.
type Schedules struct {
	schedules     ports.ScheduleRepository
	prescriptions ports.PrescriptionRepository
	logger        *zap.Logger
}

// NewSchedules wires the management use case.
func NewSchedules(schedules ports.ScheduleRepository, prescriptions ports.PrescriptionRepository, logger *zap.Logger) *Schedules {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Schedules{schedules: schedules, prescriptions: prescriptions, logger: logger}
}

// ListSchedules returns every schedule owned by userID, enabled or not.
func (s *Schedules) ListSchedules(ctx context.Context, userID string) ([]domain.MedicineSchedule, error) {
	items, err := s.schedules.ListSchedulesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w: %w", domain.ErrPersistence, err)
	}
	if items == nil {
		items = []domain.MedicineSchedule{}
	}
	return items, nil
}

// ListPrescriptions returns every prescription uploaded by userID.
func (s *Schedules) ListPrescriptions(ctx context.Context, userID string) ([]domain.Prescription, error) {
	items, err := s.prescriptions.ListPrescriptionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w: %w", domain.ErrPersistence, err)
	}
	if items == nil {
		items = []domain.Prescription{}
	}
	return items, nil
}

// Toggle flips the enabled flag of one schedule.
func (s *Schedules) Toggle(ctx context.Context, scheduleID string, enabled bool) error {
	if strings.TrimSpace(scheduleID) == "" {
		return fmt.Errorf("%w: schedule id is required", domain.ErrInvalidInput)
	}
	if err := s.schedules.SetScheduleEnabled(ctx, scheduleID, enabled); err != nil {
		return wrapScheduleErr("toggle schedule", scheduleID, err)
	}
	s.logger.Info("schedule toggled", zap.String("schedule_id", scheduleID), zap.Bool("enabled", enabled))
	return nil
}

// Delete removes one schedule permanently.
func (s *Schedules) Delete(ctx context.Context, scheduleID string) error {
	if strings.TrimSpace(scheduleID) == "" {
		return fmt.Errorf("%w: schedule id is required", domain.ErrInvalidInput)
	}
	if err := s.schedules.DeleteSchedule(ctx, scheduleID); err != nil {
		return wrapScheduleErr("delete schedule", scheduleID, err)
	}
	s.logger.Info("schedule deleted", zap.String("schedule_id", scheduleID))
	return nil
}

func wrapScheduleErr(op, id string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", op, id, domain.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w: %w", op, id, domain.ErrPersistence, err)
}
