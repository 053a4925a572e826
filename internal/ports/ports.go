package ports

import (
	"context"
	"time"

	"MediMind/internal/domain"
)

// TextExtractor turns a prescription image into raw text (OCR).
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte, filename string) (string, error)
}

// StructuredExtractor asks an inference provider to structure raw prescription text.
// The reply is meant to be a JSON array but nothing guarantees it.
type StructuredExtractor interface {
	Extract(ctx context.Context, text string) (string, error)
}

// PrescriptionRepository persists uploaded prescriptions.
type PrescriptionRepository interface {
	CreatePrescription(ctx context.Context, p *domain.Prescription) error
	ListPrescriptionsByUser(ctx context.Context, userID string) ([]domain.Prescription, error)
}

// ScheduleRepository persists medicine schedules. Every method touches a single document.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, s *domain.MedicineSchedule) error
	ListSchedulesByUser(ctx context.Context, userID string) ([]domain.MedicineSchedule, error)
	// ListDueSchedules returns enabled schedules whose timings contain period.
	ListDueSchedules(ctx context.Context, period domain.Timing) ([]domain.MedicineSchedule, error)
	SetScheduleEnabled(ctx context.Context, id string, enabled bool) error
	DeleteSchedule(ctx context.Context, id string) error
	MarkReminderSent(ctx context.Context, id string, at time.Time) error
}

// UserDirectory resolves account contact data.
type UserDirectory interface {
	FindUser(ctx context.Context, id string) (domain.User, error)
}

// Store bundles every repository a backing database provides.
type Store interface {
	PrescriptionRepository
	ScheduleRepository
	UserDirectory
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Notifier delivers one reminder. A nil error means the transport accepted it.
type Notifier interface {
	SendReminder(ctx context.Context, reminder domain.Reminder) error
}

// Clock abstracts wall-clock reads for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Job is a callback fired once a day at Hour:Minute in the scheduler's location.
type Job struct {
	ID     string
	Name   string
	Hour   int
	Minute int
	Run    func(ctx context.Context, firedAt time.Time)
}

// JobInfo describes a registered job. NextRun is nil while the scheduler is stopped.
type JobInfo struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	NextRun *time.Time `json:"next_run"`
}

// Scheduler owns the timers that fire registered jobs.
type Scheduler interface {
	Register(job Job) error
	Cancel(id string) bool
	Jobs() []JobInfo
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
}
