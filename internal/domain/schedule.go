package domain

import (
	"slices"
	"strings"
	"time"
)

// Placeholder values used when a field could not be extracted.
const (
	NotAvailable           = "N/A"
	UnknownMedicine        = "Unknown"
	UnknownMedicineVerbose = "Unknown Medicine"
)

// MedicineRecord is a single normalized medicine line extracted from a prescription.
type MedicineRecord struct {
	MedicineName string   `json:"medicine_name"`
	Dosage       string   `json:"dosage"`
	Quantity     string   `json:"quantity"`
	Frequency    string   `json:"frequency"`
	Timings      []Timing `json:"timings"`
}

// IsPlaceholderName reports whether name is empty or one of the placeholder values.
func IsPlaceholderName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return true
	}
	for _, sentinel := range []string{NotAvailable, UnknownMedicine, UnknownMedicineVerbose} {
		if name == sentinel {
			return true
		}
	}
	return false
}

// Prescription is the persisted result of one upload.
type Prescription struct {
	ID           string           `json:"_id"`
	UserID       string           `json:"user_id"`
	RawText      string           `json:"raw_text"`
	RawReply     string           `json:"structured_data"`
	Medicines    []MedicineRecord `json:"medicines"`
	FallbackUsed bool             `json:"fallback_used"`
	CreatedAt    time.Time        `json:"created_at"`
}

// MedicineSchedule drives reminders for one medicine of one user.
type MedicineSchedule struct {
	ID               string     `json:"_id"`
	UserID           string     `json:"user_id"`
	PrescriptionID   string     `json:"prescription_id"`
	MedicineName     string     `json:"medicine_name"`
	Dosage           string     `json:"dosage"`
	Frequency        string     `json:"frequency"`
	Timings          []Timing   `json:"timings"`
	Enabled          bool       `json:"enabled"`
	CreatedAt        time.Time  `json:"created_at"`
	LastReminderSent *time.Time `json:"last_reminder_sent,omitempty"`
}

// NewSchedule builds an enabled schedule for record, owned by userID.
func NewSchedule(userID, prescriptionID string, record MedicineRecord, now time.Time) MedicineSchedule {
	return MedicineSchedule{
		UserID:         userID,
		PrescriptionID: prescriptionID,
		MedicineName:   record.MedicineName,
		Dosage:         record.Dosage,
		Frequency:      record.Frequency,
		Timings:        slices.Clone(record.Timings),
		Enabled:        true,
		CreatedAt:      now.UTC(),
	}
}

// HasTiming reports whether the schedule fires during period.
func (s MedicineSchedule) HasTiming(period Timing) bool {
	return slices.Contains(s.Timings, period)
}

// User is the subset of an account the reminder flow needs.
type User struct {
	ID    string
	Email string
}

// Reminder is a single notification due for a schedule.
type Reminder struct {
	ScheduleID   string
	UserID       string
	Recipient    string
	MedicineName string
	Dosage       string
	Period       Timing
}
