package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"MediMind/internal/domain"
	"MediMind/internal/ports"
)

// MemoryRepository keeps everything in process memory. It backs the "memory"
// driver and tests; contents are lost on restart.
type MemoryRepository struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	prescriptions []domain.Prescription
	schedules     []domain.MedicineSchedule
}

var _ ports.Store = (*MemoryRepository)(nil)

// NewMemoryRepository builds an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: map[string]domain.User{}}
}

// AddUser registers an account. An empty ID gets a generated one.
func (r *MemoryRepository) AddUser(user domain.User) domain.User {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return user
}

// FindUser implements ports.UserDirectory.
func (r *MemoryRepository) FindUser(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

// CreatePrescription stores a copy of p and assigns its ID.
func (r *MemoryRepository) CreatePrescription(_ context.Context, p *domain.Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uuid.NewString()
	r.prescriptions = append(r.prescriptions, clonePrescription(*p))
	return nil
}

// ListPrescriptionsByUser returns prescriptions in insertion order.
func (r *MemoryRepository) ListPrescriptionsByUser(_ context.Context, userID string) ([]domain.Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Prescription{}
	for _, p := range r.prescriptions {
		if p.UserID == userID {
			out = append(out, clonePrescription(p))
		}
	}
	return out, nil
}

// CreateSchedule stores a copy of s and assigns its ID.
func (r *MemoryRepository) CreateSchedule(_ context.Context, s *domain.MedicineSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = uuid.NewString()
	r.schedules = append(r.schedules, cloneSchedule(*s))
	return nil
}

// ListSchedulesByUser returns every schedule of userID in insertion order.
func (r *MemoryRepository) ListSchedulesByUser(_ context.Context, userID string) ([]domain.MedicineSchedule, error) {
	return r.filter(func(s domain.MedicineSchedule) bool { return s.UserID == userID }), nil
}

// ListDueSchedules returns enabled schedules containing period.
func (r *MemoryRepository) ListDueSchedules(_ context.Context, period domain.Timing) ([]domain.MedicineSchedule, error) {
	return r.filter(func(s domain.MedicineSchedule) bool { return s.Enabled && s.HasTiming(period) }), nil
}

// SetScheduleEnabled updates the enabled flag.
func (r *MemoryRepository) SetScheduleEnabled(_ context.Context, id string, enabled bool) error {
	return r.update(id, func(s *domain.MedicineSchedule) { s.Enabled = enabled })
}

// MarkReminderSent records the last delivery time.
func (r *MemoryRepository) MarkReminderSent(_ context.Context, id string, at time.Time) error {
	at = at.UTC()
	return r.update(id, func(s *domain.MedicineSchedule) { s.LastReminderSent = &at })
}

// DeleteSchedule removes a schedule.
func (r *MemoryRepository) DeleteSchedule(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	r.schedules = slices.Delete(r.schedules, i, i+1)
	return nil
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(context.Context) error { return nil }

// Close is a no-op.
func (r *MemoryRepository) Close(context.Context) error { return nil }

func (r *MemoryRepository) filter(keep func(domain.MedicineSchedule) bool) []domain.MedicineSchedule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.MedicineSchedule{}
	for _, s := range r.schedules {
		if keep(s) {
			out = append(out, cloneSchedule(s))
		}
	}
	return out
}

func (r *MemoryRepository) update(id string, mutate func(*domain.MedicineSchedule)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	mutate(&r.schedules[i])
	return nil
}

func (r *MemoryRepository) indexOf(id string) int {
	return slices.IndexFunc(r.schedules, func(s domain.MedicineSchedule) bool { return s.ID == id })
}

func cloneSchedule(s domain.MedicineSchedule) domain.MedicineSchedule {
	s.Timings = slices.Clone(s.Timings)
	if s.LastReminderSent != nil {
		at := *s.LastReminderSent
		s.LastReminderSent = &at
	}
	return s
}

func clonePrescription(p domain.Prescription) domain.Prescription {
	medicines := make([]domain.MedicineRecord, len(p.Medicines))
	for i, m := range p.Medicines {
		m.Timings = slices.Clone(m.Timings)
		medicines[i] = m
	}
	p.Medicines = medicines
	return p
}
