package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"MediMind/internal/domain"
	"MediMind/internal/ports"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type fakeStore struct {
	mu            sync.Mutex
	seq           int
	users         map[string]domain.User
	prescriptions []domain.Prescription
	schedules     []domain.MedicineSchedule
	failCreateAt  int // 1-based index of the CreateSchedule call to fail; 0 disables
	createCalls   int
	failMark      error
	failList      error
	marked        map[string][]time.Time
}

func newFakeStore(users ...domain.User) *fakeStore {
	s := &fakeStore{users: map[string]domain.User{}, marked: map[string][]time.Time{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *fakeStore) FindUser(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) CreatePrescription(_ context.Context, p *domain.Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID("rx")
	s.prescriptions = append(s.prescriptions, *p)
	return nil
}

func (s *fakeStore) ListPrescriptionsByUser(_ context.Context, userID string) ([]domain.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Prescription
	for _, p := range s.prescriptions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateSchedule(_ context.Context, sc *domain.MedicineSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.failCreateAt != 0 && s.createCalls == s.failCreateAt {
		return errors.New("write conflict")
	}
	sc.ID = s.nextID("sch")
	s.schedules = append(s.schedules, *sc)
	return nil
}

func (s *fakeStore) ListSchedulesByUser(_ context.Context, userID string) ([]domain.MedicineSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MedicineSchedule
	for _, sc := range s.schedules {
		if sc.UserID == userID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *fakeStore) ListDueSchedules(_ context.Context, period domain.Timing) ([]domain.MedicineSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		return nil, s.failList
	}
	var out []domain.MedicineSchedule
	for _, sc := range s.schedules {
		if sc.Enabled && slices.Contains(sc.Timings, period) {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *fakeStore) find(id string) int {
	for i, sc := range s.schedules {
		if sc.ID == id {
			return i
		}
	}
	return -1
}

func (s *fakeStore) SetScheduleEnabled(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	s.schedules[i].Enabled = enabled
	return nil
}

func (s *fakeStore) DeleteSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	s.schedules = append(s.schedules[:i], s.schedules[i+1:]...)
	return nil
}

func (s *fakeStore) MarkReminderSent(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMark != nil {
		return s.failMark
	}
	i := s.find(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	s.schedules[i].LastReminderSent = &at
	s.marked[id] = append(s.marked[id], at)
	return nil
}

func (s *fakeStore) addSchedule(sc domain.MedicineSchedule) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc.ID = s.nextID("sch")
	s.schedules = append(s.schedules, sc)
	return sc.ID
}

func (s *fakeStore) schedule(id string) domain.MedicineSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedules[s.find(id)]
}

type fakeOCR struct {
	text string
	err  error
}

func (f fakeOCR) ExtractText(context.Context, []byte, string) (string, error) {
	return f.text, f.err
}

type fakeExtractor struct {
	reply string
	err   error
	got   string
}

func (f *fakeExtractor) Extract(_ context.Context, text string) (string, error) {
	f.got = text
	return f.reply, f.err
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []domain.Reminder
	failFor map[string]error
	panicOn string
}

func (n *fakeNotifier) SendReminder(_ context.Context, r domain.Reminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if r.MedicineName == n.panicOn && n.panicOn != "" {
		panic("template exploded")
	}
	if err := n.failFor[r.MedicineName]; err != nil {
		return err
	}
	n.sent = append(n.sent, r)
	return nil
}

type fakeDriver struct {
	jobs     map[string]ports.Job
	order    []string
	running  bool
	starts   int
	stops    int
	startErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{jobs: map[string]ports.Job{}}
}

func (d *fakeDriver) Register(job ports.Job) error {
	if _, ok := d.jobs[job.ID]; !ok {
		d.order = append(d.order, job.ID)
	}
	d.jobs[job.ID] = job
	return nil
}

func (d *fakeDriver) Cancel(id string) bool {
	_, ok := d.jobs[id]
	delete(d.jobs, id)
	return ok
}

func (d *fakeDriver) Jobs() []ports.JobInfo {
	var out []ports.JobInfo
	for _, id := range d.order {
		if job, ok := d.jobs[id]; ok {
			out = append(out, ports.JobInfo{ID: job.ID, Name: job.Name})
		}
	}
	return out
}

func (d *fakeDriver) Start(context.Context) error {
	if d.startErr != nil {
		return d.startErr
	}
	d.starts++
	d.running = true
	return nil
}

func (d *fakeDriver) Stop(context.Context) error {
	d.stops++
	d.running = false
	return nil
}

func (d *fakeDriver) Running() bool { return d.running }
