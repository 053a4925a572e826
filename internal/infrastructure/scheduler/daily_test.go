package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"MediMind/internal/ports"
)

type fakeTimer struct {
	ch      chan time.Time
	after   time.Duration
	stopped bool
}

func (f *fakeTimer) C() <-chan time.Time { return f.ch }
func (f *fakeTimer) Stop() bool {
	f.stopped = true
	return true
}

type timerFactory struct {
	timers chan *fakeTimer
}

func newTimerFactory() *timerFactory {
	return &timerFactory{timers: make(chan *fakeTimer, 16)}
}

func (f *timerFactory) New(d time.Duration) Timer {
	t := &fakeTimer{ch: make(chan time.Time, 1), after: d}
	f.timers <- t
	return t
}

func (f *timerFactory) next(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case timer := <-f.timers:
		return timer
	case <-time.After(2 * time.Second):
		t.Fatal("timer was not armed")
		return nil
	}
}

func TestNextFire(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	cases := []struct {
		name   string
		now    time.Time
		hour   int
		minute int
		want   time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2025, time.June, 2, 7, 59, 0, 0, time.UTC),
			hour: 8,
			want: time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "exact instant rolls to tomorrow",
			now:  time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC),
			hour: 8,
			want: time.Date(2025, time.June, 3, 8, 0, 0, 0, time.UTC),
		},
		{
			name:   "month boundary",
			now:    time.Date(2025, time.June, 30, 22, 0, 0, 0, time.UTC),
			hour:   21,
			minute: 30,
			want:   time.Date(2025, time.July, 1, 21, 30, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := NextFire(tc.now, tc.hour, tc.minute, time.UTC)
			if !got.Equal(tc.want) {
				t.Fatalf("NextFire = %v, want %v", got, tc.want)
			}
		})
	}

	t.Run("spring forward keeps wall clock", func(t *testing.T) {
		t.Parallel()
		// Clocks jump from 02:00 to 03:00 on 2025-03-30 in Berlin.
		now := time.Date(2025, time.March, 29, 9, 0, 0, 0, berlin)
		got := NextFire(now, 8, 0, berlin)
		want := time.Date(2025, time.March, 30, 8, 0, 0, 0, berlin)
		if !got.Equal(want) {
			t.Fatalf("NextFire = %v, want %v", got, want)
		}
		if got.Sub(now) != 22*time.Hour {
			t.Fatalf("expected a 22h gap across the transition, got %v", got.Sub(now))
		}
	})
}

func TestRegisterValidatesJobs(t *testing.T) {
	t.Parallel()

	d := NewDaily(time.UTC)
	noop := func(context.Context, time.Time) {}
	bad := []ports.Job{
		{ID: "", Hour: 8, Run: noop},
		{ID: "x", Hour: 24, Run: noop},
		{ID: "x", Hour: 8, Minute: 60, Run: noop},
		{ID: "x", Hour: 8},
	}
	for _, job := range bad {
		if err := d.Register(job); !errors.Is(err, ErrInvalidJob) {
			t.Fatalf("Register(%+v) = %v, want ErrInvalidJob", job, err)
		}
	}
}

func TestJobsAndCancel(t *testing.T) {
	t.Parallel()

	d := NewDaily(time.UTC)
	noop := func(context.Context, time.Time) {}
	for _, job := range []ports.Job{
		{ID: "morning", Name: "Morning", Hour: 8, Run: noop},
		{ID: "night", Name: "Night", Hour: 21, Run: noop},
	} {
		if err := d.Register(job); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	jobs := d.Jobs()
	if len(jobs) != 2 || jobs[0].ID != "morning" || jobs[1].ID != "night" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
	if jobs[0].NextRun != nil {
		t.Fatal("stopped scheduler must not report next runs")
	}

	if !d.Cancel("morning") {
		t.Fatal("Cancel should report an existing job")
	}
	if d.Cancel("morning") {
		t.Fatal("Cancel of a missing job should report false")
	}
	if jobs := d.Jobs(); len(jobs) != 1 || jobs[0].ID != "night" {
		t.Fatalf("unexpected jobs after cancel: %+v", jobs)
	}
}

func TestStartFiresJobAtScheduledTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.June, 2, 17, 0, 0, 0, time.UTC)
	timers := newTimerFactory()
	d := NewDaily(time.UTC, WithClock(func() time.Time { return now }), WithTimerFactory(timers.New))

	fired := make(chan time.Time, 4)
	if err := d.Register(ports.Job{ID: "evening", Hour: 18, Run: func(_ context.Context, at time.Time) {
		fired <- at
	}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	first := timers.next(t)
	if first.after != time.Hour {
		t.Fatalf("timer armed for %v, want 1h", first.after)
	}
	jobs := d.Jobs()
	want := time.Date(2025, time.June, 2, 18, 0, 0, 0, time.UTC)
	if jobs[0].NextRun == nil || !jobs[0].NextRun.Equal(want) {
		t.Fatalf("unexpected next run: %+v", jobs[0])
	}

	// Waking before the clock advances must not fire the same slot again.
	first.ch <- now
	select {
	case at := <-fired:
		if !at.Equal(want) {
			t.Fatalf("fired at %v, want %v", at, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire")
	}

	second := timers.next(t)
	if second.after != 25*time.Hour {
		t.Fatalf("second timer armed for %v, want 25h", second.after)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := d.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if d.Running() {
		t.Fatal("scheduler should be stopped")
	}
	if !second.stopped {
		t.Fatal("pending timer should be stopped")
	}
}

func TestPanickingJobKeepsLoopAlive(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.June, 2, 20, 0, 0, 0, time.UTC)
	timers := newTimerFactory()
	d := NewDaily(time.UTC, WithClock(func() time.Time { return now }), WithTimerFactory(timers.New))

	calls := make(chan struct{}, 2)
	if err := d.Register(ports.Job{ID: "night", Hour: 21, Run: func(context.Context, time.Time) {
		calls <- struct{}{}
		panic("boom")
	}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	timers.next(t).ch <- now
	<-calls
	// The loop re-arms after recovering.
	timers.next(t)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRestartAfterStopTimesOut(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.June, 2, 17, 0, 0, 0, time.UTC)
	timers := newTimerFactory()
	d := NewDaily(time.UTC, WithClock(func() time.Time { return now }), WithTimerFactory(timers.New))

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	if err := d.Register(ports.Job{ID: "evening", Hour: 18, Run: func(context.Context, time.Time) {
		entered <- struct{}{}
		<-release
	}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	timers.next(t).ch <- now
	<-entered

	shortCtx, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if err := d.Stop(shortCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected Stop to time out, got %v", err)
	}
	if d.Running() {
		t.Fatal("scheduler should report stopped after a timed-out Stop")
	}

	// The previous loop is still inside its job; restarting must not reuse its wait group.
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !d.Running() {
		t.Fatal("scheduler should be running again")
	}
	timers.next(t)

	close(release)
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
