package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"MediMind/internal/domain"
	"MediMind/internal/normalizer"
)

var uploadTime = time.Date(2025, time.June, 2, 9, 30, 0, 0, time.UTC)

func newTestPipeline(store *fakeStore, ocr fakeOCR, extractor *fakeExtractor) *Pipeline {
	return NewPipeline(PipelineDeps{
		Users:         store,
		OCR:           ocr,
		Extractor:     extractor,
		Normalizer:    normalizer.New(true),
		Prescriptions: store,
		Schedules:     store,
		Clock:         &fixedClock{now: uploadTime},
	})
}

func upload(userID string) UploadRequest {
	return UploadRequest{UserID: userID, Filename: "rx.jpg", Image: []byte{0xff, 0xd8}}
}

func TestUploadPersistsNormalizedSchedule(t *testing.T) {
	t.Parallel()

	store := newFakeStore(domain.User{ID: "u1", Email: "a@example.com"})
	extractor := &fakeExtractor{reply: `[{"medicine_name":"Paracetamol","dosage":null,"quantity":"10","frequency":"2x/day","timings":["morning","noon"]}]`}
	p := newTestPipeline(store, fakeOCR{text: "Paracetamol 500mg"}, extractor)

	res, err := p.Upload(context.Background(), upload("u1"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if extractor.got != "Paracetamol 500mg" {
		t.Fatalf("extractor received %q", extractor.got)
	}
	if res.PrescriptionID == "" || len(res.ScheduleIDs) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.FallbackUsed {
		t.Fatal("fallback should not be used")
	}

	sc := store.schedule(res.ScheduleIDs[0])
	if sc.Dosage != domain.NotAvailable || len(sc.Timings) != 1 || sc.Timings[0] != domain.TimingMorning {
		t.Fatalf("unexpected schedule: %+v", sc)
	}
	if sc.UserID != "u1" || sc.PrescriptionID != res.PrescriptionID || !sc.Enabled {
		t.Fatalf("schedule not linked: %+v", sc)
	}
	if !sc.CreatedAt.Equal(uploadTime) {
		t.Fatalf("unexpected created_at %v", sc.CreatedAt)
	}

	if len(store.prescriptions) != 1 {
		t.Fatalf("expected one prescription, got %d", len(store.prescriptions))
	}
	rx := store.prescriptions[0]
	if rx.RawText != "Paracetamol 500mg" || rx.RawReply != extractor.reply || len(rx.Medicines) != 1 {
		t.Fatalf("unexpected prescription: %+v", rx)
	}
}

func TestUploadKeepsSentinelRecordsOutOfSchedules(t *testing.T) {
	t.Parallel()

	store := newFakeStore(domain.User{ID: "u1", Email: "a@example.com"})
	p := newTestPipeline(store, fakeOCR{text: "illegible"}, &fakeExtractor{reply: `[{"medicine_name":"N/A","timings":["night"]}]`})

	res, err := p.Upload(context.Background(), upload("u1"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(res.ScheduleIDs) != 0 {
		t.Fatalf("sentinel record must not be scheduled: %+v", res.ScheduleIDs)
	}
	if res.ScheduleIDs == nil {
		t.Fatal("schedule ids should be an empty list, not nil")
	}
	if len(res.Medicines) != 1 || res.Medicines[0].MedicineName != "N/A" {
		t.Fatalf("caller should still see the record: %+v", res.Medicines)
	}
	if len(store.schedules) != 0 {
		t.Fatalf("store has schedules: %+v", store.schedules)
	}
}

func TestUploadPersistsFallbackForUnparsableReply(t *testing.T) {
	t.Parallel()

	store := newFakeStore(domain.User{ID: "u1", Email: "a@example.com"})
	p := newTestPipeline(store, fakeOCR{text: "text"}, &fakeExtractor{reply: "not json"})

	res, err := p.Upload(context.Background(), upload("u1"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !res.FallbackUsed || len(res.ScheduleIDs) != 1 {
		t.Fatalf("expected one fallback schedule: %+v", res)
	}
	sc := store.schedule(res.ScheduleIDs[0])
	if sc.MedicineName != "Unknown" || len(sc.Timings) != 1 || sc.Timings[0] != domain.TimingMorning {
		t.Fatalf("unexpected fallback schedule: %+v", sc)
	}
	if !store.prescriptions[0].FallbackUsed {
		t.Fatal("prescription should record the fallback")
	}
}

func TestUploadUpstreamFailuresAbortWithoutWrites(t *testing.T) {
	t.Parallel()

	boom := errors.New("quota exceeded")
	cases := map[string]struct {
		ocr       fakeOCR
		extractor *fakeExtractor
		stage     string
	}{
		"ocr":       {ocr: fakeOCR{err: boom}, extractor: &fakeExtractor{reply: "[]"}, stage: "ocr"},
		"inference": {ocr: fakeOCR{text: "x"}, extractor: &fakeExtractor{err: boom}, stage: "inference"},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore(domain.User{ID: "u1", Email: "a@example.com"})
			p := newTestPipeline(store, tc.ocr, tc.extractor)

			_, err := p.Upload(context.Background(), upload("u1"))
			if !errors.Is(err, domain.ErrUpstreamUnavailable) || !errors.Is(err, boom) {
				t.Fatalf("expected upstream failure, got %v", err)
			}
			var upstream *domain.UpstreamError
			if !errors.As(err, &upstream) || upstream.Stage != tc.stage {
				t.Fatalf("unexpected stage in %v", err)
			}
			if len(store.prescriptions) != 0 || len(store.schedules) != 0 {
				t.Fatal("nothing may be persisted on upstream failure")
			}
		})
	}
}

func TestUploadRejectsUnknownUser(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	p := newTestPipeline(store, fakeOCR{text: "x"}, &fakeExtractor{reply: "[]"})

	_, err := p.Upload(context.Background(), upload("ghost"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUploadRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	store := newFakeStore(domain.User{ID: "u1"})
	p := newTestPipeline(store, fakeOCR{text: "x"}, &fakeExtractor{reply: "[]"})

	if _, err := p.Upload(context.Background(), UploadRequest{UserID: "u1"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty image, got %v", err)
	}
	if _, err := p.Upload(context.Background(), UploadRequest{Image: []byte{1}}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty user, got %v", err)
	}
}

func TestUploadPartialBatchSurfacesPersistenceFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore(domain.User{ID: "u1", Email: "a@example.com"})
	store.failCreateAt = 2
	reply := `[{"medicine_name":"A","timings":["morning"]},{"medicine_name":"B","timings":["night"]},{"medicine_name":"C","timings":["evening"]}]`
	p := newTestPipeline(store, fakeOCR{text: "x"}, &fakeExtractor{reply: reply})

	_, err := p.Upload(context.Background(), upload("u1"))
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	if len(store.schedules) != 1 || store.schedules[0].MedicineName != "A" {
		t.Fatalf("earlier writes should remain: %+v", store.schedules)
	}
}
