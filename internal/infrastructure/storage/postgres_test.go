package storage

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"

	"MediMind/internal/domain"
)

func TestDueSchedulesQuery(t *testing.T) {
	t.Parallel()

	query, args, err := dueSchedulesQuery(domain.TimingNight).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	want := "SELECT id, user_id, prescription_id, medicine_name, dosage, frequency, timings, enabled, created_at, last_reminder_sent " +
		"FROM medicine_schedules WHERE enabled = $1 AND $2 = ANY(timings) ORDER BY created_at"
	if query != want {
		t.Fatalf("unexpected query:\n got %s\nwant %s", query, want)
	}
	if !reflect.DeepEqual(args, []any{true, "night"}) {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestUserSchedulesQueryIncludesDisabled(t *testing.T) {
	t.Parallel()

	query, args, err := userSchedulesQuery("u1").ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if strings.Contains(query, "enabled =") {
		t.Fatalf("per-user listing must not filter on enabled: %s", query)
	}
	if !reflect.DeepEqual(args, []any{"u1"}) {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestInsertScheduleQuery(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.FixedZone("IST", 19800))
	query, args, err := insertScheduleQuery("id-1", domain.MedicineSchedule{
		UserID:       "u1",
		MedicineName: "Metformin",
		Timings:      []domain.Timing{domain.TimingMorning, domain.TimingNight},
		Enabled:      true,
		CreatedAt:    created,
	})
	if err != nil {
		t.Fatalf("insertScheduleQuery: %v", err)
	}
	if !strings.HasPrefix(query, "INSERT INTO medicine_schedules (id,user_id,") || !strings.Contains(query, "$10") {
		t.Fatalf("unexpected query %s", query)
	}
	if len(args) != 10 {
		t.Fatalf("expected 10 args, got %d", len(args))
	}
	if got, ok := args[6].(pq.StringArray); !ok || !reflect.DeepEqual([]string(got), []string{"morning", "night"}) {
		t.Fatalf("timings should be a text array, got %#v", args[6])
	}
	if got := args[8].(time.Time); got.Location() != time.UTC || !got.Equal(created) {
		t.Fatalf("created_at should be stored in UTC, got %v", got)
	}
	if args[9] != nil {
		t.Fatalf("last_reminder_sent should be NULL, got %v", args[9])
	}
}

func TestInsertPrescriptionQueryEncodesMedicines(t *testing.T) {
	t.Parallel()

	_, args, err := insertPrescriptionQuery("id-1", domain.Prescription{UserID: "u1"})
	if err != nil {
		t.Fatalf("insertPrescriptionQuery: %v", err)
	}
	var medicines []domain.MedicineRecord
	if err := json.Unmarshal(args[4].([]byte), &medicines); err != nil || medicines == nil {
		t.Fatalf("medicines should encode as an empty JSON array, got %s (%v)", args[4], err)
	}
}
