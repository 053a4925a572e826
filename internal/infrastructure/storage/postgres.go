package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"MediMind/internal/domain"
	"MediMind/internal/ports"
)

const (
	usersTable         = "users"
	prescriptionsTable = "prescriptions"
	schedulesTable     = "medicine_schedules"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS prescriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		structured_data TEXT NOT NULL,
		medicines JSONB NOT NULL DEFAULT '[]',
		fallback_used BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS prescriptions_user_idx ON prescriptions (user_id)`,
	`CREATE TABLE IF NOT EXISTS medicine_schedules (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		prescription_id TEXT NOT NULL,
		medicine_name TEXT NOT NULL,
		dosage TEXT NOT NULL,
		frequency TEXT NOT NULL,
		timings TEXT[] NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		last_reminder_sent TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS medicine_schedules_user_idx ON medicine_schedules (user_id)`,
	`CREATE INDEX IF NOT EXISTS medicine_schedules_timings_idx ON medicine_schedules USING GIN (timings)`,
}

var scheduleColumns = []string{
	"id", "user_id", "prescription_id", "medicine_name", "dosage", "frequency",
	"timings", "enabled", "created_at", "last_reminder_sent",
}

var prescriptionColumns = []string{
	"id", "user_id", "raw_text", "structured_data", "medicines", "fallback_used", "created_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository persists users, prescriptions and schedules into Postgres.
type PostgresRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ ports.Store = (*PostgresRepository)(nil)

// OpenPostgres connects with lib/pq and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresRepository(db, logger), nil
}

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB, logger *zap.Logger) *PostgresRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRepository{db: db, logger: logger.With(zap.String("component", "postgres"))}
}

// Migrate creates the tables when they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	r.logger.Info("schema ready")
	return nil
}

// FindUser implements ports.UserDirectory.
func (r *PostgresRepository) FindUser(ctx context.Context, id string) (domain.User, error) {
	query, args, err := psql.Select("id", "email").From(usersTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.User{}, fmt.Errorf("build user query: %w", err)
	}
	var user domain.User
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&user.ID, &user.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// CreatePrescription inserts p and assigns its ID.
func (r *PostgresRepository) CreatePrescription(ctx context.Context, p *domain.Prescription) error {
	id := uuid.NewString()
	query, args, err := insertPrescriptionQuery(id, *p)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	p.ID = id
	return nil
}

// ListPrescriptionsByUser returns prescriptions oldest first.
func (r *PostgresRepository) ListPrescriptionsByUser(ctx context.Context, userID string) ([]domain.Prescription, error) {
	query, args, err := psql.Select(prescriptionColumns...).
		From(prescriptionsTable).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build prescriptions query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prescriptions: %w", err)
	}
	defer rows.Close()

	out := []domain.Prescription{}
	for rows.Next() {
		var (
			p         domain.Prescription
			medicines []byte
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.RawText, &p.RawReply, &medicines, &p.FallbackUsed, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		if err := json.Unmarshal(medicines, &p.Medicines); err != nil {
			return nil, fmt.Errorf("decode medicines of %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// CreateSchedule inserts s and assigns its ID.
func (r *PostgresRepository) CreateSchedule(ctx context.Context, s *domain.MedicineSchedule) error {
	id := uuid.NewString()
	query, args, err := insertScheduleQuery(id, *s)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	s.ID = id
	return nil
}

// ListSchedulesByUser returns all schedules of userID oldest first.
func (r *PostgresRepository) ListSchedulesByUser(ctx context.Context, userID string) ([]domain.MedicineSchedule, error) {
	return r.querySchedules(ctx, userSchedulesQuery(userID))
}

// ListDueSchedules returns enabled schedules whose timings contain period.
func (r *PostgresRepository) ListDueSchedules(ctx context.Context, period domain.Timing) ([]domain.MedicineSchedule, error) {
	return r.querySchedules(ctx, dueSchedulesQuery(period))
}

// SetScheduleEnabled flips the enabled flag.
func (r *PostgresRepository) SetScheduleEnabled(ctx context.Context, id string, enabled bool) error {
	return r.execAffectingOne(ctx, psql.Update(schedulesTable).Set("enabled", enabled).Where(sq.Eq{"id": id}))
}

// MarkReminderSent records the last delivery time.
func (r *PostgresRepository) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	return r.execAffectingOne(ctx, psql.Update(schedulesTable).Set("last_reminder_sent", at.UTC()).Where(sq.Eq{"id": id}))
}

// DeleteSchedule removes one schedule.
func (r *PostgresRepository) DeleteSchedule(ctx context.Context, id string) error {
	return r.execAffectingOne(ctx, psql.Delete(schedulesTable).Where(sq.Eq{"id": id}))
}

// Ping checks the connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the pool.
func (r *PostgresRepository) Close(context.Context) error {
	return r.db.Close()
}

func (r *PostgresRepository) execAffectingOne(ctx context.Context, builder sq.Sqlizer) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) querySchedules(ctx context.Context, builder sq.SelectBuilder) ([]domain.MedicineSchedule, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build schedules query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	out := []domain.MedicineSchedule{}
	for rows.Next() {
		var (
			s       domain.MedicineSchedule
			timings pq.StringArray
			last    sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.PrescriptionID, &s.MedicineName, &s.Dosage, &s.Frequency,
			&timings, &s.Enabled, &s.CreatedAt, &last); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		s.Timings = parseStoredTimings(timings)
		if last.Valid {
			at := last.Time.UTC()
			s.LastReminderSent = &at
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func dueSchedulesQuery(period domain.Timing) sq.SelectBuilder {
	return psql.Select(scheduleColumns...).
		From(schedulesTable).
		Where(sq.Eq{"enabled": true}).
		Where("? = ANY(timings)", string(period)).
		OrderBy("created_at")
}

func userSchedulesQuery(userID string) sq.SelectBuilder {
	return psql.Select(scheduleColumns...).
		From(schedulesTable).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at")
}

func insertScheduleQuery(id string, s domain.MedicineSchedule) (string, []any, error) {
	var last any
	if s.LastReminderSent != nil {
		last = s.LastReminderSent.UTC()
	}
	query, args, err := psql.Insert(schedulesTable).
		Columns(scheduleColumns...).
		Values(id, s.UserID, s.PrescriptionID, s.MedicineName, s.Dosage, s.Frequency,
			pq.StringArray(timingStrings(s.Timings)), s.Enabled, s.CreatedAt.UTC(), last).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build schedule insert: %w", err)
	}
	return query, args, nil
}

func insertPrescriptionQuery(id string, p domain.Prescription) (string, []any, error) {
	medicines := p.Medicines
	if medicines == nil {
		medicines = []domain.MedicineRecord{}
	}
	encoded, err := json.Marshal(medicines)
	if err != nil {
		return "", nil, fmt.Errorf("encode medicines: %w", err)
	}
	query, args, err := psql.Insert(prescriptionsTable).
		Columns(prescriptionColumns...).
		Values(id, p.UserID, p.RawText, p.RawReply, encoded, p.FallbackUsed, p.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build prescription insert: %w", err)
	}
	return query, args, nil
}
