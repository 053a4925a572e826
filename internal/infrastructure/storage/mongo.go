package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"MediMind/internal/config"
	"MediMind/internal/domain"
	"MediMind/internal/ports"
)

const (
	usersCollection         = "users"
	prescriptionsCollection = "prescriptions"
	schedulesCollection     = "medicine_schedules"
)

type userDoc struct {
	ID    primitive.ObjectID `bson:"_id"`
	Email string             `bson:"email"`
}

type medicineDoc struct {
	MedicineName string   `bson:"medicine_name"`
	Dosage       string   `bson:"dosage"`
	Quantity     string   `bson:"quantity"`
	Frequency    string   `bson:"frequency"`
	Timings      []string `bson:"timings"`
}

type prescriptionDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	UserID         string             `bson:"user_id"`
	RawText        string             `bson:"raw_text"`
	StructuredData string             `bson:"structured_data"`
	Medicines      []medicineDoc      `bson:"medicines"`
	FallbackUsed   bool               `bson:"fallback_used"`
	CreatedAt      time.Time          `bson:"created_at"`
}

type scheduleDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	UserID           string             `bson:"user_id"`
	PrescriptionID   string             `bson:"prescription_id"`
	MedicineName     string             `bson:"medicine_name"`
	Dosage           string             `bson:"dosage"`
	Frequency        string             `bson:"frequency"`
	Timings          []string           `bson:"timings"`
	Enabled          bool               `bson:"enabled"`
	CreatedAt        time.Time          `bson:"created_at"`
	LastReminderSent *time.Time         `bson:"last_reminder_sent,omitempty"`
}

// MongoRepository stores users, prescriptions and schedules in MongoDB.
// User ids are stored on prescriptions and schedules as hex strings.
type MongoRepository struct {
	client        *mongo.Client
	users         *mongo.Collection
	prescriptions *mongo.Collection
	schedules     *mongo.Collection
	logger        *zap.Logger
}

var _ ports.Store = (*MongoRepository)(nil)

// ConnectMongo dials the cluster, verifies it with a ping and returns a repository.
func ConnectMongo(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*MongoRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	repo := NewMongoRepository(client, cfg.Database, logger)
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Warn("mongo indexes not created", zap.Error(err))
	}
	repo.logger.Info("connected to mongodb", zap.String("database", cfg.Database))
	return repo, nil
}

// NewMongoRepository wires collections of an already connected client.
func NewMongoRepository(client *mongo.Client, database string, logger *zap.Logger) *MongoRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := client.Database(database)
	return &MongoRepository{
		client:        client,
		users:         db.Collection(usersCollection),
		prescriptions: db.Collection(prescriptionsCollection),
		schedules:     db.Collection(schedulesCollection),
		logger:        logger.With(zap.String("component", "mongo")),
	}
}

// EnsureIndexes creates the indexes used by the due-schedule and per-user queries.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.schedules.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "enabled", Value: 1}, {Key: "timings", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create schedule indexes: %w", err)
	}
	_, err = r.prescriptions.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}}})
	if err != nil {
		return fmt.Errorf("create prescription indexes: %w", err)
	}
	return nil
}

// FindUser implements ports.UserDirectory. Malformed ids resolve to ErrNotFound.
func (r *MongoRepository) FindUser(ctx context.Context, id string) (domain.User, error) {
	filter, ok := idFilter(id)
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	var doc userDoc
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return domain.User{ID: doc.ID.Hex(), Email: doc.Email}, nil
}

// CreatePrescription inserts p and assigns its ID.
func (r *MongoRepository) CreatePrescription(ctx context.Context, p *domain.Prescription) error {
	res, err := r.prescriptions.InsertOne(ctx, toPrescriptionDoc(*p))
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	p.ID = insertedHex(res.InsertedID)
	return nil
}

// ListPrescriptionsByUser returns prescriptions oldest first.
func (r *MongoRepository) ListPrescriptionsByUser(ctx context.Context, userID string) ([]domain.Prescription, error) {
	var docs []prescriptionDoc
	if err := r.findAll(ctx, r.prescriptions, userFilter(userID), &docs); err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	out := make([]domain.Prescription, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromPrescriptionDoc(doc))
	}
	return out, nil
}

// CreateSchedule inserts s and assigns its ID.
func (r *MongoRepository) CreateSchedule(ctx context.Context, s *domain.MedicineSchedule) error {
	res, err := r.schedules.InsertOne(ctx, toScheduleDoc(*s))
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	s.ID = insertedHex(res.InsertedID)
	return nil
}

// ListSchedulesByUser returns all schedules of userID oldest first.
func (r *MongoRepository) ListSchedulesByUser(ctx context.Context, userID string) ([]domain.MedicineSchedule, error) {
	return r.listSchedules(ctx, userFilter(userID))
}

// ListDueSchedules returns enabled schedules whose timings contain period.
func (r *MongoRepository) ListDueSchedules(ctx context.Context, period domain.Timing) ([]domain.MedicineSchedule, error) {
	return r.listSchedules(ctx, dueFilter(period))
}

// SetScheduleEnabled flips the enabled flag.
func (r *MongoRepository) SetScheduleEnabled(ctx context.Context, id string, enabled bool) error {
	return r.updateSchedule(ctx, id, bson.M{"enabled": enabled})
}

// MarkReminderSent records the last delivery time.
func (r *MongoRepository) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	return r.updateSchedule(ctx, id, bson.M{"last_reminder_sent": at.UTC()})
}

// DeleteSchedule removes one schedule.
func (r *MongoRepository) DeleteSchedule(ctx context.Context, id string) error {
	filter, ok := idFilter(id)
	if !ok {
		return domain.ErrNotFound
	}
	res, err := r.schedules.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Ping checks the primary is reachable.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoRepository) listSchedules(ctx context.Context, filter bson.M) ([]domain.MedicineSchedule, error) {
	var docs []scheduleDoc
	if err := r.findAll(ctx, r.schedules, filter, &docs); err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	out := make([]domain.MedicineSchedule, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromScheduleDoc(doc))
	}
	return out, nil
}

func (r *MongoRepository) updateSchedule(ctx context.Context, id string, set bson.M) error {
	filter, ok := idFilter(id)
	if !ok {
		return domain.ErrNotFound
	}
	res, err := r.schedules.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoRepository) findAll(ctx context.Context, coll *mongo.Collection, filter bson.M, out any) error {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func idFilter(id string) (bson.M, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid}, true
}

func userFilter(userID string) bson.M {
	return bson.M{"user_id": userID}
}

// dueFilter relies on array matching: {"timings": "night"} matches any schedule
// whose timings array contains "night".
func dueFilter(period domain.Timing) bson.M {
	return bson.M{"enabled": true, "timings": string(period)}
}

func insertedHex(id any) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(id)
}

func timingStrings(timings []domain.Timing) []string {
	out := make([]string, 0, len(timings))
	for _, t := range timings {
		out = append(out, string(t))
	}
	return out
}

// parseStoredTimings drops values written by older clients that are not
// recognized timings.
func parseStoredTimings(values []string) []domain.Timing {
	out := make([]domain.Timing, 0, len(values))
	for _, v := range values {
		if t, ok := domain.ParseTiming(v); ok {
			out = append(out, t)
		}
	}
	return out
}

func toScheduleDoc(s domain.MedicineSchedule) scheduleDoc {
	doc := scheduleDoc{
		UserID:           s.UserID,
		PrescriptionID:   s.PrescriptionID,
		MedicineName:     s.MedicineName,
		Dosage:           s.Dosage,
		Frequency:        s.Frequency,
		Timings:          timingStrings(s.Timings),
		Enabled:          s.Enabled,
		CreatedAt:        s.CreatedAt.UTC(),
		LastReminderSent: s.LastReminderSent,
	}
	if oid, err := primitive.ObjectIDFromHex(s.ID); err == nil {
		doc.ID = oid
	}
	return doc
}

func fromScheduleDoc(doc scheduleDoc) domain.MedicineSchedule {
	return domain.MedicineSchedule{
		ID:               doc.ID.Hex(),
		UserID:           doc.UserID,
		PrescriptionID:   doc.PrescriptionID,
		MedicineName:     doc.MedicineName,
		Dosage:           doc.Dosage,
		Frequency:        doc.Frequency,
		Timings:          parseStoredTimings(doc.Timings),
		Enabled:          doc.Enabled,
		CreatedAt:        doc.CreatedAt,
		LastReminderSent: doc.LastReminderSent,
	}
}

func toPrescriptionDoc(p domain.Prescription) prescriptionDoc {
	medicines := make([]medicineDoc, 0, len(p.Medicines))
	for _, m := range p.Medicines {
		medicines = append(medicines, medicineDoc{
			MedicineName: m.MedicineName,
			Dosage:       m.Dosage,
			Quantity:     m.Quantity,
			Frequency:    m.Frequency,
			Timings:      timingStrings(m.Timings),
		})
	}
	return prescriptionDoc{
		UserID:         p.UserID,
		RawText:        p.RawText,
		StructuredData: p.RawReply,
		Medicines:      medicines,
		FallbackUsed:   p.FallbackUsed,
		CreatedAt:      p.CreatedAt.UTC(),
	}
}

func fromPrescriptionDoc(doc prescriptionDoc) domain.Prescription {
	medicines := make([]domain.MedicineRecord, 0, len(doc.Medicines))
	for _, m := range doc.Medicines {
		medicines = append(medicines, domain.MedicineRecord{
			MedicineName: m.MedicineName,
			Dosage:       m.Dosage,
			Quantity:     m.Quantity,
			Frequency:    m.Frequency,
			Timings:      parseStoredTimings(m.Timings),
		})
	}
	return domain.Prescription{
		ID:           doc.ID.Hex(),
		UserID:       doc.UserID,
		RawText:      doc.RawText,
		RawReply:     doc.StructuredData,
		Medicines:    medicines,
		FallbackUsed: doc.FallbackUsed,
		CreatedAt:    doc.CreatedAt,
	}
}
