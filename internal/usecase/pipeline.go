package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"MediMind/internal/domain"
	"MediMind/internal/normalizer"
	"MediMind/internal/ports"
)

// PipelineDeps wires all driven adapters into the extraction pipeline.
type PipelineDeps struct {
	Users         ports.UserDirectory
	OCR           ports.TextExtractor
	Extractor     ports.StructuredExtractor
	Normalizer    *normalizer.Normalizer
	Prescriptions ports.PrescriptionRepository
	Schedules     ports.ScheduleRepository
	Clock         ports.Clock
	Logger        *zap.Logger
}

// Pipeline turns an uploaded prescription image into persisted schedules.
type Pipeline struct {
	users         ports.UserDirectory
	ocr           ports.TextExtractor
	extractor     ports.StructuredExtractor
	normalizer    *normalizer.Normalizer
	prescriptions ports.PrescriptionRepository
	schedules     ports.ScheduleRepository
	clock         ports.Clock
	logger        *zap.Logger
}

// UploadRequest carries one image uploaded by a user.
type UploadRequest struct {
	UserID   string
	Filename string
	Image    []byte
}

// UploadResult is returned to the caller of a successful upload.
type UploadResult struct {
	PrescriptionID string                  `json:"prescription_id"`
	ScheduleIDs    []string                `json:"schedule_ids"`
	Medicines      []domain.MedicineRecord `json:"medicines"`
	FallbackUsed   bool                    `json:"fallback_used"`
}

// NewPipeline constructs the extraction component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Normalizer == nil {
		deps.Normalizer = normalizer.New(true)
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{
		users:         deps.Users,
		ocr:           deps.OCR,
		extractor:     deps.Extractor,
		normalizer:    deps.Normalizer,
		prescriptions: deps.Prescriptions,
		schedules:     deps.Schedules,
		clock:         deps.Clock,
		logger:        deps.Logger,
	}
}

// Upload runs OCR, structured extraction and normalization, then persists the
// prescription and one schedule per eligible record. Schedules are written one
// at a time; a failure mid-batch leaves the earlier ones in place.
func (p *Pipeline) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return UploadResult{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if len(req.Image) == 0 {
		return UploadResult{}, fmt.Errorf("%w: image is empty", domain.ErrInvalidInput)
	}
	if p.ocr == nil || p.extractor == nil || p.prescriptions == nil || p.schedules == nil {
		return UploadResult{}, fmt.Errorf("pipeline is not fully configured")
	}

	log := p.logger.With(zap.String("user_id", req.UserID), zap.String("filename", req.Filename))

	if p.users != nil {
		if _, err := p.users.FindUser(ctx, req.UserID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return UploadResult{}, fmt.Errorf("user %s: %w", req.UserID, domain.ErrNotFound)
			}
			return UploadResult{}, fmt.Errorf("resolve user: %w: %w", domain.ErrPersistence, err)
		}
	}

	text, err := p.ocr.ExtractText(ctx, req.Image, req.Filename)
	if err != nil {
		return UploadResult{}, &domain.UpstreamError{Stage: "ocr", Err: err}
	}
	log.Debug("text extracted", zap.Int("length", len(text)))

	reply, err := p.extractor.Extract(ctx, text)
	if err != nil {
		return UploadResult{}, &domain.UpstreamError{Stage: "inference", Err: err}
	}
	log.Debug("structured reply received", zap.Int("length", len(reply)))

	normalized := p.normalizer.Normalize(reply)
	if normalized.FallbackUsed {
		log.Warn("inference reply unparsable, using fallback record", zap.Error(normalized.ParseErr))
	}
	for _, drop := range normalized.Dropped {
		log.Info("record not scheduled",
			zap.Int("index", drop.Index),
			zap.String("medicine_name", drop.Record.MedicineName),
			zap.String("reason", drop.Reason),
		)
	}

	now := p.clock.Now().UTC()
	prescription := domain.Prescription{
		UserID:       req.UserID,
		RawText:      text,
		RawReply:     reply,
		Medicines:    normalized.Medicines,
		FallbackUsed: normalized.FallbackUsed,
		CreatedAt:    now,
	}
	if err := p.prescriptions.CreatePrescription(ctx, &prescription); err != nil {
		return UploadResult{}, fmt.Errorf("create prescription: %w: %w", domain.ErrPersistence, err)
	}

	scheduleIDs := make([]string, 0, len(normalized.Eligible))
	for i, record := range normalized.Eligible {
		schedule := domain.NewSchedule(req.UserID, prescription.ID, record, now)
		if err := p.schedules.CreateSchedule(ctx, &schedule); err != nil {
			log.Error("schedule batch interrupted",
				zap.String("prescription_id", prescription.ID),
				zap.Int("persisted", len(scheduleIDs)),
				zap.Int("total", len(normalized.Eligible)),
				zap.Error(err),
			)
			return UploadResult{}, fmt.Errorf("create schedule %d of %d: %w: %w", i+1, len(normalized.Eligible), domain.ErrPersistence, err)
		}
		scheduleIDs = append(scheduleIDs, schedule.ID)
	}

	log.Info("prescription processed",
		zap.String("prescription_id", prescription.ID),
		zap.Int("medicines", len(normalized.Medicines)),
		zap.Int("schedules", len(scheduleIDs)),
		zap.Bool("fallback", normalized.FallbackUsed),
	)

	return UploadResult{
		PrescriptionID: prescription.ID,
		ScheduleIDs:    scheduleIDs,
		Medicines:      normalized.Medicines,
		FallbackUsed:   normalized.FallbackUsed,
	}, nil
}

// SystemClock reads the process wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time {
	return time.Now()
}
