// Package httpapi exposes the upload, schedule management and reminder
// endpoints over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"MediMind/internal/config"
	"MediMind/internal/domain"
	"MediMind/internal/usecase"
)

// Uploader runs the prescription pipeline.
type Uploader interface {
	Upload(ctx context.Context, req usecase.UploadRequest) (usecase.UploadResult, error)
}

// ScheduleManager lists and edits persisted schedules.
type ScheduleManager interface {
	ListSchedules(ctx context.Context, userID string) ([]domain.MedicineSchedule, error)
	ListPrescriptions(ctx context.Context, userID string) ([]domain.Prescription, error)
	Toggle(ctx context.Context, scheduleID string, enabled bool) error
	Delete(ctx context.Context, scheduleID string) error
}

// ReminderRunner reports the scheduler state and triggers manual runs.
type ReminderRunner interface {
	Status() usecase.SchedulerStatus
	RunNow(ctx context.Context) (usecase.RunReport, error)
}

// Pinger checks the backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the server's collaborators.
type Deps struct {
	Uploader  Uploader
	Schedules ScheduleManager
	Reminders ReminderRunner
	Store     Pinger
	Version   string
	Logger    *zap.Logger
}

// Server is the HTTP server for the MediMind API.
type Server struct {
	deps   Deps
	config config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, config: cfg, logger: logger.With(zap.String("component", "http"))}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload-prescription", s.handleUpload)
		r.Get("/user/{user_id}/schedules", s.handleUserSchedules)
		r.Get("/user/{user_id}/prescriptions", s.handleUserPrescriptions)
		r.Post("/toggle-schedule", s.handleToggleSchedule)
		r.Delete("/schedule/{schedule_id}", s.handleDeleteSchedule)
		r.Post("/reminders/run", s.handleRunReminders)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server. Calling it before Start makes Start
// return http.ErrServerClosed.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// cors allows credentialed requests from the configured origins only.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (slices.Contains(s.config.CORSOrigins, origin) || slices.Contains(s.config.CORSOrigins, "*")) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
