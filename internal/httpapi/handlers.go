package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"MediMind/internal/domain"
	"MediMind/internal/usecase"
)

const maxUploadBytes = 10 << 20

type toggleRequest struct {
	ScheduleID string `json:"schedule_id"`
	Enabled    *bool  `json:"enabled"`
}

type uploadResponse struct {
	Success bool `json:"success"`
	usecase.UploadResult
	Message string `json:"message"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "MediMind API",
		"version": s.deps.Version,
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "healthy", "database": "connected"}
	status := http.StatusOK

	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.logger.Warn("health: store ping failed", zap.Error(err))
			resp["status"] = "unhealthy"
			resp["database"] = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}
	if s.deps.Reminders != nil {
		resp["scheduler"] = s.deps.Reminders.Status()
	}
	s.respondJSON(w, status, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "cannot read file")
		return
	}

	result, err := s.deps.Uploader.Upload(r.Context(), usecase.UploadRequest{
		UserID:   r.FormValue("user_id"),
		Filename: header.Filename,
		Image:    image,
	})
	if err != nil {
		s.respondDomainError(w, err, "User not found")
		return
	}

	s.respondJSON(w, http.StatusOK, uploadResponse{
		Success:      true,
		UploadResult: result,
		Message:      "Prescription uploaded and schedules created successfully",
	})
}

func (s *Server) handleUserSchedules(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Schedules.ListSchedules(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		s.respondDomainError(w, err, "")
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleUserPrescriptions(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Schedules.ListPrescriptions(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		s.respondDomainError(w, err, "")
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleToggleSchedule(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.deps.Schedules.Toggle(r.Context(), req.ScheduleID, *req.Enabled); err != nil {
		s.respondDomainError(w, err, "Schedule not found")
		return
	}
	state := "disabled"
	if *req.Enabled {
		state = "enabled"
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Schedule " + state + " successfully"})
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Schedules.Delete(r.Context(), chi.URLParam(r, "schedule_id")); err != nil {
		s.respondDomainError(w, err, "Schedule not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Schedule deleted successfully"})
}

func (s *Server) handleRunReminders(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reminders == nil {
		s.respondError(w, http.StatusServiceUnavailable, "reminders are not configured")
		return
	}
	report, err := s.deps.Reminders.RunNow(r.Context())
	if err != nil {
		s.logger.Error("manual reminder run failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) respondDomainError(w http.ResponseWriter, err error, notFound string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		if notFound == "" {
			notFound = "not found"
		}
		s.respondError(w, http.StatusNotFound, notFound)
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		s.logger.Error("upstream failure", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
