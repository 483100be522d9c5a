package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/runner"
	"github.com/JakeFAU/jobscout/internal/task"
)

type searchResponse struct {
	TaskID      string    `json:"task_id"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	ResultCount *int      `json:"result_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Server) startSearch(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "runs are not configured")
		return
	}
	id, err := s.runs.StartRun(r.Context())
	if err != nil {
		if errors.Is(err, runner.ErrNoSources) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("start run failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not start search")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

func (s *Server) getSearch(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "runs are not configured")
		return
	}
	id := chi.URLParam(r, "task_id")
	t, err := s.runs.GetStatus(r.Context(), id)
	if errors.Is(err, task.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.logger.Error("get task failed", zap.String("task_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not load task")
		return
	}
	s.writeJSON(w, http.StatusOK, searchResponse{
		TaskID:      t.ID,
		Status:      string(t.Status),
		Progress:    t.Progress,
		Message:     t.Message,
		ResultCount: t.ResultCount,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	})
}

func (s *Server) sessionHealth(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeError(w, http.StatusNotFound, "session monitoring is disabled")
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessions.Current(r.Context()))
}

func (s *Server) checkSessionHealth(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeError(w, http.StatusNotFound, "session monitoring is disabled")
		return
	}
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = parsed
	}
	s.writeJSON(w, http.StatusOK, s.sessions.CheckHealth(r.Context(), force))
}

func (s *Server) sessionInfo(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeError(w, http.StatusNotFound, "session monitoring is disabled")
		return
	}
	info, err := s.sessions.Info(r.Context())
	if err != nil {
		s.logger.Error("read session info failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not read session")
		return
	}
	if info == nil {
		s.writeError(w, http.StatusNotFound, "no session stored")
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}
