package httpapi

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/evahlis/sona/internal/jobs"
	"github.com/evahlis/sona/internal/meditation"
)

type createJobRequest struct {
	ExperienceIDs   []string   `json:"experience_ids"`
	DurationMinutes int        `json:"duration_minutes"`
	ReflectionType  string     `json:"reflection_type"`
	RangeStart      *time.Time `json:"range_start,omitempty"`
	RangeEnd        *time.Time `json:"range_end,omitempty"`
}

type jobResponse struct {
	ID              string     `json:"id"`
	Status          jobs.Status `json:"status"`
	JobType         string     `json:"job_type"`
	ReflectionType  string     `json:"reflection_type"`
	DurationMinutes int        `json:"duration_minutes"`
	ExperienceCount int        `json:"experience_count"`
	RetryCount      int        `json:"retry_count"`
	RetryPermitted  bool       `json:"retry_permitted,omitempty"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	// Populated only for completed jobs.
	Meditation *completedMeditation `json:"meditation,omitempty"`
}

type completedMeditation struct {
	ID       string                `json:"id"`
	Title    string                `json:"title"`
	Summary  string                `json:"summary"`
	Playlist []meditation.TrackRef `json:"playlist"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}

	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	j, err := s.jobs.Create(r.Context(), jobs.CreateRequest{
		UserID:          user,
		ExperienceIDs:   req.ExperienceIDs,
		DurationMinutes: req.DurationMinutes,
		ReflectionType:  req.ReflectionType,
		RangeStart:      req.RangeStart,
		RangeEnd:        req.RangeEnd,
	})
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrRateLimited):
			respondError(w, http.StatusTooManyRequests, "rate_limited", "too many generation jobs, try again later")
		case errors.Is(err, jobs.ErrInvalidRequest):
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			log.Printf("httpapi: create job: %v", err)
			respondError(w, http.StatusInternalServerError, "create_failed", "could not create job")
		}
		return
	}
	respondJSON(w, http.StatusAccepted, s.jobView(r, j))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}
	id := chi.URLParam(r, "id")

	j, err := s.jobs.Get(r.Context(), user, id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		log.Printf("httpapi: get job %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "get_failed", "could not fetch job")
		return
	}
	respondJSON(w, http.StatusOK, s.jobView(r, j))
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}
	id := chi.URLParam(r, "id")

	if err := s.jobs.Delete(r.Context(), user, id); err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			respondError(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, jobs.ErrJobProcessing):
			respondError(w, http.StatusConflict, "job_processing", "job is processing and cannot be deleted")
		default:
			log.Printf("httpapi: delete job %s: %v", id, err)
			respondError(w, http.StatusInternalServerError, "delete_failed", "could not delete job")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}
	id := chi.URLParam(r, "id")

	j, err := s.jobs.Retry(r.Context(), user, id)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			respondError(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, jobs.ErrRetryExhausted):
			respondError(w, http.StatusConflict, "retry_exhausted", "job retry limit reached")
		case errors.Is(err, jobs.ErrNotRetryable):
			respondError(w, http.StatusConflict, "not_retryable", "only failed jobs can be retried")
		default:
			log.Printf("httpapi: retry job %s: %v", id, err)
			respondError(w, http.StatusInternalServerError, "retry_failed", "could not retry job")
		}
		return
	}
	respondJSON(w, http.StatusAccepted, s.jobView(r, j))
}

// handleJobWS streams job state transitions: a snapshot on connect, then
// every transition until the job goes terminal or the client disconnects.
func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}
	id := chi.URLParam(r, "id")

	j, err := s.jobs.Get(r.Context(), user, id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		log.Printf("httpapi: ws job lookup %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "get_failed", "could not fetch job")
		return
	}

	// Subscribe before the snapshot so no transition is lost in between.
	events, cancel := s.jobs.Subscribe(id)
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(s.jobView(r, j)); err != nil {
		return
	}
	if j.Status.Terminal() {
		return
	}

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for evt := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(evt); err != nil {
			return
		}
		if evt.Status.Terminal() {
			return
		}
	}
}

// jobView builds the polling snapshot, loading the meditation fields for
// completed jobs.
func (s *Server) jobView(r *http.Request, j jobs.Job) jobResponse {
	resp := jobResponse{
		ID:              j.ID,
		Status:          j.Status,
		JobType:         j.JobType,
		ReflectionType:  j.ReflectionType,
		DurationMinutes: j.DurationMinutes,
		ExperienceCount: len(j.ExperienceIDs),
		RetryCount:      j.RetryCount,
		Error:           j.ErrorMessage,
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
	if j.Status == jobs.StatusFailed {
		resp.RetryPermitted = j.RetryPermitted(s.jobs.MaxRetries())
	}
	if j.Status == jobs.StatusCompleted && j.MeditationID != nil {
		m, err := s.meditations.Get(r.Context(), j.UserID, *j.MeditationID)
		if err != nil {
			log.Printf("httpapi: meditation lookup for completed job %s: %v", j.ID, err)
			return resp
		}
		resp.Meditation = &completedMeditation{
			ID:       m.ID,
			Title:    m.Title,
			Summary:  m.Summary,
			Playlist: m.Playlist,
		}
	}
	return resp
}
