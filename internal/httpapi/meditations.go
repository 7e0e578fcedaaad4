package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/evahlis/sona/internal/generation"
	"github.com/evahlis/sona/internal/meditation"
	"github.com/evahlis/sona/internal/planner"
)

type generateRequest struct {
	ExperienceIDs   []string `json:"experience_ids"`
	DurationMinutes int      `json:"duration_minutes"`
	ReflectionType  string   `json:"reflection_type"`
}

type meditationResponse struct {
	ID                string                `json:"id"`
	Title             string                `json:"title"`
	Summary           string                `json:"summary"`
	Script            string                `json:"script,omitempty"`
	Playlist          []meditation.TrackRef `json:"playlist"`
	DurationSeconds   int                   `json:"duration_seconds"`
	CreatedAt         time.Time             `json:"created_at"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
	CompletionPercent int                   `json:"completion_percent"`
	AudioStatus       meditation.AudioStatus `json:"audio_status"`
	PlaybackURL       string                `json:"playback_url,omitempty"`
	AudioExpiresAt    *time.Time            `json:"audio_expires_at,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}

	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	flavor, ok := planner.ParseFlavor(req.ReflectionType)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_reflection_type", "reflection_type must be day or night")
		return
	}
	if len(req.ExperienceIDs) == 0 {
		respondError(w, http.StatusBadRequest, "missing_experience_ids", "experience_ids must not be empty")
		return
	}
	if req.DurationMinutes <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_duration", "duration_minutes must be positive")
		return
	}

	m, err := s.pipeline.Generate(r.Context(), generation.Request{
		UserID:          user,
		ExperienceIDs:   req.ExperienceIDs,
		DurationMinutes: req.DurationMinutes,
		Flavor:          flavor,
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.Generations.WithLabelValues("sync", "failure").Inc()
		}
		if errors.Is(err, generation.ErrNoExperiences) {
			respondError(w, http.StatusBadRequest, "unknown_experiences", err.Error())
			return
		}
		log.Printf("httpapi: synchronous generation failed: %v", err)
		respondError(w, http.StatusBadGateway, "generation_failed", "meditation generation failed")
		return
	}
	if s.metrics != nil {
		s.metrics.Generations.WithLabelValues("sync", "success").Inc()
	}

	respondJSON(w, http.StatusCreated, meditationResponse{
		ID:              m.ID,
		Title:           m.Title,
		Summary:         m.Summary,
		Playlist:        m.Playlist,
		DurationSeconds: m.DurationSeconds,
		CreatedAt:       m.CreatedAt,
		AudioStatus:     audioStatusOf(m, time.Now().UTC()),
		AudioExpiresAt:  m.AudioExpiresAt,
	})
}

func (s *Server) handleListMeditations(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.meditations.List(r.Context(), user, limit)
	if err != nil {
		log.Printf("httpapi: list meditations: %v", err)
		respondError(w, http.StatusInternalServerError, "list_failed", "could not list meditations")
		return
	}

	now := time.Now().UTC()
	out := make([]meditationResponse, 0, len(records))
	for _, m := range records {
		out = append(out, meditationResponse{
			ID:                m.ID,
			Title:             m.Title,
			Summary:           m.Summary,
			Playlist:          m.Playlist,
			DurationSeconds:   m.DurationSeconds,
			CreatedAt:         m.CreatedAt,
			CompletedAt:       m.CompletedAt,
			CompletionPercent: m.CompletionPercent,
			AudioStatus:       audioStatusOf(m, now),
			AudioExpiresAt:    m.AudioExpiresAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"meditations": out})
}

// handleGetMeditation recomputes availability on every read, issuing a fresh
// signed URL for live audio and purging lapsed artifacts.
func (s *Server) handleGetMeditation(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}
	id := chi.URLParam(r, "id")

	m, err := s.meditations.Get(r.Context(), user, id)
	if err != nil {
		if errors.Is(err, meditation.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "meditation not found")
			return
		}
		log.Printf("httpapi: get meditation %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "get_failed", "could not fetch meditation")
		return
	}

	resolved, err := s.availability.Resolve(r.Context(), m)
	if err != nil {
		log.Printf("httpapi: resolve audio for %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "availability_failed", "could not resolve audio availability")
		return
	}

	resp := meditationResponse{
		ID:                m.ID,
		Title:             m.Title,
		Summary:           m.Summary,
		Script:            m.Script,
		Playlist:          m.Playlist,
		DurationSeconds:   m.DurationSeconds,
		CreatedAt:         m.CreatedAt,
		CompletedAt:       m.CompletedAt,
		CompletionPercent: m.CompletionPercent,
		AudioStatus:       resolved.Status,
		PlaybackURL:       resolved.PlaybackURL,
		AudioExpiresAt:    resolved.ExpiresAt,
	}
	if resolved.Status == meditation.AudioGone {
		// Terminal, not retryable. The script and summary remain readable.
		resp.Playlist = nil
		respondJSON(w, http.StatusGone, map[string]any{
			"error":      "meditation audio is no longer available",
			"code":       "audio_gone",
			"meditation": resp,
		})
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleDeleteMeditation removes the record and any live storage object.
func (s *Server) handleDeleteMeditation(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}
	id := chi.URLParam(r, "id")

	m, err := s.meditations.Delete(r.Context(), user, id)
	if err != nil {
		if errors.Is(err, meditation.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "meditation not found")
			return
		}
		log.Printf("httpapi: delete meditation %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "delete_failed", "could not delete meditation")
		return
	}
	if m.AudioStoragePath != nil {
		if err := s.objects.Remove(r.Context(), []string{*m.AudioStoragePath}); err != nil {
			// Record is gone; the orphaned object is reclaimed by the sweep.
			log.Printf("httpapi: storage cleanup for deleted meditation %s: %v", id, err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeRequest struct {
	CompletionPercent int `json:"completion_percent"`
}

func (s *Server) handleCompleteMeditation(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}
	id := chi.URLParam(r, "id")

	req := completeRequest{CompletionPercent: 100}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	m, err := s.pipeline.RecordCompletion(r.Context(), user, id, req.CompletionPercent)
	if err != nil {
		if errors.Is(err, meditation.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "meditation not found")
			return
		}
		log.Printf("httpapi: complete meditation %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "complete_failed", "could not record completion")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":                 m.ID,
		"completed_at":       m.CompletedAt,
		"completion_percent": m.CompletionPercent,
	})
}

// audioStatusOf derives status from the stored columns alone. List views use
// it so they stay a single query; the detail read remains the path that
// purges and re-signs. An expired-but-unpurged record already reads as gone.
func audioStatusOf(m meditation.Meditation, now time.Time) meditation.AudioStatus {
	switch {
	case m.AudioRemovedAt != nil:
		return meditation.AudioGone
	case m.AudioStoragePath == nil:
		return meditation.AudioNone
	case m.AudioExpiresAt == nil || !m.AudioExpiresAt.After(now):
		return meditation.AudioGone
	default:
		return meditation.AudioLive
	}
}
