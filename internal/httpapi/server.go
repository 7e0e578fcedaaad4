// Package httpapi is the REST surface: synchronous generation, meditation
// reads with availability recompute, and the generation job queue.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/evahlis/sona/internal/config"
	"github.com/evahlis/sona/internal/generation"
	"github.com/evahlis/sona/internal/jobs"
	"github.com/evahlis/sona/internal/meditation"
	"github.com/evahlis/sona/internal/observability"
	"github.com/evahlis/sona/internal/storage"
)

type Server struct {
	cfg          config.Config
	pipeline     *generation.Pipeline
	meditations  meditation.Store
	availability *meditation.Availability
	objects      storage.ObjectStore
	jobs         *jobs.Manager
	metrics      *observability.Metrics
	upgrader     websocket.Upgrader
}

func New(
	cfg config.Config,
	pipeline *generation.Pipeline,
	meditations meditation.Store,
	availability *meditation.Availability,
	objects storage.ObjectStore,
	jobManager *jobs.Manager,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		cfg:          cfg,
		pipeline:     pipeline,
		meditations:  meditations,
		availability: availability,
		objects:      objects,
		jobs:         jobManager,
		metrics:      metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections unless explicitly opened
				// up. Non-browser clients omit Origin and are allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/stats/generation", s.handleGenerationStats)

	r.Post("/v1/meditations/generate", s.handleGenerate)
	r.Get("/v1/meditations", s.handleListMeditations)
	r.Get("/v1/meditations/{id}", s.handleGetMeditation)
	r.Delete("/v1/meditations/{id}", s.handleDeleteMeditation)
	r.Post("/v1/meditations/{id}/complete", s.handleCompleteMeditation)

	r.Post("/v1/jobs", s.handleCreateJob)
	r.Get("/v1/jobs/{id}", s.handleGetJob)
	r.Delete("/v1/jobs/{id}", s.handleDeleteJob)
	r.Post("/v1/jobs/{id}/retry", s.handleRetryJob)
	r.Get("/v1/jobs/{id}/ws", s.handleJobWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleGenerationStats serves the rolling per-stage latency window. It is an
// operator view; per-user data never appears here.
func (s *Server) handleGenerationStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.StageLatency())
}

// userID reads the caller identity. Session management is handled upstream;
// the gateway forwards the authenticated user in a header.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
