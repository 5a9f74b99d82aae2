// Package api serves the simulated analysis service over HTTP and exposes
// the client as MCP tools.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/kalambet/waypoint/internal/analysis"
	"github.com/kalambet/waypoint/internal/simulate"
)

const maxSubmitBodySize = 1 << 20 // 1MB

// ServiceDeps holds what the simulated service needs.
type ServiceDeps struct {
	Store *simulate.Store
	// Token enables bearer auth on job endpoints when non-empty.
	Token string
	// AllowedOrigins are the browser origins allowed by CORS.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewServiceHandler serves POST /analyze, GET /results/{jobId} and
// GET /health from deps.Store.
func NewServiceHandler(deps ServiceDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))
	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/analyze", handleAnalyze(deps))
		r.Get("/results/{jobId}", handleResults(deps))
	})

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

func handleAnalyze(deps ServiceDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBodySize)
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if err := analysis.ValidateSubmitRequest(body); err != nil {
			httpError(w, http.StatusUnprocessableEntity, "%v", err)
			return
		}

		var req analysis.SubmitRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		job := deps.Store.Create(req)
		deps.Logger.Info("analysis queued", "job_id", job.ID, "tier", req.Tier)

		writeJSON(w, http.StatusOK, analysis.SubmitResponse{Success: true, JobID: job.ID})
	}
}

func handleResults(deps ServiceDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobId")

		snap, err := deps.Store.Read(id)
		if errors.Is(err, simulate.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "detail": "Job not found"})
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "reading job: %v", err)
			return
		}
		deps.Logger.Debug("results read", "job_id", id, "status", snap.Status(), "has_analysis", snap.HasAnalysis())
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleHealth(deps ServiceDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"jobs":   len(deps.Store.List()),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// httpError writes the service's error shape: {"detail": "..."}.
func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{"detail": fmt.Sprintf(format, args...)})
}
