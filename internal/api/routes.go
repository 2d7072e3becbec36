package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/healthz", healthHandler(cfg))

	r.Route("/api", func(r chi.Router) {
		if cfg.Token != "" {
			r.Use(AuthMiddleware(cfg.Token, cfg.Logger))
		}

		r.Get("/definitions", listDefinitionsHandler(cfg))
		r.Post("/definitions", createDefinitionHandler(cfg))
		r.Get("/definitions/{name}", getDefinitionHandler(cfg))
		r.Delete("/definitions/{name}", deleteDefinitionHandler(cfg))

		r.Get("/runs", listRunsHandler(cfg))
		r.Post("/runs", createRunHandler(cfg))
		r.Get("/runs/{id}", getRunHandler(cfg))
		r.Get("/runs/{id}/events", listRunEventsHandler(cfg))
		r.Get("/runs/{id}/artifacts/{name}", artifactHandler(cfg))

		r.Get("/doctor", doctorHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		}
		if cfg.Runner != nil {
			resp.Queue = "idle"
			if cfg.Runner.IsRunning() {
				resp.Queue = "running"
			}
			if cfg.Runner.IsPaused() {
				resp.Queue = "paused"
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func doctorHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Doctor == nil {
			WriteError(w, http.StatusServiceUnavailable, "tool probing is not available", "DOCTOR_UNAVAILABLE")
			return
		}
		caps, err := cfg.Doctor.Get(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "tool probe failed", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, CapabilitiesToResponse(caps))
	}
}

func listDefinitionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := cfg.Catalog.ListDefinitions(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list definitions", "INTERNAL_ERROR")
			return
		}

		resp := DefinitionsResponse{Definitions: make([]DefinitionResponse, len(records))}
		for i, rec := range records {
			resp.Definitions[i] = RecordToResponse(rec)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createDefinitionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDefinitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		def, err := cfg.Catalog.ImportDefinition(r.Context(), req.Name, req.Body)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusCreated, DefinitionToResponse(strings.TrimSpace(req.Name), def))
	}
}

func getDefinitionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		def, err := cfg.Catalog.GetDefinition(r.Context(), name)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if def == nil {
			WriteError(w, http.StatusNotFound, "definition not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, DefinitionToResponse(name, def))
	}
}

func deleteDefinitionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Catalog.DeleteDefinition(r.Context(), chi.URLParam(r, "name")); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				WriteError(w, http.StatusBadRequest, "invalid limit", "BAD_REQUEST")
				return
			}
			limit = n
		}

		runs, err := cfg.Catalog.ListRuns(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}

		resp := RunsResponse{Runs: make([]RunResponse, len(runs))}
		for i, run := range runs {
			resp.Runs[i] = RunToResponse(run)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Definition == "" {
			WriteError(w, http.StatusBadRequest, "definition is required", "BAD_REQUEST")
			return
		}

		run, err := cfg.Catalog.EnqueueRun(r.Context(), req.Definition)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusAccepted, RunToResponse(run))
	}
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := cfg.Catalog.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, RunToResponse(run))
	}
}

func listRunEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		run, err := cfg.Catalog.GetRun(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}

		events, err := cfg.Catalog.ListEvents(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list events", "INTERNAL_ERROR")
			return
		}

		resp := RunEventsResponse{Events: make([]RunEventResponse, len(events))}
		for i, ev := range events {
			resp.Events[i] = EventToResponse(ev)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func artifactHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		name := chi.URLParam(r, "name")
		if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			WriteError(w, http.StatusBadRequest, "invalid artifact name", "BAD_REQUEST")
			return
		}

		run, err := cfg.Catalog.GetRun(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}

		dir := run.ArtifactDir
		if dir == "" {
			dir = filepath.Join(cfg.RunsDir, run.ID)
		}

		if err := ServeArtifact(w, r, filepath.Join(dir, name)); err != nil {
			cfg.Logger.Error("artifact streaming failed",
				"error", err, "run_id", id, "artifact", name)
		}
	}
}
