package api

import (
	"encoding/json"
	"time"

	"github.com/kirinuki/kirinuki-agent/internal/catalog"
	"github.com/kirinuki/kirinuki-agent/internal/clipdef"
	"github.com/kirinuki/kirinuki-agent/internal/pipelines"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
	Queue   string `json:"queue,omitempty"`
}

type CreateDefinitionRequest struct {
	Name string `json:"name"`
	// Body is the KEY=VALUE definition text, exactly as a definition file
	// would contain it.
	Body string `json:"body"`
}

type DefinitionResponse struct {
	Name       string          `json:"name"`
	Definition json.RawMessage `json:"definition"`
	CreatedAt  string          `json:"created_at,omitempty"`
	UpdatedAt  string          `json:"updated_at,omitempty"`
}

type DefinitionsResponse struct {
	Definitions []DefinitionResponse `json:"definitions"`
}

type CreateRunRequest struct {
	// Definition is a stored definition name or a definition file path.
	Definition string `json:"definition"`
}

type RunResponse struct {
	ID          string `json:"id"`
	Definition  string `json:"definition"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	ArtifactDir string `json:"artifact_dir,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	StartedAt   string `json:"started_at,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type RunEventResponse struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type RunEventsResponse struct {
	Events []RunEventResponse `json:"events"`
}

type DoctorResponse struct {
	Tools         map[string]pipelines.ToolInfo `json:"tools"`
	Available     int                           `json:"available"`
	Total         int                           `json:"total"`
	AllOK         bool                          `json:"all_ok"`
	HasDownload   bool                          `json:"has_download"`
	HasRender     bool                          `json:"has_render"`
	HasTranscribe bool                          `json:"has_transcribe"`
	ProbedAt      string                        `json:"probed_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RunToResponse(run *catalog.Run) RunResponse {
	resp := RunResponse{
		ID:          run.ID,
		Definition:  run.Definition,
		Status:      run.Status,
		Error:       run.Error,
		ArtifactDir: run.ArtifactDir,
		CreatedAt:   run.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   run.UpdatedAt.Format(time.RFC3339),
	}
	if run.StartedAt != nil {
		resp.StartedAt = run.StartedAt.Format(time.RFC3339)
	}
	if run.FinishedAt != nil {
		resp.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func EventToResponse(ev *catalog.RunEvent) RunEventResponse {
	return RunEventResponse{
		Time:    ev.Time.Format(time.RFC3339),
		Level:   ev.Level,
		Message: ev.Message,
	}
}

func RecordToResponse(rec *catalog.DefinitionRecord) DefinitionResponse {
	return DefinitionResponse{
		Name:       rec.Name,
		Definition: json.RawMessage(rec.Body),
		CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  rec.UpdatedAt.Format(time.RFC3339),
	}
}

func DefinitionToResponse(name string, def *clipdef.Definition) DefinitionResponse {
	body, _ := json.Marshal(def)
	return DefinitionResponse{Name: name, Definition: body}
}

func CapabilitiesToResponse(caps *pipelines.Capabilities) DoctorResponse {
	return DoctorResponse{
		Tools:         caps.Tools,
		Available:     caps.Summary.Available,
		Total:         caps.Summary.Total,
		AllOK:         caps.Summary.AllOK,
		HasDownload:   caps.HasDownload,
		HasRender:     caps.HasRender,
		HasTranscribe: caps.HasTranscribe,
		ProbedAt:      caps.ProbedAt.Format(time.RFC3339),
	}
}
