package catalog

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// DefinitionRecord is a named clip definition as stored in the catalog.
// Body holds the JSON encoding of a clipdef.Definition.
type DefinitionRecord struct {
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Run is one queued or executed pipeline run. Definition holds the
// reference the run was enqueued with: a stored definition name or a
// definition file path.
type Run struct {
	ID          string     `json:"id"`
	Definition  string     `json:"definition"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	ArtifactDir string     `json:"artifact_dir,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// RunEvent is one append-only log line attached to a run.
type RunEvent struct {
	ID      int64     `json:"id"`
	RunID   string    `json:"run_id"`
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

var DefinitionExtensions = map[string]bool{
	".txt": true,
	".def": true,
}

func NewID() string {
	return uuid.NewString()
}

func IsDefinitionFile(filename string) bool {
	return DefinitionExtensions[strings.ToLower(filepath.Ext(filename))]
}
