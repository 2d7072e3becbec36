package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirinuki/kirinuki-agent/internal/clipdef"
)

type CatalogService interface {
	ImportDefinition(ctx context.Context, name, body string) (*clipdef.Definition, error)
	ImportDefinitionFile(ctx context.Context, path string) (string, *clipdef.Definition, error)
	GetDefinition(ctx context.Context, name string) (*clipdef.Definition, error)
	ListDefinitions(ctx context.Context) ([]*DefinitionRecord, error)
	DeleteDefinition(ctx context.Context, name string) error
	EnqueueRun(ctx context.Context, ref string) (*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	ListEvents(ctx context.Context, runID string) ([]*RunEvent, error)
	Source() clipdef.Source
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// ImportDefinition parses a KEY=VALUE definition body and stores it under
// name, replacing any previous version.
func (s *Service) ImportDefinition(ctx context.Context, name, body string) (*clipdef.Definition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("definition name must not be empty")
	}

	def, err := clipdef.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	// Validate here rather than at run time so the catalog only ever holds
	// runnable definitions.
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}

	if err := s.repo.SaveDefinition(ctx, name, def); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("definition stored", "name", name, "video_url", def.VideoURL)
	}
	return def, nil
}

// ImportDefinitionFile parses a definition file and stores it under its
// base name without the extension.
func (s *Service) ImportDefinitionFile(ctx context.Context, path string) (string, *clipdef.Definition, error) {
	def, err := clipdef.ParseFile(path)
	if err != nil {
		return "", nil, err
	}
	if err := def.Validate(); err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if err := s.repo.SaveDefinition(ctx, name, def); err != nil {
		return "", nil, err
	}

	if s.logger != nil {
		s.logger.Info("definition imported", "name", name, "path", path)
	}
	return name, def, nil
}

func (s *Service) GetDefinition(ctx context.Context, name string) (*clipdef.Definition, error) {
	return s.repo.GetDefinition(ctx, name)
}

func (s *Service) ListDefinitions(ctx context.Context) ([]*DefinitionRecord, error) {
	return s.repo.ListDefinitions(ctx)
}

func (s *Service) DeleteDefinition(ctx context.Context, name string) error {
	return s.repo.DeleteDefinition(ctx, name)
}

// EnqueueRun records a queued run for a definition reference: a stored
// definition name or an existing definition file path.
func (s *Service) EnqueueRun(ctx context.Context, ref string) (*Run, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("definition reference must not be empty")
	}

	def, err := s.repo.GetDefinition(ctx, ref)
	if err != nil {
		return nil, err
	}
	if def == nil {
		if _, statErr := os.Stat(ref); statErr != nil {
			return nil, fmt.Errorf("definition %q not found in catalog or on disk", ref)
		}
	}

	now := time.Now()
	run := &Run{
		ID:         NewID(),
		Definition: ref,
		Status:     RunStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("run enqueued", "run_id", run.ID, "definition", ref)
	}
	return run, nil
}

func (s *Service) GetRun(ctx context.Context, id string) (*Run, error) {
	return s.repo.GetRun(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	return s.repo.ListRuns(ctx, limit)
}

func (s *Service) ListEvents(ctx context.Context, runID string) ([]*RunEvent, error) {
	return s.repo.ListEvents(ctx, runID)
}

// Source exposes the stored definitions for chain resolution, so NEXT
// references in the catalog resolve by definition name. A reference that
// looks like a definition file name also matches the name it would have
// been imported under, so chains dropped as files keep resolving.
func (s *Service) Source() clipdef.Source {
	return clipdef.FuncSource(func(ctx context.Context, ref string) (*clipdef.Definition, error) {
		def, err := s.repo.GetDefinition(ctx, ref)
		if err != nil {
			return nil, err
		}
		if def == nil && IsDefinitionFile(ref) {
			name := strings.TrimSuffix(ref, filepath.Ext(ref))
			def, err = s.repo.GetDefinition(ctx, name)
			if err != nil {
				return nil, err
			}
		}
		if def == nil {
			return nil, fmt.Errorf("definition %q not found", ref)
		}
		return def, nil
	})
}
