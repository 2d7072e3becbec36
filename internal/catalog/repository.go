package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirinuki/kirinuki-agent/internal/clipdef"
)

type Repository interface {
	SaveDefinition(ctx context.Context, name string, def *clipdef.Definition) error
	GetDefinition(ctx context.Context, name string) (*clipdef.Definition, error)
	ListDefinitions(ctx context.Context) ([]*DefinitionRecord, error)
	DeleteDefinition(ctx context.Context, name string) error

	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	ListQueuedRuns(ctx context.Context) ([]*Run, error)
	UpdateRunStatus(ctx context.Context, id, status, errorMsg string) error
	SetRunArtifactDir(ctx context.Context, id, dir string) error

	AppendEvent(ctx context.Context, runID, level, message string) error
	ListEvents(ctx context.Context, runID string) ([]*RunEvent, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) SaveDefinition(ctx context.Context, name string, def *clipdef.Definition) error {
	body, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode definition: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO definitions (name, body, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at
	`, name, string(body), nowString(), nowString())
	return err
}

func (r *SQLiteRepository) GetDefinition(ctx context.Context, name string) (*clipdef.Definition, error) {
	var body string
	err := r.db.QueryRowContext(ctx, "SELECT body FROM definitions WHERE name = ?", name).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var def clipdef.Definition
	if err := json.Unmarshal([]byte(body), &def); err != nil {
		return nil, fmt.Errorf("failed to decode definition %s: %w", name, err)
	}
	return &def, nil
}

func (r *SQLiteRepository) ListDefinitions(ctx context.Context) ([]*DefinitionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, body, created_at, updated_at
		FROM definitions ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*DefinitionRecord
	for rows.Next() {
		var rec DefinitionRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&rec.Name, &rec.Body, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = parseTime(createdAt)
		rec.UpdatedAt = parseTime(updatedAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (r *SQLiteRepository) DeleteDefinition(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM definitions WHERE name = ?", name)
	return err
}

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, definition, status, error, artifact_dir, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Definition, run.Status, run.Error, run.ArtifactDir,
		run.CreatedAt.Format(time.RFC3339), run.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, definition, status, error, artifact_dir, created_at, updated_at, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)
	return r.scanRun(row)
}

func (r *SQLiteRepository) scanRun(row *sql.Row) (*Run, error) {
	var run Run
	var createdAt, updatedAt string
	var startedAt, finishedAt sql.NullString

	err := row.Scan(&run.ID, &run.Definition, &run.Status, &run.Error, &run.ArtifactDir,
		&createdAt, &updatedAt, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run.CreatedAt = parseTime(createdAt)
	run.UpdatedAt = parseTime(updatedAt)
	run.StartedAt = parseTimePtr(startedAt)
	run.FinishedAt = parseTimePtr(finishedAt)
	return &run, nil
}

func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, definition, status, error, artifact_dir, created_at, updated_at, started_at, finished_at
		FROM runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRuns(rows)
}

func (r *SQLiteRepository) ListQueuedRuns(ctx context.Context) ([]*Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, definition, status, error, artifact_dir, created_at, updated_at, started_at, finished_at
		FROM runs WHERE status = 'queued' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRuns(rows)
}

func (r *SQLiteRepository) scanRuns(rows *sql.Rows) ([]*Run, error) {
	var runs []*Run
	for rows.Next() {
		var run Run
		var createdAt, updatedAt string
		var startedAt, finishedAt sql.NullString

		if err := rows.Scan(&run.ID, &run.Definition, &run.Status, &run.Error, &run.ArtifactDir,
			&createdAt, &updatedAt, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		run.CreatedAt = parseTime(createdAt)
		run.UpdatedAt = parseTime(updatedAt)
		run.StartedAt = parseTimePtr(startedAt)
		run.FinishedAt = parseTimePtr(finishedAt)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// UpdateRunStatus records a status transition. Moving to running stamps
// started_at; moving to a terminal status stamps finished_at.
func (r *SQLiteRepository) UpdateRunStatus(ctx context.Context, id, status, errorMsg string) error {
	now := nowString()
	var err error
	switch status {
	case RunStatusRunning:
		_, err = r.db.ExecContext(ctx, `
			UPDATE runs SET status = ?, error = ?, updated_at = ?, started_at = ? WHERE id = ?
		`, status, errorMsg, now, now, id)
	case RunStatusCompleted, RunStatusFailed:
		_, err = r.db.ExecContext(ctx, `
			UPDATE runs SET status = ?, error = ?, updated_at = ?, finished_at = ? WHERE id = ?
		`, status, errorMsg, now, now, id)
	default:
		_, err = r.db.ExecContext(ctx, `
			UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?
		`, status, errorMsg, now, id)
	}
	return err
}

func (r *SQLiteRepository) SetRunArtifactDir(ctx context.Context, id, dir string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs SET artifact_dir = ?, updated_at = ? WHERE id = ?
	`, dir, nowString(), id)
	return err
}

func (r *SQLiteRepository) AppendEvent(ctx context.Context, runID, level, message string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, ts, level, message) VALUES (?, ?, ?, ?)
	`, runID, nowString(), level, message)
	return err
}

func (r *SQLiteRepository) ListEvents(ctx context.Context, runID string) ([]*RunEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, ts, level, message
		FROM run_events WHERE run_id = ? ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*RunEvent
	for rows.Next() {
		var ev RunEvent
		var ts string
		if err := rows.Scan(&ev.ID, &ev.RunID, &ts, &ev.Level, &ev.Message); err != nil {
			return nil, err
		}
		ev.Time = parseTime(ts)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// parseTime accepts both our RFC3339 timestamps and SQLite's own
// datetime('now') layout used by column defaults.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
