// package history persists terminal task outcomes to SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LosAICode/neurogen-client/internal/shared"
	"github.com/LosAICode/neurogen-client/internal/track"
)

// Entry is one recorded task outcome.
type Entry struct {
	ID         string
	TaskID     string
	TaskType   string
	Outcome    string
	Progress   float64
	Message    string
	OutputRef  string
	Stats      map[string]any
	Incomplete bool
	RecordedAt time.Time
}

// Store implements track.HistorySink on a SQLite database.
type Store struct {
	db *sql.DB
}

var _ track.HistorySink = (*Store)(nil)

// NewStore wraps an open database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the history schema when missing.
func (s *Store) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS task_history (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			outcome TEXT NOT NULL,
			progress REAL NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			output_ref TEXT NOT NULL DEFAULT '',
			stats TEXT NOT NULL DEFAULT '{}',
			incomplete INTEGER NOT NULL DEFAULT 0,
			recorded_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_task_history_recorded_at
			ON task_history (recorded_at DESC);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate task history: %w", err)
	}
	return nil
}

// Record inserts one terminal notice. Called exactly once per task by the
// completion arbiter.
func (s *Store) Record(ctx context.Context, notice track.TerminalNotice) error {
	stats := "{}"
	if notice.Final.Stats != nil {
		if data, err := json.Marshal(notice.Final.Stats); err == nil {
			stats = string(data)
		}
	}

	progress := notice.Final.Progress
	if !notice.Final.HasProgress() {
		progress = 0
	}

	query := `
		INSERT INTO task_history (id, task_id, task_type, outcome, progress, message, output_ref, stats, incomplete, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		shared.GenerateID(),
		notice.TaskID,
		notice.TaskType.String(),
		notice.Outcome.String(),
		progress,
		notice.Final.Message,
		notice.Final.OutputRef,
		stats,
		notice.Incomplete,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task outcome: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, task_id, task_type, outcome, progress, message, output_ref, stats, incomplete, recorded_at
		FROM task_history
		ORDER BY recorded_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query task history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e     Entry
			stats string
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &e.TaskType, &e.Outcome, &e.Progress, &e.Message, &e.OutputRef, &stats, &e.Incomplete, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if stats != "" && stats != "{}" {
			_ = json.Unmarshal([]byte(stats), &e.Stats)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// Clear removes all recorded outcomes and returns the number deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM task_history`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear task history: %w", err)
	}
	return result.RowsAffected()
}
