// Package history records every palette sent to the lights in the
// palette_history table. The table is an audit trail for the status API and
// is never read back into the color cache.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/moodring/internal/palette"
)

// List limits.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is one palette dispatch.
type Entry struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Artist    string          `json:"artist"`
	Album     string          `json:"album"`
	Colors    palette.Palette `json:"colors"`
	Source    string          `json:"source"`
	Commands  int             `json:"commands"`
	CreatedAt time.Time       `json:"created_at"`
}

// Repository defines palette history operations.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
}

// SQLiteRepository stores history in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e. EventID and CreatedAt are generated if empty; ID is set
// from the inserted row. Recording the same EventID twice is a no-op.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	colors, err := json.Marshal(e.Colors.Strings())
	if err != nil {
		return fmt.Errorf("marshalling palette: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO palette_history (event_id, artist, album, colors, source, commands, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.Artist, e.Album, string(colors), e.Source, e.Commands,
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting palette history: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 1 {
		if id, err := res.LastInsertId(); err == nil {
			e.ID = id
		}
	}
	return nil
}

// List returns the most recent entries first. limit is clamped to
// [1, MaxLimit]; zero or negative means DefaultLimit.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, artist, album, colors, source, commands, created_at
		 FROM palette_history ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying palette history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var colors, createdAt string

		if err := rows.Scan(&e.ID, &e.EventID, &e.Artist, &e.Album,
			&colors, &e.Source, &e.Commands, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning palette history: %w", err)
		}

		var hex []string
		if json.Unmarshal([]byte(colors), &hex) == nil {
			e.Colors = palette.FromStrings(hex)
		}

		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing palette history timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating palette history: %w", err)
	}
	return entries, nil
}
