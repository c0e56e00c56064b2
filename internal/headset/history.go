package headset

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryEntry is one persisted transition.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Device    DeviceID  `json:"device"`
	Axis      Axis      `json:"axis"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores applied transitions for later inspection.
type HistoryRepository interface {
	Record(ctx context.Context, ev TransitionEvent) error
	History(ctx context.Context, id DeviceID, limit int) ([]HistoryEntry, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteHistoryRepository implements HistoryRepository on the
// transition_history table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a history repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteHistoryRepository: Repository instance ready for use
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Record inserts one transition.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - ev: Applied transition; a zero At is stamped with the current time
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHistoryRepository) Record(ctx context.Context, ev TransitionEvent) error {
	if ev.Device == "" {
		return fmt.Errorf("%w: device is required", ErrInvalidDevice)
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transition_history (address, axis, from_state, to_state, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(ev.Device),
		string(ev.Axis),
		ev.FromName(),
		ev.ToName(),
		at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting transition history: %w", err)
	}
	return nil
}

// History returns recent transitions for a device, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Device address
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []HistoryEntry: Entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteHistoryRepository) History(ctx context.Context, id DeviceID, limit int) ([]HistoryEntry, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: device is required", ErrInvalidDevice)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, address, axis, from_state, to_state, created_at
		 FROM transition_history
		 WHERE address = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		string(id),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transition history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry     HistoryEntry
			address   string
			axis      string
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &address, &axis, &entry.From, &entry.To, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning transition history: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entry.Device = DeviceID(address)
		entry.Axis = Axis(axis)
		entry.CreatedAt = ts
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transition history: %w", err)
	}
	return entries, nil
}

// Prune deletes transitions older than olderThan and returns how many went.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM transition_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting transition history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// HistoryListener returns a notifier listener that records every event.
// Write failures are logged and otherwise ignored.
func HistoryListener(repo HistoryRepository, logger Logger) Listener {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(ev TransitionEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Record(ctx, ev); err != nil {
			logger.Warn("recording transition history failed", "device", ev.Device, "error", err)
		}
	}
}
