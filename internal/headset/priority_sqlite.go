package headset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLitePriorityStore implements PriorityStore on the headset_priorities table.
type SQLitePriorityStore struct {
	db *sql.DB
}

// NewSQLitePriorityStore creates a priority store backed by an open SQLite
// connection. The schema comes from the embedded migrations.
func NewSQLitePriorityStore(db *sql.DB) *SQLitePriorityStore {
	return &SQLitePriorityStore{db: db}
}

// Get implements PriorityStore.
func (s *SQLitePriorityStore) Get(ctx context.Context, id DeviceID) (Priority, error) {
	var value int
	err := s.db.QueryRowContext(ctx,
		"SELECT priority FROM headset_priorities WHERE address = ?",
		string(id),
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PriorityUndefined, nil
		}
		return PriorityUndefined, fmt.Errorf("%w: reading priority for %s: %w", ErrStore, id, err)
	}
	return Priority(value), nil
}

// Set implements PriorityStore.
func (s *SQLitePriorityStore) Set(ctx context.Context, id DeviceID, p Priority) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO headset_priorities (address, priority, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(address) DO UPDATE SET
			priority = excluded.priority,
			updated_at = excluded.updated_at`,
		string(id),
		int(p),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: saving priority for %s: %w", ErrStore, id, err)
	}
	return nil
}
