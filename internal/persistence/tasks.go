package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveTaskState upserts the encoded state of a task.
func (s *SQLiteStore) SaveTaskState(ctx context.Context, taskID, status string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_states (id, status, data, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, taskID, status, string(data))
	if err != nil {
		return fmt.Errorf("failed to upsert task state %q: %w", taskID, err)
	}
	return nil
}

// GetTaskState returns the encoded state of a task.
// Returns an error wrapping ErrNotFound if no record exists.
func (s *SQLiteStore) GetTaskState(ctx context.Context, taskID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM task_states WHERE id = ?`, taskID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task state %q: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task state: %w", err)
	}
	return []byte(data), nil
}

// ListTaskStates returns every persisted task record, oldest first.
// Returns empty slice (not nil) if there are no records.
func (s *SQLiteStore) ListTaskStates(ctx context.Context) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, data, updated_at
		FROM task_states
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query task states: %w", err)
	}
	defer rows.Close()

	records := []TaskRecord{}
	for rows.Next() {
		var rec TaskRecord
		var data string
		if err := rows.Scan(&rec.ID, &rec.Status, &data, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task state: %w", err)
		}
		rec.Data = []byte(data)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task states: %w", err)
	}

	return records, nil
}

// DeleteTaskState removes a task record. Deleting a missing record is not an error.
func (s *SQLiteStore) DeleteTaskState(ctx context.Context, taskID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_states WHERE id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to delete task state %q: %w", taskID, err)
	}
	return nil
}
