package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveCheckpoint records the last completed step of a task and its context snapshot.
// The stored completed_step never moves backwards: a save with a lower step than the
// one on record leaves the row untouched.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, taskID string, completedStep int, snapshot []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (task_id, completed_step, snapshot, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(task_id) DO UPDATE SET
			completed_step = excluded.completed_step,
			snapshot = excluded.snapshot,
			updated_at = CURRENT_TIMESTAMP
		WHERE excluded.completed_step >= checkpoints.completed_step
	`, taskID, completedStep, string(snapshot))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetCheckpoint returns the checkpoint of a task.
// Returns an error wrapping ErrNotFound if the task has no checkpoint yet.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, taskID string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var step int
	var snapshot string
	err := s.db.QueryRowContext(ctx, `
		SELECT completed_step, snapshot
		FROM checkpoints
		WHERE task_id = ?
	`, taskID).Scan(&step, &snapshot)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, fmt.Errorf("no checkpoint for task %q: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}

	return step, []byte(snapshot), nil
}

// DeleteCheckpoint removes the checkpoint of a task, if any.
func (s *SQLiteStore) DeleteCheckpoint(ctx context.Context, taskID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to delete checkpoint %q: %w", taskID, err)
	}
	return nil
}
