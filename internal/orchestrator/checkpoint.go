package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aristath/docforge/internal/persistence"
)

// Checkpoint records the last completed step of a task and the context it left behind.
type Checkpoint struct {
	CompletedStep int
	Context       json.RawMessage
}

// Checkpoints loads and saves run checkpoints.
type Checkpoints interface {
	Load(ctx context.Context, taskID string) (Checkpoint, bool, error)
	Save(ctx context.Context, taskID string, cp Checkpoint) error
	Delete(ctx context.Context, taskID string) error
}

type checkpointBackend interface {
	SaveCheckpoint(ctx context.Context, taskID string, completedStep int, snapshot []byte) error
	GetCheckpoint(ctx context.Context, taskID string) (int, []byte, error)
	DeleteCheckpoint(ctx context.Context, taskID string) error
}

// CheckpointStore keeps checkpoints in the persistence layer.
type CheckpointStore struct {
	backend checkpointBackend
}

// NewCheckpointStore creates a checkpoint store over backend.
func NewCheckpointStore(backend checkpointBackend) *CheckpointStore {
	return &CheckpointStore{backend: backend}
}

// Load returns the checkpoint for taskID. found is false if none was saved yet.
func (s *CheckpointStore) Load(ctx context.Context, taskID string) (Checkpoint, bool, error) {
	step, snapshot, err := s.backend.GetCheckpoint(ctx, taskID)
	if errors.Is(err, persistence.ErrNotFound) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return Checkpoint{CompletedStep: step, Context: snapshot}, true, nil
}

// Save records cp for taskID. The stored step never moves backwards.
func (s *CheckpointStore) Save(ctx context.Context, taskID string, cp Checkpoint) error {
	if err := s.backend.SaveCheckpoint(ctx, taskID, cp.CompletedStep, cp.Context); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint for taskID.
func (s *CheckpointStore) Delete(ctx context.Context, taskID string) error {
	if err := s.backend.DeleteCheckpoint(ctx, taskID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
