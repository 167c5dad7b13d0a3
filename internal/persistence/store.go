package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no row exists for the requested key.
var ErrNotFound = errors.New("not found")

// TaskRecord is a raw persisted task record. Data holds the JSON-encoded task state.
type TaskRecord struct {
	ID        string
	Status    string
	Data      []byte
	UpdatedAt time.Time
}

// Store defines the key-value persistence used for task records and checkpoints.
type Store interface {
	// Task records
	SaveTaskState(ctx context.Context, taskID, status string, data []byte) error
	GetTaskState(ctx context.Context, taskID string) ([]byte, error)
	ListTaskStates(ctx context.Context) ([]TaskRecord, error)
	DeleteTaskState(ctx context.Context, taskID string) error

	// Checkpoints
	SaveCheckpoint(ctx context.Context, taskID string, completedStep int, snapshot []byte) error
	GetCheckpoint(ctx context.Context, taskID string) (completedStep int, snapshot []byte, err error)
	DeleteCheckpoint(ctx context.Context, taskID string) error

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite takes pragmas as _pragma=name(value) query parameters
	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)
	return open(ctx, connStr, 2)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Each store gets its own named shared-cache database so parallel tests never see each other's rows.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:docforge-%s?mode=memory&cache=shared", uuid.NewString())
	// Shared-cache table locks are not covered by busy_timeout, so serialize on one connection.
	return open(ctx, connStr, 1)
}

func open(ctx context.Context, connStr string, maxConns int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Idle connections are kept so an in-memory database survives between statements.
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
