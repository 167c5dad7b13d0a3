package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/aristath/docforge/internal/persistence"
)

// Persister is the durable key-value storage behind a Store.
type Persister interface {
	SaveTaskState(ctx context.Context, taskID, status string, data []byte) error
	GetTaskState(ctx context.Context, taskID string) ([]byte, error)
	ListTaskStates(ctx context.Context) ([]persistence.TaskRecord, error)
	DeleteTaskState(ctx context.Context, taskID string) error
}

// Store keeps task records in a write-through cache over a Persister.
// Readers always receive copies; records are only changed through Save and Update.
type Store struct {
	mu      sync.Mutex
	cache   map[string]*State
	backend Persister
	now     func() time.Time
}

// NewStore loads every persisted record into the cache. Records left in processing
// by a previous process are rewritten as interrupted. Corrupt records are logged and skipped.
func NewStore(ctx context.Context, backend Persister) (*Store, error) {
	s := &Store{
		cache:   make(map[string]*State),
		backend: backend,
		now:     time.Now,
	}

	records, err := backend.ListTaskStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load task records: %w", err)
	}

	interrupted := 0
	for _, rec := range records {
		st, err := decode(rec.Data)
		if err != nil {
			log.Printf("WARNING: skipping unreadable task record %q: %v", rec.ID, err)
			continue
		}
		if st.Status == StatusProcessing {
			st.Status = StatusInterrupted
			st.Message = InterruptedMessage
			st.UpdatedAt = s.now()
			s.persist(st)
			interrupted++
		}
		s.cache[st.ID] = st
	}

	if interrupted > 0 {
		log.Printf("Recovered %d interrupted task(s)", interrupted)
	}
	return s, nil
}

func decode(data []byte) (*State, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task state: %w", err)
	}
	if st.ID == "" {
		return nil, errors.New("task state has no id")
	}
	return &st, nil
}

// persist writes st to durable storage. Failures are logged, never returned.
func (s *Store) persist(st *State) {
	data, err := json.Marshal(st)
	if err != nil {
		log.Printf("ERROR: failed to encode task %q: %v", st.ID, err)
		return
	}
	if err := s.backend.SaveTaskState(context.Background(), st.ID, string(st.Status), data); err != nil {
		log.Printf("ERROR: failed to persist task %q: %v", st.ID, err)
	}
}

// Save stores st in the cache and then durably.
func (s *Store) Save(st *State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := st.Clone()
	s.cache[c.ID] = c
	s.persist(c)
}

// Get returns a copy of the record for id, loading it from storage on a cache miss.
func (s *Store) Get(id string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// lookup returns the cached record, loading it on a miss. Callers hold s.mu.
func (s *Store) lookup(id string) (*State, bool) {
	if st, ok := s.cache[id]; ok {
		return st, true
	}

	data, err := s.backend.GetTaskState(context.Background(), id)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			log.Printf("WARNING: failed to load task %q: %v", id, err)
		}
		return nil, false
	}

	st, err := decode(data)
	if err != nil {
		log.Printf("WARNING: unreadable task record %q: %v", id, err)
		return nil, false
	}
	s.cache[id] = st
	return st, true
}

// Update applies fn to a copy of the record for id and saves the result.
// A record in a terminal status only accepts appended log entries: any other change
// is refused with ErrTerminal and the record is left as it was.
func (s *Store) Update(id string, fn func(st *State)) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := current.Clone()
	fn(next)

	if current.Status.Terminal() {
		allowed := current.Clone()
		allowed.Logs = next.Logs
		if !reflect.DeepEqual(allowed, next) {
			return nil, fmt.Errorf("%w: %s is %s", ErrTerminal, id, current.Status)
		}
	}

	next.UpdatedAt = s.now()
	s.cache[id] = next
	s.persist(next)

	return next.Clone(), nil
}

// List returns copies of all cached records, oldest first.
func (s *Store) List() []*State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*State, 0, len(s.cache))
	for _, st := range s.cache {
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete removes the record for id from the cache and from storage.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, id)
	if err := s.backend.DeleteTaskState(context.Background(), id); err != nil {
		log.Printf("ERROR: failed to delete task %q: %v", id, err)
	}
}
