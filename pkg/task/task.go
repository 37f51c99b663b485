// Package task runs document processing in the background and tracks its
// status for polling clients.
//
// Each submitted job runs in its own goroutine under a per-task timeout and
// reports progress through a [Store]. Clients poll the store by task id:
//
//	id, _ := runner.Submit(ctx, "pump-manual.pdf", job)
//	st, ok, _ := store.Get(ctx, id) // processing 25 "Identifying components..."
package task

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// State is the lifecycle state of a task.
type State string

// Task states.
const (
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
	StateNotFound   State = "not_found"
)

// Status is what a polling client sees.
type Status struct {
	ID            string    `json:"task_id,omitempty"`
	State         State     `json:"status"`
	Progress      int       `json:"progress,omitempty"`
	Message       string    `json:"message,omitempty"`
	Document      string    `json:"document,omitempty"`
	ProcessedFile string    `json:"processed_file,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

// NotFound is the status reported for unknown task ids.
func NotFound(id string) Status {
	return Status{ID: id, State: StateNotFound}
}

// Done reports whether the task reached a final state.
func (s Status) Done() bool {
	return s.State == StateCompleted || s.State == StateError
}

// Store persists task statuses.
type Store interface {
	Get(ctx context.Context, id string) (Status, bool, error)
	Put(ctx context.Context, st Status) error
}

// =============================================================================
// MemoryStore
// =============================================================================

// MemoryStore keeps statuses in process memory. Entries are never evicted.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]Status
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]Status)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (Status, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.tasks[id]
	return st, ok, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[st.ID] = st
	return nil
}

// Len returns the number of tracked tasks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func encode(st Status) ([]byte, error) { return json.Marshal(st) }

func decode(data []byte) (Status, error) {
	var st Status
	err := json.Unmarshal(data, &st)
	return st, err
}
