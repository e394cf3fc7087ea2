// Package taskstore owns the durable, ordered sequence of ScheduledTask
// records. It is the sole authority on that sequence: all reads and writes
// go through a single process-wide mutex, and writes hit disk atomically via
// write-to-temp-then-rename, the same pattern the teacher's session manager
// uses for its own JSON snapshots.
package taskstore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/cianaparrot/cianaparrot/internal/model"
)

// Store is the sole owner of the on-disk task list. The zero value is not
// usable; construct with New.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a Store backed by path. The file is not read or created here;
// it is created lazily on first write, and treated as an empty list if
// absent on first read.
func New(path string) *Store {
	return &Store{path: path}
}

// Lock exposes the store's process-wide advisory lock so the Scheduler can
// hold it across its due-marking critical section (load, mark, persist)
// without letting task-store mutation tools interleave.
func (s *Store) Lock()   { s.mu.Lock() }
func (s *Store) Unlock() { s.mu.Unlock() }

// LoadLocked reads the current task list. The caller must hold Lock.
func (s *Store) LoadLocked() ([]*model.ScheduledTask, error) {
	return s.load()
}

// ReplaceLocked atomically overwrites the task list. The caller must hold Lock.
func (s *Store) ReplaceLocked(tasks []*model.ScheduledTask) error {
	return s.save(tasks)
}

// Load acquires the lock itself; use when the caller has no other step to
// perform inside the critical section.
func (s *Store) Load() ([]*model.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Append generates a fresh unique id for task, appends it, and persists.
// Returns the assigned id.
func (s *Store) Append(task *model.ScheduledTask) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return "", err
	}

	existing := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		existing[t.ID] = struct{}{}
	}

	id, err := generateUniqueID(existing)
	if err != nil {
		return "", err
	}
	task.ID = id

	tasks = append(tasks, task)
	if err := s.save(tasks); err != nil {
		return "", err
	}
	return id, nil
}

// MutateByID loads the list, applies fn to the task matching id (if found
// and fn returns true meaning "changed"), and persists. Used by cancel_task.
func (s *Store) MutateByID(id string, fn func(*model.ScheduledTask) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return false, err
	}

	found := false
	changed := false
	for _, t := range tasks {
		if t.ID == id {
			found = true
			changed = fn(t)
			break
		}
	}
	if !found {
		return false, nil
	}
	if changed {
		if err := s.save(tasks); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Store) load() ([]*model.ScheduledTask, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.ScheduledTask{}, nil
		}
		return nil, fmt.Errorf("taskstore: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return []*model.ScheduledTask{}, nil
	}

	var tasks []*model.ScheduledTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("taskstore: corrupt task file %s: %w", s.path, err)
	}
	return tasks, nil
}

func (s *Store) save(tasks []*model.ScheduledTask) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("taskstore: mkdir %s: %w", dir, err)
		}
	}

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("taskstore: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "tasks-*.tmp")
	if err != nil {
		return fmt.Errorf("taskstore: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("taskstore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("taskstore: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("taskstore: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("taskstore: rename: %w", err)
	}
	cleanup = false
	return nil
}

// generateUniqueID takes an 8-character slice of a random 128-bit id,
// regenerating on collision against the existing set (active and inactive).
func generateUniqueID(existing map[string]struct{}) (string, error) {
	for {
		u := uuid.New()
		id := hex.EncodeToString(u[:])[:8]
		if _, clash := existing[id]; !clash {
			return id, nil
		}
	}
}
