package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/jobscout/internal/filelock"
)

// FileStore keeps every task in one JSON map on disk. Reads hold a shared
// flock lock and writes hold the exclusive lock for the whole
// read-modify-write, so separate processes see a consistent view.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: func() time.Time { return time.Now().UTC() }}
}

// Create implements Store.
func (s *FileStore) Create(ctx context.Context, t Task) error {
	if t.ID == "" {
		return fmt.Errorf("create task: empty id")
	}
	return filelock.Exclusive(ctx, s.path, func() error {
		tasks, err := s.read()
		if err != nil {
			return err
		}
		if _, ok := tasks[t.ID]; ok {
			return fmt.Errorf("create task %s: %w", t.ID, ErrExists)
		}
		now := s.now()
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		tasks[t.ID] = t
		return s.write(tasks)
	})
}

// Update implements Store.
func (s *FileStore) Update(ctx context.Context, id string, p Patch) (Task, error) {
	var out Task
	err := filelock.Exclusive(ctx, s.path, func() error {
		tasks, err := s.read()
		if err != nil {
			return err
		}
		current, ok := tasks[id]
		if !ok {
			return ErrNotFound
		}
		out = apply(current, p, s.now())
		if out == current {
			return nil
		}
		tasks[id] = out
		return s.write(tasks)
	})
	if err != nil {
		return Task{}, err
	}
	return out, nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, id string) (Task, error) {
	var (
		out Task
		ok  bool
	)
	err := filelock.Shared(ctx, s.path, func() error {
		tasks, err := s.read()
		if err != nil {
			return err
		}
		out, ok = tasks[id]
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	if !ok {
		return Task{}, ErrNotFound
	}
	return out, nil
}

func (s *FileStore) read() (map[string]Task, error) {
	data, err := filelock.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	tasks := make(map[string]Task)
	if len(data) == 0 {
		return tasks, nil
	}
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decode task file: %w", err)
	}
	return tasks, nil
}

func (s *FileStore) write(tasks map[string]Task) error {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode task file: %w", err)
	}
	return filelock.WriteFileAtomic(s.path, data, 0o644)
}
