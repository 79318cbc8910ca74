package tasks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps tasks in process. Used for tests and DB_DRIVER=memory.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	tasks  map[int64]Task
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[int64]Task),
		now:   time.Now,
	}
}

// List returns tasks newest first.
func (s *MemoryStore) List(_ context.Context) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) Create(_ context.Context, d Draft) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t := Task{
		ID:          s.nextID,
		Title:       d.Title,
		Description: d.Description,
		Deadline:    d.Deadline,
		Duration:    d.Duration,
		Importance:  d.Importance,
		Stress:      d.Stress,
		Fun:         d.Fun,
		PenaltyLate: d.PenaltyLate,
		Status:      StatusBacklog,
		CreatedAt:   s.now().UTC(),
	}
	if d.Status != "" {
		transition(&t, d.Status, s.now())
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, p Patch) (Task, error) {
	return s.mutate(id, func(t *Task) { p.apply(t) })
}

func (s *MemoryStore) SetStatus(_ context.Context, id int64, st Status) (Task, error) {
	return s.mutate(id, func(t *Task) { transition(t, st, s.now()) })
}

func (s *MemoryStore) IncrementIgnored(_ context.Context, id int64) (Task, error) {
	return s.mutate(id, func(t *Task) { t.IgnoredCount++ })
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) mutate(id int64, fn func(*Task)) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	fn(&t)
	s.tasks[id] = t
	return t, nil
}
