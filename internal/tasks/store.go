package tasks

import (
	"context"
	"time"
)

// Store owns task records. Implementations must make every call atomic per task.
type Store interface {
	List(ctx context.Context) ([]Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	Create(ctx context.Context, d Draft) (Task, error)
	Update(ctx context.Context, id int64, p Patch) (Task, error)
	SetStatus(ctx context.Context, id int64, s Status) (Task, error)
	IncrementIgnored(ctx context.Context, id int64) (Task, error)
	Delete(ctx context.Context, id int64) error
}

// transition applies a status change and maintains completed_date.
func transition(t *Task, s Status, now time.Time) {
	if s == StatusDone && t.Status != StatusDone {
		ts := now.UTC()
		t.CompletedDate = &ts
	}
	if s != StatusDone {
		t.CompletedDate = nil
	}
	t.Status = s
}

// FilterStatus keeps tasks in the given status, preserving order.
func FilterStatus(all []Task, s Status) []Task {
	out := make([]Task, 0, len(all))
	for _, t := range all {
		if t.Status == s {
			out = append(out, t)
		}
	}
	return out
}
