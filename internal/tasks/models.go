package tasks

import (
	"errors"
	"time"

	"priority-agent-backend/internal/db"
)

type Status string

const (
	StatusBacklog Status = "backlog"
	StatusDoing   Status = "doing"
	StatusDone    Status = "done"
)

// ParseStatus accepts only backlog|doing|done.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusBacklog, StatusDoing, StatusDone:
		return Status(s), true
	}
	return "", false
}

// Active reports whether the task still counts towards the workload.
func (s Status) Active() bool {
	return s == StatusBacklog || s == StatusDoing
}

type Task struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Deadline      int        `json:"deadline"`
	Duration      float64    `json:"duration"`
	Importance    float64    `json:"importance"`
	Stress        float64    `json:"stress"`
	Fun           float64    `json:"fun"`
	PenaltyLate   float64    `json:"penalty_late"`
	Status        Status     `json:"status"`
	IgnoredCount  int        `json:"ignored_count"`
	CompletedDate *time.Time `json:"completed_date"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Draft is a validated creation request.
type Draft struct {
	Title       string
	Description string
	Deadline    int
	Duration    float64
	Importance  float64
	Stress      float64
	Fun         float64
	PenaltyLate float64
	Status      Status
}

// Patch carries an attribute edit; nil fields are left untouched.
type Patch struct {
	Title       *string
	Description *string
	Deadline    *int
	Duration    *float64
	Importance  *float64
	Stress      *float64
	Fun         *float64
	PenaltyLate *float64
}

func (p Patch) apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Deadline != nil {
		t.Deadline = *p.Deadline
	}
	if p.Duration != nil {
		t.Duration = *p.Duration
	}
	if p.Importance != nil {
		t.Importance = *p.Importance
	}
	if p.Stress != nil {
		t.Stress = *p.Stress
	}
	if p.Fun != nil {
		t.Fun = *p.Fun
	}
	if p.PenaltyLate != nil {
		t.PenaltyLate = *p.PenaltyLate
	}
}

var (
	ErrNotFound = errors.New("task not found")
	ErrUnavailable = db.ErrUnavailable
)
