// Package feedback records accept/ignore outcomes of suggestions as an
// append-only event log. Events are never updated or deleted.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"priority-agent-backend/internal/db"
	"priority-agent-backend/internal/scoring"
)

type Outcome string

const (
	Accepted Outcome = "accepted"
	Ignored  Outcome = "ignored"
)

type Event struct {
	ID        uuid.UUID        `json:"id"`
	Session   string           `json:"session"`
	TaskID    int64            `json:"task_id"`
	Features  scoring.Features `json:"features"`
	Outcome   Outcome          `json:"outcome"`
	At        time.Time        `json:"at"`
	SourceKey string           `json:"source_event_key,omitempty"`
	Envelope  Envelope         `json:"envelope"`
}

func NewEvent(session string, taskID int64, f scoring.Features, outcome Outcome, at time.Time) Event {
	return Event{
		ID:       uuid.New(),
		Session:  session,
		TaskID:   taskID,
		Features: f,
		Outcome:  outcome,
		At:       at.UTC(),
		Envelope: Envelope{Platform: "unknown"},
	}
}

// keyNamespace scopes ids derived from client idempotency keys.
var keyNamespace = uuid.MustParse("6f1c2a4e-93b7-4d0a-9c1e-5b8f0d2e7a41")

// KeyedID derives a stable event id from a source key, so every retry of
// the same client action carries the same id.
func KeyedID(sourceKey string) uuid.UUID {
	return uuid.NewSHA1(keyNamespace, []byte(sourceKey))
}

// Log appends events. Append reports false when an event with the same
// source key already exists; nothing is written in that case.
type Log interface {
	Append(ctx context.Context, e Event) (bool, error)
}

type MemoryLog struct {
	mu     sync.Mutex
	events []Event
	keys   map[string]struct{}
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{keys: make(map[string]struct{})}
}

func (l *MemoryLog) Append(_ context.Context, e Event) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.SourceKey != "" {
		if _, dup := l.keys[e.SourceKey]; dup {
			return false, nil
		}
		l.keys[e.SourceKey] = struct{}{}
	}
	l.events = append(l.events, e)
	return true, nil
}

// Events returns a copy of everything recorded so far, oldest first.
func (l *MemoryLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

type SQLLog struct {
	db *db.DB
}

func NewSQLLog(database *db.DB) *SQLLog {
	return &SQLLog{db: database}
}

func (l *SQLLog) Append(ctx context.Context, e Event) (bool, error) {
	features, err := json.Marshal(e.Features)
	if err != nil {
		return false, fmt.Errorf("encode features: %w", err)
	}

	var sourceKey any
	if e.SourceKey != "" {
		sourceKey = e.SourceKey
	}

	_, err = l.db.ExecContext(ctx, l.db.Rebind(`
		INSERT INTO feedback_events (
			id, session_id, task_id, outcome, features,
			platform, app_version, source_event_key, event_time
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`),
		e.ID.String(),
		e.Session,
		e.TaskID,
		string(e.Outcome),
		string(features),
		e.Envelope.Platform,
		e.Envelope.AppVersion,
		sourceKey,
		e.At,
	)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("append feedback event: %w: %v", db.ErrUnavailable, err)
	}
	return true, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
