package preferences

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"priority-agent-backend/internal/db"
	"priority-agent-backend/internal/scoring"
)

type MemoryStore struct {
	mu      sync.RWMutex
	weights map[string]scoring.Weights
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{weights: make(map[string]scoring.Weights)}
}

func (s *MemoryStore) LoadWeights(_ context.Context, session string) (scoring.Weights, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.weights[session]
	return w, ok, nil
}

func (s *MemoryStore) SaveWeights(_ context.Context, session string, w scoring.Weights) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights[session] = w
	return nil
}

type SQLStore struct {
	db *db.DB
}

func NewSQLStore(database *db.DB) *SQLStore {
	return &SQLStore{db: database}
}

func (s *SQLStore) LoadWeights(ctx context.Context, session string) (scoring.Weights, bool, error) {
	var w scoring.Weights
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT importance, urgency, fun, stress, penalty
		FROM preference_weights
		WHERE session_id = $1
	`), session).Scan(&w.Importance, &w.Urgency, &w.Fun, &w.Stress, &w.Penalty)
	if errors.Is(err, sql.ErrNoRows) {
		return scoring.Weights{}, false, nil
	}
	if err != nil {
		return scoring.Weights{}, false, fmt.Errorf("load weights: %w: %v", db.ErrUnavailable, err)
	}
	return w, true, nil
}

func (s *SQLStore) SaveWeights(ctx context.Context, session string, w scoring.Weights) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO preference_weights (session_id, importance, urgency, fun, stress, penalty, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			importance = EXCLUDED.importance,
			urgency = EXCLUDED.urgency,
			fun = EXCLUDED.fun,
			stress = EXCLUDED.stress,
			penalty = EXCLUDED.penalty,
			updated_at = EXCLUDED.updated_at
	`), session, w.Importance, w.Urgency, w.Fun, w.Stress, w.Penalty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save weights: %w: %v", db.ErrUnavailable, err)
	}
	return nil
}
