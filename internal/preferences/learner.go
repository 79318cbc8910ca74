package preferences

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"priority-agent-backend/internal/feedback"
	"priority-agent-backend/internal/scoring"
)

// WeightStore persists one weight vector per session.
type WeightStore interface {
	LoadWeights(ctx context.Context, session string) (scoring.Weights, bool, error)
	SaveWeights(ctx context.Context, session string, w scoring.Weights) error
}

// state is the PreferenceState of one session. mu is held for the whole
// compute-persist-commit sequence so updates are applied one at a time.
type state struct {
	mu      sync.Mutex
	loaded  bool
	weights scoring.Weights
	applied *lru.Cache[uuid.UUID, struct{}]
}

// MaxSessions caps the sessions held in memory. An evicted session reloads
// its weights from the store on next use.
const MaxSessions = 4096

type Learner struct {
	params   Params
	defaults scoring.Weights
	store    WeightStore

	mu       sync.Mutex
	sessions *lru.Cache[string, *state]
}

func NewLearner(p Params, defaults scoring.Weights, store WeightStore) (*Learner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = NewMemoryStore()
	}
	sessions, err := lru.New[string, *state](MaxSessions)
	if err != nil {
		return nil, err
	}
	return &Learner{
		params:   p,
		defaults: Bound(p, defaults),
		store:    store,
		sessions: sessions,
	}, nil
}

func (l *Learner) Params() Params {
	return l.params
}

func (l *Learner) session(id string) *state {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.sessions.Get(id)
	if !ok {
		// lru.New only errors on a non-positive size, which Validate rejects.
		applied, _ := lru.New[uuid.UUID, struct{}](l.params.DedupSize)
		st = &state{applied: applied}
		l.sessions.Add(id, st)
	}
	return st
}

// load must be called with st.mu held.
func (l *Learner) load(ctx context.Context, session string, st *state) error {
	if st.loaded {
		return nil
	}
	w, ok, err := l.store.LoadWeights(ctx, session)
	if err != nil {
		return fmt.Errorf("load weights for %q: %w", session, err)
	}
	if ok {
		st.weights = Bound(l.params, w)
	} else {
		st.weights = l.defaults
	}
	st.loaded = true
	return nil
}

// Weights returns a snapshot of the session's current vector.
func (l *Learner) Weights(ctx context.Context, session string) (scoring.Weights, error) {
	st := l.session(session)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := l.load(ctx, session, st); err != nil {
		return scoring.Weights{}, err
	}
	return st.weights, nil
}

// Apply consumes one feedback event. It reports false, with the weights
// unchanged, when the event id was already applied.
func (l *Learner) Apply(ctx context.Context, session string, e feedback.Event) (scoring.Weights, bool, error) {
	st := l.session(session)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := l.load(ctx, session, st); err != nil {
		return scoring.Weights{}, false, err
	}
	if st.applied.Contains(e.ID) {
		return st.weights, false, nil
	}

	next := Update(l.params, st.weights, e)
	if err := l.store.SaveWeights(ctx, session, next); err != nil {
		return st.weights, false, fmt.Errorf("save weights for %q: %w", session, err)
	}

	st.weights = next
	st.applied.Add(e.ID, struct{}{})
	return next, true, nil
}

// Set replaces the session's vector after bounding it.
func (l *Learner) Set(ctx context.Context, session string, w scoring.Weights) (scoring.Weights, error) {
	st := l.session(session)
	st.mu.Lock()
	defer st.mu.Unlock()

	next := Bound(l.params, w)
	if err := l.store.SaveWeights(ctx, session, next); err != nil {
		return scoring.Weights{}, fmt.Errorf("save weights for %q: %w", session, err)
	}
	st.weights = next
	st.loaded = true
	return next, nil
}

func (l *Learner) Reset(ctx context.Context, session string) (scoring.Weights, error) {
	return l.Set(ctx, session, l.defaults)
}
