// Package stress derives the per-session high-stress flag from the current
// workload, with hysteresis so small task-set changes do not make it flap.
package stress

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"priority-agent-backend/internal/scoring"
	"priority-agent-backend/internal/tasks"
)

type Params struct {
	// Signal = UrgentWeight*urgent_count + LoadWeight*sum(duration*stress).
	UrgentWeight float64 `yaml:"urgent_weight"`
	LoadWeight   float64 `yaml:"load_weight"`
	Entry        float64 `yaml:"entry_threshold"`
	Exit         float64 `yaml:"exit_threshold"`
}

func DefaultParams() Params {
	return Params{
		UrgentWeight: 1.0,
		LoadWeight:   0.25,
		Entry:        5.0,
		Exit:         3.0,
	}
}

func (p Params) Validate() error {
	if p.Entry <= p.Exit {
		return fmt.Errorf("entry threshold (%v) must be greater than exit threshold (%v)", p.Entry, p.Exit)
	}
	if p.UrgentWeight < 0 || p.LoadWeight < 0 {
		return fmt.Errorf("signal weights must be non-negative")
	}
	return nil
}

// Transition is what one evaluation did to the mode.
type Transition int

const (
	Unchanged Transition = iota
	Entered
	Exited
)

// MaxSessions caps the remembered modes. An evicted session starts calm.
const MaxSessions = 4096

type Monitor struct {
	params Params
	scorer *scoring.Scorer

	mu    sync.Mutex
	modes *lru.Cache[string, bool]

	// OnTransition, when set, is called after the mode flips.
	OnTransition func(session string, t Transition)
}

func NewMonitor(p Params, scorer *scoring.Scorer) (*Monitor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	modes, err := lru.New[string, bool](MaxSessions)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		params: p,
		scorer: scorer,
		modes:  modes,
	}, nil
}

// Signal aggregates backlog and doing tasks into one load number.
func (m *Monitor) Signal(all []tasks.Task) float64 {
	urgent := 0
	load := 0.0
	for _, t := range all {
		if !t.Status.Active() {
			continue
		}
		if m.scorer.UrgencyLevel(t) == scoring.UrgencyUrgent {
			urgent++
		}
		load += t.Duration * t.Stress
	}
	return m.params.UrgentWeight*float64(urgent) + m.params.LoadWeight*load
}

// Next is the hysteresis rule: enter above Entry, leave only below Exit.
func (m *Monitor) Next(prev bool, signal float64) bool {
	if prev {
		return signal >= m.params.Exit
	}
	return signal > m.params.Entry
}

// IsHighStress evaluates the session's mode against the given task snapshot
// and remembers the result for the next call.
func (m *Monitor) IsHighStress(session string, all []tasks.Task) bool {
	signal := m.Signal(all)

	m.mu.Lock()
	prev, _ := m.modes.Get(session)
	next := m.Next(prev, signal)
	m.modes.Add(session, next)
	m.mu.Unlock()

	if prev != next && m.OnTransition != nil {
		tr := Exited
		if next {
			tr = Entered
		}
		m.OnTransition(session, tr)
	}
	return next
}

// Current reports the last evaluated mode without re-evaluating.
func (m *Monitor) Current(session string) bool {
	high, _ := m.modes.Peek(session)
	return high
}
