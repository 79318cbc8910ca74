// Package agent picks the next action for a session and runs the
// suggest -> accept/ignore lifecycle that feeds the preference learner.
package agent

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"priority-agent-backend/internal/feedback"
	"priority-agent-backend/internal/metrics"
	"priority-agent-backend/internal/preferences"
	"priority-agent-backend/internal/scoring"
	"priority-agent-backend/internal/stress"
	"priority-agent-backend/internal/tasks"
)

// Multipliers reshape the weights while the session is in high-stress mode.
type Multipliers struct {
	Importance float64 `yaml:"importance"`
	Urgency    float64 `yaml:"urgency"`
	Fun        float64 `yaml:"fun"`
	Stress     float64 `yaml:"stress"`
	Penalty    float64 `yaml:"penalty"`
}

func (m Multipliers) apply(w scoring.Weights) scoring.Weights {
	return scoring.Weights{
		Importance: w.Importance * m.Importance,
		Urgency:    w.Urgency * m.Urgency,
		Fun:        w.Fun * m.Fun,
		Stress:     w.Stress * m.Stress,
		Penalty:    w.Penalty * m.Penalty,
	}
}

type Params struct {
	Cooldown        time.Duration `yaml:"cooldown"`
	CooldownEntries int           `yaml:"cooldown_entries"`
	HighStress      Multipliers   `yaml:"high_stress"`
}

func DefaultParams() Params {
	return Params{
		Cooldown:        30 * time.Minute,
		CooldownEntries: 1024,
		HighStress: Multipliers{
			Importance: 1.4,
			Urgency:    1.3,
			Fun:        0.3,
			Stress:     0.5,
			Penalty:    1.2,
		},
	}
}

func (p Params) Validate() error {
	if p.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be positive, got %v", p.Cooldown)
	}
	if p.CooldownEntries <= 0 {
		return fmt.Errorf("cooldown_entries must be positive, got %d", p.CooldownEntries)
	}
	m := p.HighStress
	if m.Importance < 0 || m.Urgency < 0 || m.Fun < 0 || m.Stress < 0 || m.Penalty < 0 {
		return fmt.Errorf("high-stress multipliers must be non-negative")
	}
	return nil
}

const (
	ReasonUrgency    = "deadline near"
	ReasonImportance = "high importance"
	ReasonFun        = "enjoyable task"
	ReasonPenalty    = "late penalty risk"
	ReasonDefault    = "best cost-benefit"
)

// Recommendation is recomputed on every request and never stored.
type Recommendation struct {
	Task                scoring.Ranked `json:"task"`
	Utility             float64        `json:"utility"`
	Reason              string         `json:"reason"`
	Highlights          []string       `json:"highlights"`
	EstimatedFinishTime time.Time      `json:"estimated_finish_time"`
	HighStressMode      bool           `json:"high_stress_mode"`
}

// IgnoreResult describes what an ignore did.
type IgnoreResult struct {
	Task          tasks.Task
	CooldownUntil time.Time
	// Recorded is false when the call only refreshed a running cool-down
	// or replayed an already recorded idempotency key.
	Recorded bool
}

// session is the advisory state of one session. A cycle starts with every
// successful NextAction; accepts are deduplicated within a cycle.
type session struct {
	mu        sync.Mutex
	cycle     uint64
	suggested int64
	accepted  map[int64]struct{}
	cooldown  *lru.Cache[int64, time.Time]
}

func (s *session) coolingDown(id int64, now time.Time) bool {
	until, ok := s.cooldown.Get(id)
	if !ok {
		return false
	}
	if !now.Before(until) {
		s.cooldown.Remove(id)
		return false
	}
	return true
}

// MaxSessions caps the advisory state kept in memory. The least recently
// used session is dropped first and starts over with no cool-downs.
const MaxSessions = 4096

type Advisor struct {
	params  Params
	store   tasks.Store
	scorer  *scoring.Scorer
	learner *preferences.Learner
	monitor *stress.Monitor
	events  feedback.Log
	metrics *metrics.Metrics
	logger  *log.Logger

	// now is replaced in tests.
	now func() time.Time

	mu       sync.Mutex
	sessions *lru.Cache[string, *session]
}

type Deps struct {
	Store   tasks.Store
	Scorer  *scoring.Scorer
	Learner *preferences.Learner
	Monitor *stress.Monitor
	Events  feedback.Log
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

func NewAdvisor(p Params, d Deps) (*Advisor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if d.Store == nil || d.Scorer == nil || d.Learner == nil || d.Monitor == nil || d.Events == nil {
		return nil, fmt.Errorf("advisor: store, scorer, learner, monitor and events are required")
	}
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	sessions, err := lru.New[string, *session](MaxSessions)
	if err != nil {
		return nil, err
	}
	return &Advisor{
		params:   p,
		store:    d.Store,
		scorer:   d.Scorer,
		learner:  d.Learner,
		monitor:  d.Monitor,
		events:   d.Events,
		metrics:  d.Metrics,
		logger:   logger,
		now:      time.Now,
		sessions: sessions,
	}, nil
}

func (a *Advisor) session(id string) *session {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions.Get(id)
	if !ok {
		// lru.New only errors on a non-positive size, which Validate rejects.
		cooldown, _ := lru.New[int64, time.Time](a.params.CooldownEntries)
		s = &session{accepted: make(map[int64]struct{}), cooldown: cooldown}
		a.sessions.Add(id, s)
	}
	return s
}

// Weights returns the vector used for selection: the learned weights,
// reshaped by the high-stress multipliers when the mode is on.
func (a *Advisor) Weights(ctx context.Context, sessionID string, all []tasks.Task) (scoring.Weights, bool, error) {
	w, err := a.learner.Weights(ctx, sessionID)
	if err != nil {
		return scoring.Weights{}, false, err
	}
	high := a.monitor.IsHighStress(sessionID, all)
	if high {
		w = a.params.HighStress.apply(w)
	}
	return w, high, nil
}

// Rank orders every backlog task for the session. Cool-downs do not apply.
func (a *Advisor) Rank(ctx context.Context, sessionID string) ([]scoring.Ranked, error) {
	all, err := a.store.List(ctx)
	if err != nil {
		return nil, err
	}
	w, _, err := a.Weights(ctx, sessionID, all)
	if err != nil {
		return nil, err
	}
	ranked := a.scorer.Rank(all, w)
	a.metrics.Ranked(len(ranked))
	return ranked, nil
}

// NextAction returns the best task outside its cool-down. ok is false when
// nothing is eligible, which is not an error.
func (a *Advisor) NextAction(ctx context.Context, sessionID string) (Recommendation, bool, error) {
	all, err := a.store.List(ctx)
	if err != nil {
		return Recommendation{}, false, err
	}
	w, high, err := a.Weights(ctx, sessionID, all)
	if err != nil {
		return Recommendation{}, false, err
	}
	ranked := a.scorer.Rank(all, w)
	a.metrics.Ranked(len(ranked))

	now := a.now()
	s := a.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range ranked {
		if s.coolingDown(r.ID, now) {
			continue
		}

		s.cycle++
		s.suggested = r.ID
		clear(s.accepted)
		a.metrics.Suggestion(true)

		return Recommendation{
			Task:                r,
			Utility:             r.Utility,
			Reason:              Reason(r.Terms),
			Highlights:          Highlights(r),
			EstimatedFinishTime: finishTime(now, r.Duration),
			HighStressMode:      high,
		}, true, nil
	}

	a.metrics.Suggestion(false)
	return Recommendation{}, false, nil
}

// finishTime adds a duration in hours to now, saturating instead of
// overflowing time.Duration.
func finishTime(now time.Time, hours float64) time.Time {
	d := time.Duration(math.MaxInt64)
	if hours < float64(math.MaxInt64)/float64(time.Hour) {
		d = time.Duration(hours * float64(time.Hour))
	}
	return now.Add(d).UTC()
}

// Accept moves the task to doing and records an accepted event. A second
// accept of the same task in the same cycle changes nothing.
func (a *Advisor) Accept(ctx context.Context, sessionID string, id int64) (tasks.Task, error) {
	s := a.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return a.accept(ctx, sessionID, s, id)
}

// AcceptIfSuggested runs Accept only when id is the session's outstanding
// suggestion. accepted is false otherwise and nothing is touched.
func (a *Advisor) AcceptIfSuggested(ctx context.Context, sessionID string, id int64) (tasks.Task, bool, error) {
	s := a.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.suggested != id {
		return tasks.Task{}, false, nil
	}
	t, err := a.accept(ctx, sessionID, s, id)
	if err != nil {
		return tasks.Task{}, false, err
	}
	return t, true, nil
}

// accept must be called with s.mu held.
func (a *Advisor) accept(ctx context.Context, sessionID string, s *session, id int64) (tasks.Task, error) {
	t, err := a.store.Get(ctx, id)
	if err != nil {
		return tasks.Task{}, err
	}
	if _, done := s.accepted[id]; done {
		return t, nil
	}

	features := a.scorer.Features(t)
	updated, err := a.store.SetStatus(ctx, id, tasks.StatusDoing)
	if err != nil {
		return tasks.Task{}, err
	}

	if _, err := a.record(ctx, sessionID, id, features, feedback.Accepted); err != nil {
		return tasks.Task{}, err
	}

	s.accepted[id] = struct{}{}
	if s.suggested == id {
		s.suggested = 0
	}
	s.cooldown.Remove(id)
	return updated, nil
}

// Ignore records an ignored event, bumps ignored_count and starts the
// task's cool-down. While the cool-down runs, repeated ignores only
// refresh it.
func (a *Advisor) Ignore(ctx context.Context, sessionID string, id int64) (IgnoreResult, error) {
	t, err := a.store.Get(ctx, id)
	if err != nil {
		return IgnoreResult{}, err
	}

	s := a.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := a.now()
	until := now.Add(a.params.Cooldown).UTC()

	if s.coolingDown(id, now) {
		s.cooldown.Add(id, until)
		return IgnoreResult{Task: t, CooldownUntil: until}, nil
	}

	recorded, err := a.record(ctx, sessionID, id, a.scorer.Features(t), feedback.Ignored)
	if err != nil {
		return IgnoreResult{}, err
	}
	if recorded {
		if t, err = a.store.IncrementIgnored(ctx, id); err != nil {
			return IgnoreResult{}, err
		}
	}

	s.cooldown.Add(id, until)
	if s.suggested == id {
		s.suggested = 0
	}
	return IgnoreResult{Task: t, CooldownUntil: until, Recorded: recorded}, nil
}

// record appends the event and feeds it to the learner. It reports false
// when the event had already been applied. A keyed event keeps the same id
// across retries, so a retry after a failed apply still reaches the
// learner, whose dedup keeps consumption to exactly once.
func (a *Advisor) record(ctx context.Context, sessionID string, id int64, f scoring.Features, outcome feedback.Outcome) (bool, error) {
	meta := feedback.MetaFromContext(ctx)
	e := feedback.NewEvent(sessionID, id, f, outcome, a.now())
	e.Envelope = meta.Envelope
	if meta.SourceKey != "" {
		e.ID = feedback.KeyedID(meta.SourceKey)
		e.SourceKey = meta.SourceKey
	}

	fresh, err := a.events.Append(ctx, e)
	if err != nil {
		return false, fmt.Errorf("append %s event: %w", outcome, err)
	}

	_, applied, err := a.learner.Apply(ctx, sessionID, e)
	if err != nil {
		return false, fmt.Errorf("apply %s event: %w", outcome, err)
	}
	if !applied {
		a.logger.Debug("feedback replay skipped", "session", sessionID, "task_id", id, "source_event_key", e.SourceKey)
		return false, nil
	}
	if !fresh {
		a.logger.Warn("feedback applied on retry", "session", sessionID, "task_id", id, "source_event_key", e.SourceKey)
	}

	a.metrics.Feedback(string(outcome))
	a.logger.Info("feedback recorded", "session", sessionID, "task_id", id, "outcome", outcome, "platform", e.Envelope.Platform)
	return true, nil
}

// Reason labels the dominant weighted term.
func Reason(t scoring.Terms) string {
	best, label := 0.0, ReasonDefault
	for _, c := range []struct {
		v     float64
		label string
	}{
		{t.Urgency, ReasonUrgency},
		{t.Importance, ReasonImportance},
		{t.Penalty, ReasonPenalty},
		{t.Fun, ReasonFun},
	} {
		if c.v > best {
			best, label = c.v, c.label
		}
	}
	return label
}

func Highlights(r scoring.Ranked) []string {
	out := []string{}
	if r.UrgencyLevel == scoring.UrgencyUrgent {
		out = append(out, "urgent")
	}
	if r.ImportanceLevel == scoring.ImportanceHigh {
		out = append(out, "high importance")
	}
	if r.Duration <= 2 {
		out = append(out, "quick win")
	}
	if r.Stress < 0.3 {
		out = append(out, "low stress")
	}
	if r.Fun > 0.7 {
		out = append(out, "enjoyable")
	}
	return out
}
