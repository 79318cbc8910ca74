package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"priority-agent-backend/internal/feedback"
	"priority-agent-backend/internal/logging"
	"priority-agent-backend/internal/metrics"
	"priority-agent-backend/internal/preferences"
	"priority-agent-backend/internal/scoring"
	"priority-agent-backend/internal/stress"
	"priority-agent-backend/internal/tasks"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	advisor *Advisor
	store   *tasks.MemoryStore
	events  *feedback.MemoryLog
	learner *preferences.Learner
	clock   *time.Time
}

func newFixture(t *testing.T, p Params, sp stress.Params) *fixture {
	t.Helper()
	return newFixtureWithWeights(t, p, sp, nil)
}

func newFixtureWithWeights(t *testing.T, p Params, sp stress.Params, weights preferences.WeightStore) *fixture {
	t.Helper()

	scorer := scoring.NewScorer(scoring.DefaultParams())
	learner, err := preferences.NewLearner(preferences.DefaultParams(), scoring.DefaultWeights(), weights)
	require.NoError(t, err)
	monitor, err := stress.NewMonitor(sp, scorer)
	require.NoError(t, err)

	f := &fixture{
		store:   tasks.NewMemoryStore(),
		events:  feedback.NewMemoryLog(),
		learner: learner,
	}
	now := t0
	f.clock = &now

	f.advisor, err = NewAdvisor(p, Deps{
		Store:   f.store,
		Scorer:  scorer,
		Learner: learner,
		Monitor: monitor,
		Events:  f.events,
		Metrics: metrics.MustNewMetrics(prometheus.NewRegistry()),
		Logger:  logging.Discard(),
	})
	require.NoError(t, err)
	f.advisor.now = func() time.Time { return *f.clock }
	return f
}

func defaultFixture(t *testing.T) *fixture {
	return newFixture(t, DefaultParams(), stress.DefaultParams())
}

func (f *fixture) add(t *testing.T, d tasks.Draft) tasks.Task {
	t.Helper()
	created, err := f.store.Create(context.Background(), d)
	require.NoError(t, err)
	return created
}

func calmTask(title string) tasks.Draft {
	return tasks.Draft{Title: title, Deadline: 10, Duration: 1, Importance: 0.5, Stress: 0.2, Fun: 0.5, PenaltyLate: 0.1}
}

func TestNextActionEmptyIsNotAnError(t *testing.T) {
	f := defaultFixture(t)

	_, ok, err := f.advisor.NextAction(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	created := f.add(t, calmTask("doing already"))
	_, err = f.store.SetStatus(context.Background(), created.ID, tasks.StatusDoing)
	require.NoError(t, err)

	_, ok, err = f.advisor.NextAction(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, ok, "only backlog tasks are eligible")
}

func TestNextActionBuildsRecommendation(t *testing.T) {
	f := defaultFixture(t)
	f.add(t, calmTask("calm"))
	urgent := f.add(t, tasks.Draft{
		Title: "report", Deadline: 0, Duration: 2,
		Importance: 0.9, Stress: 0.1, Fun: 0.2, PenaltyLate: 0.8,
	})

	rec, ok, err := f.advisor.NextAction(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, urgent.ID, rec.Task.ID)
	assert.Equal(t, rec.Task.Utility, rec.Utility)
	assert.Equal(t, ReasonUrgency, rec.Reason)
	assert.Equal(t, []string{"urgent", "high importance", "quick win", "low stress"}, rec.Highlights)
	assert.Equal(t, t0.Add(2*time.Hour), rec.EstimatedFinishTime)
	assert.False(t, rec.HighStressMode)
}

func TestIgnoreSuppressesWithinCooldown(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()
	a := f.add(t, calmTask("a"))
	b := f.add(t, calmTask("b"))

	first, ok, err := f.advisor.NextAction(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a.ID, first.Task.ID, "identical features tie-break on id")

	_, err = f.advisor.Ignore(ctx, "s1", a.ID)
	require.NoError(t, err)

	next, ok, err := f.advisor.NextAction(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b.ID, next.Task.ID)

	_, err = f.advisor.Ignore(ctx, "s1", b.ID)
	require.NoError(t, err)
	_, ok, err = f.advisor.NextAction(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok, "everything is cooling down")

	*f.clock = t0.Add(31 * time.Minute)
	again, ok, err := f.advisor.NextAction(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, []int64{a.ID, b.ID}, again.Task.ID)

	_, ok, err = f.advisor.NextAction(ctx, "other")
	require.NoError(t, err)
	assert.True(t, ok, "cool-downs are per session")
}

func TestReIgnoreOnlyRefreshesCooldown(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()
	a := f.add(t, calmTask("a"))

	first, err := f.advisor.Ignore(ctx, "s1", a.ID)
	require.NoError(t, err)
	assert.True(t, first.Recorded)
	assert.Equal(t, 1, first.Task.IgnoredCount)
	assert.Equal(t, t0.Add(30*time.Minute), first.CooldownUntil)

	weights, err := f.learner.Weights(ctx, "s1")
	require.NoError(t, err)

	*f.clock = t0.Add(10 * time.Minute)
	second, err := f.advisor.Ignore(ctx, "s1", a.ID)
	require.NoError(t, err)
	assert.False(t, second.Recorded)
	assert.Equal(t, 1, second.Task.IgnoredCount)
	assert.Equal(t, t0.Add(40*time.Minute), second.CooldownUntil)

	after, err := f.learner.Weights(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, weights, after, "feedback is not double-counted")
	assert.Len(t, f.events.Events(), 1)
}

func TestIgnoreUnknownTaskHasNoEffect(t *testing.T) {
	f := defaultFixture(t)

	_, err := f.advisor.Ignore(context.Background(), "s1", 404)
	assert.ErrorIs(t, err, tasks.ErrNotFound)
	assert.Empty(t, f.events.Events())
}

func TestIgnoreReplayedSourceKeyIsSkipped(t *testing.T) {
	p := DefaultParams()
	p.Cooldown = time.Second
	f := newFixture(t, p, stress.DefaultParams())
	a := f.add(t, calmTask("a"))

	ctx := feedback.WithMeta(context.Background(), feedback.Meta{
		Envelope:  feedback.Envelope{Platform: "web"},
		SourceKey: "tap-1",
	})

	first, err := f.advisor.Ignore(ctx, "s1", a.ID)
	require.NoError(t, err)
	assert.True(t, first.Recorded)

	*f.clock = t0.Add(time.Minute)
	second, err := f.advisor.Ignore(ctx, "s1", a.ID)
	require.NoError(t, err)
	assert.False(t, second.Recorded)
	assert.Equal(t, 1, second.Task.IgnoredCount)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "web", events[0].Envelope.Platform)
	assert.Equal(t, feedback.Ignored, events[0].Outcome)
}

// flakyWeights fails the next `failures` saves.
type flakyWeights struct {
	*preferences.MemoryStore
	failures int
}

func (s *flakyWeights) SaveWeights(ctx context.Context, session string, w scoring.Weights) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}
	return s.MemoryStore.SaveWeights(ctx, session, w)
}

func TestIgnoreRetryAfterFailedLearnerApplies(t *testing.T) {
	store := &flakyWeights{MemoryStore: preferences.NewMemoryStore(), failures: 1}
	f := newFixtureWithWeights(t, DefaultParams(), stress.DefaultParams(), store)
	a := f.add(t, calmTask("a"))
	ctx := feedback.WithMeta(context.Background(), feedback.Meta{SourceKey: "k1"})

	before, err := f.learner.Weights(ctx, "s1")
	require.NoError(t, err)

	_, err = f.advisor.Ignore(ctx, "s1", a.ID)
	require.Error(t, err)
	require.Len(t, f.events.Events(), 1, "the event is logged before the learner runs")

	retry, err := f.advisor.Ignore(ctx, "s1", a.ID)
	require.NoError(t, err)
	assert.True(t, retry.Recorded)
	assert.Equal(t, 1, retry.Task.IgnoredCount)

	after, err := f.learner.Weights(ctx, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Len(t, f.events.Events(), 1)

	*f.clock = t0.Add(time.Hour)
	again, err := f.advisor.Ignore(ctx, "s1", a.ID)
	require.NoError(t, err)
	assert.False(t, again.Recorded, "the key was consumed once")
	assert.Equal(t, 1, again.Task.IgnoredCount)

	final, err := f.learner.Weights(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, after, final)
}

func TestAcceptRetryAfterFailedLearnerApplies(t *testing.T) {
	store := &flakyWeights{MemoryStore: preferences.NewMemoryStore(), failures: 1}
	f := newFixtureWithWeights(t, DefaultParams(), stress.DefaultParams(), store)
	a := f.add(t, calmTask("a"))
	ctx := feedback.WithMeta(context.Background(), feedback.Meta{SourceKey: "tap-9"})

	_, err := f.advisor.Accept(ctx, "s1", a.ID)
	require.Error(t, err)

	got, err := f.advisor.Accept(ctx, "s1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusDoing, got.Status)

	w, err := f.learner.Weights(ctx, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, scoring.DefaultWeights(), w)
}

func TestEstimatedFinishTimeSaturates(t *testing.T) {
	assert.Equal(t, t0.Add(8760*time.Hour), finishTime(t0, 8760))

	far := finishTime(t0, 3e6)
	assert.True(t, far.After(t0), "overflowing durations must not land in the past")
	assert.Equal(t, t0.Add(time.Duration(math.MaxInt64)).UTC(), far)
}

func TestSessionStateIsCapped(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()
	a := f.add(t, calmTask("a"))

	_, err := f.advisor.Ignore(ctx, "first", a.ID)
	require.NoError(t, err)
	for i := 0; i < MaxSessions; i++ {
		f.advisor.session(fmt.Sprintf("s%d", i))
	}
	assert.Equal(t, MaxSessions, f.advisor.sessions.Len())
	assert.False(t, f.advisor.sessions.Contains("first"))

	rec, ok, err := f.advisor.NextAction(ctx, "first")
	require.NoError(t, err)
	require.True(t, ok, "an evicted session starts without cool-downs")
	assert.Equal(t, a.ID, rec.Task.ID)
}

func TestAcceptIsIdempotentWithinCycle(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()
	a := f.add(t, calmTask("a"))

	got, err := f.advisor.Accept(ctx, "s1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusDoing, got.Status)

	weights, err := f.learner.Weights(ctx, "s1")
	require.NoError(t, err)

	_, err = f.advisor.Accept(ctx, "s1", a.ID)
	require.NoError(t, err)

	after, err := f.learner.Weights(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, weights, after)
	require.Len(t, f.events.Events(), 1)
	assert.Equal(t, feedback.Accepted, f.events.Events()[0].Outcome)

	_, err = f.advisor.Accept(ctx, "s1", 404)
	assert.ErrorIs(t, err, tasks.ErrNotFound)
}

func TestAcceptIfSuggested(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()
	a := f.add(t, calmTask("a"))
	b := f.add(t, calmTask("b"))

	_, accepted, err := f.advisor.AcceptIfSuggested(ctx, "s1", a.ID)
	require.NoError(t, err)
	assert.False(t, accepted, "nothing suggested yet")

	rec, ok, err := f.advisor.NextAction(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a.ID, rec.Task.ID)

	_, accepted, err = f.advisor.AcceptIfSuggested(ctx, "s1", b.ID)
	require.NoError(t, err)
	assert.False(t, accepted)

	got, accepted, err := f.advisor.AcceptIfSuggested(ctx, "s1", a.ID)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, tasks.StatusDoing, got.Status)
	assert.Len(t, f.events.Events(), 1)
}

func TestHighStressReshapesWeights(t *testing.T) {
	f := newFixture(t, DefaultParams(), stress.Params{UrgentWeight: 1, LoadWeight: 0, Entry: 0.5, Exit: 0.1})
	ctx := context.Background()
	f.add(t, tasks.Draft{Title: "urgent", Deadline: 0, Duration: 3, Importance: 0.5, Stress: 0.5, Fun: 0.5, PenaltyLate: 0.5})

	all, err := f.store.List(ctx)
	require.NoError(t, err)

	w, high, err := f.advisor.Weights(ctx, "s1", all)
	require.NoError(t, err)
	require.True(t, high)

	base, err := f.learner.Weights(ctx, "s1")
	require.NoError(t, err)
	assert.InDelta(t, base.Importance*1.4, w.Importance, 1e-12)
	assert.InDelta(t, base.Fun*0.3, w.Fun, 1e-12)
	assert.InDelta(t, base.Stress*0.5, w.Stress, 1e-12)

	rec, ok, err := f.advisor.NextAction(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.HighStressMode)
}

func TestRankReturnsAllBacklogInOrder(t *testing.T) {
	f := defaultFixture(t)
	ctx := context.Background()
	low := f.add(t, tasks.Draft{Title: "low", Deadline: 20, Duration: 1, Importance: 0.1, Stress: 0.9})
	high := f.add(t, tasks.Draft{Title: "high", Deadline: 0, Duration: 4, Importance: 1, Fun: 0.8, PenaltyLate: 1})

	_, err := f.advisor.Ignore(ctx, "s1", high.ID)
	require.NoError(t, err)

	ranked, err := f.advisor.Rank(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, ranked, 2, "cool-downs do not hide tasks from the full ranking")
	assert.Equal(t, high.ID, ranked[0].ID)
	assert.Equal(t, low.ID, ranked[1].ID)
}

func TestReason(t *testing.T) {
	cases := []struct {
		terms scoring.Terms
		want  string
	}{
		{scoring.Terms{Urgency: 0.9, Importance: 0.5}, ReasonUrgency},
		{scoring.Terms{Urgency: 0.2, Importance: 0.5}, ReasonImportance},
		{scoring.Terms{Fun: 0.8, Importance: 0.5}, ReasonFun},
		{scoring.Terms{Penalty: 0.6, Fun: 0.1}, ReasonPenalty},
		{scoring.Terms{Stress: -0.4}, ReasonDefault},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Reason(tc.terms), "%+v", tc.terms)
	}
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.CooldownEntries = 0
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.Cooldown = 0
	assert.Error(t, p.Validate(), "a zero cool-down would let repeated ignores count twice")

	p = DefaultParams()
	p.HighStress.Fun = -1
	assert.Error(t, p.Validate())
}
