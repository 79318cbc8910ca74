package stress

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"priority-agent-backend/internal/scoring"
	"priority-agent-backend/internal/tasks"
)

func newMonitor(t *testing.T, p Params) *Monitor {
	t.Helper()
	m, err := NewMonitor(p, scoring.NewScorer(scoring.DefaultParams()))
	require.NoError(t, err)
	return m
}

func TestValidateRejectsInvertedBand(t *testing.T) {
	_, err := NewMonitor(Params{Entry: 3, Exit: 3}, scoring.NewScorer(scoring.DefaultParams()))
	assert.Error(t, err)
}

func TestSignalCountsActiveTasksOnly(t *testing.T) {
	m := newMonitor(t, Params{UrgentWeight: 2, LoadWeight: 1, Entry: 10, Exit: 5})
	all := []tasks.Task{
		{ID: 1, Deadline: 0, Duration: 2, Stress: 0.5, Status: tasks.StatusBacklog}, // urgent, load 1
		{ID: 2, Deadline: 30, Duration: 4, Stress: 0.25, Status: tasks.StatusDoing}, // calm, load 1
		{ID: 3, Deadline: 0, Duration: 8, Stress: 1, Status: tasks.StatusDone},      // ignored
	}
	assert.InDelta(t, 2*1+1*(1+1), m.Signal(all), 1e-9)
	assert.Zero(t, m.Signal(nil))
}

func TestHysteresisRule(t *testing.T) {
	m := newMonitor(t, Params{UrgentWeight: 1, LoadWeight: 1, Entry: 5, Exit: 3})

	assert.False(t, m.Next(false, 5), "entry is strict")
	assert.True(t, m.Next(false, 5.1))
	assert.True(t, m.Next(true, 4), "inside the band keeps the mode")
	assert.True(t, m.Next(true, 3))
	assert.False(t, m.Next(true, 2.9))
	assert.False(t, m.Next(false, 4), "inside the band from below stays calm")
}

func TestOscillationInsideBandDoesNotToggle(t *testing.T) {
	m := newMonitor(t, Params{UrgentWeight: 1, LoadWeight: 1, Entry: 5, Exit: 3})

	mode := false
	toggles := 0
	signals := []float64{6, 4.9, 3.1, 4.9, 3.1, 4.5, 3.2, 4.8, 2.5, 3.5, 4.9, 3.1, 5.5, 4}
	for _, s := range signals {
		next := m.Next(mode, s)
		if next != mode {
			toggles++
		}
		mode = next
	}
	// 6 enters, 2.5 exits, 5.5 enters again; nothing else crosses the band.
	assert.Equal(t, 3, toggles)
}

func TestIsHighStressTracksSessionsSeparately(t *testing.T) {
	m := newMonitor(t, Params{UrgentWeight: 1, LoadWeight: 0, Entry: 1.5, Exit: 0.5})

	var transitions []Transition
	m.OnTransition = func(_ string, tr Transition) { transitions = append(transitions, tr) }

	urgent := func(id int64) tasks.Task {
		return tasks.Task{ID: id, Deadline: 0, Duration: 1, Status: tasks.StatusBacklog}
	}
	two := []tasks.Task{urgent(1), urgent(2)}
	one := []tasks.Task{urgent(1)}

	assert.True(t, m.IsHighStress("a", two))
	assert.False(t, m.IsHighStress("b", one))
	assert.True(t, m.IsHighStress("a", one), "signal 1 is inside the band")
	assert.False(t, m.IsHighStress("a", nil))

	assert.Equal(t, []Transition{Entered, Exited}, transitions)
	assert.False(t, m.Current("a"))
}

func TestModesAreCappedPerSession(t *testing.T) {
	m := newMonitor(t, Params{UrgentWeight: 1, LoadWeight: 0, Entry: 0.5, Exit: 0.25})
	busy := []tasks.Task{{ID: 1, Deadline: 0, Duration: 1, Status: tasks.StatusBacklog}}

	require.True(t, m.IsHighStress("first", busy))
	for i := 0; i < MaxSessions; i++ {
		m.IsHighStress(fmt.Sprintf("s%d", i), nil)
	}

	assert.False(t, m.Current("first"), "least recently used session was dropped")
	assert.Equal(t, MaxSessions, m.modes.Len())
}
