// Package dashboard computes workload aggregates from the current task
// snapshot. Nothing here is cached; every call reads the store.
package dashboard

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"priority-agent-backend/internal/scoring"
	"priority-agent-backend/internal/stress"
	"priority-agent-backend/internal/tasks"
)

const (
	// TimelineDays is how far ahead the timeline looks.
	TimelineDays = 30
	// HighStressTask is the per-task stress level counted in high_stress_tasks.
	HighStressTask = 0.6

	DateLayout = "2006-01-02"
)

type Stats struct {
	TotalTasks      int     `json:"total_tasks"`
	BacklogCount    int     `json:"backlog_count"`
	DoingCount      int     `json:"doing_count"`
	DoneCount       int     `json:"done_count"`
	TotalHours      float64 `json:"total_hours"`
	UrgentTasks     int     `json:"urgent_tasks"`
	HighStressTasks int     `json:"high_stress_tasks"`
	AverageStress   float64 `json:"average_stress"`
	CompletionRate  float64 `json:"completion_rate"`
}

type TimelineTask struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Importance float64 `json:"importance"`
}

type Day struct {
	Date        string         `json:"date"`
	TotalHours  float64        `json:"total_hours"`
	UrgentCount int            `json:"urgent_count"`
	Tasks       []TimelineTask `json:"tasks"`
}

type StressMode struct {
	HighStressMode bool    `json:"high_stress_mode"`
	Signal         float64 `json:"signal"`
	Message        string  `json:"message"`
}

type Dashboard struct {
	store   tasks.Store
	scorer  *scoring.Scorer
	monitor *stress.Monitor

	now func() time.Time
}

func New(store tasks.Store, scorer *scoring.Scorer, monitor *stress.Monitor) *Dashboard {
	return &Dashboard{store: store, scorer: scorer, monitor: monitor, now: time.Now}
}

func (d *Dashboard) today() time.Time {
	y, m, day := d.now().UTC().Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// Stats counts hours, urgency and stress over backlog and doing tasks only.
func (d *Dashboard) Stats(ctx context.Context) (Stats, error) {
	all, err := d.store.List(ctx)
	if err != nil {
		return Stats{}, err
	}

	var s Stats
	s.TotalTasks = len(all)
	active := 0
	stressSum := 0.0

	for _, t := range all {
		switch t.Status {
		case tasks.StatusBacklog:
			s.BacklogCount++
		case tasks.StatusDoing:
			s.DoingCount++
		case tasks.StatusDone:
			s.DoneCount++
		}
		if !t.Status.Active() {
			continue
		}

		active++
		stressSum += t.Stress
		s.TotalHours += t.Duration
		if d.scorer.UrgencyLevel(t) == scoring.UrgencyUrgent {
			s.UrgentTasks++
		}
		if t.Stress >= HighStressTask {
			s.HighStressTasks++
		}
	}

	s.TotalHours = round(s.TotalHours, 1)
	if active > 0 {
		s.AverageStress = round(stressSum/float64(active), 2)
	}
	if s.TotalTasks > 0 {
		s.CompletionRate = round(float64(s.DoneCount)/float64(s.TotalTasks), 2)
	}
	return s, nil
}

// Timeline groups active tasks due within TimelineDays by deadline date.
func (d *Dashboard) Timeline(ctx context.Context) ([]Day, error) {
	all, err := d.store.List(ctx)
	if err != nil {
		return nil, err
	}

	today := d.today()
	byDate := make(map[string]*Day)
	for _, t := range all {
		if !t.Status.Active() || t.Deadline > TimelineDays {
			continue
		}

		date := today.AddDate(0, 0, t.Deadline).Format(DateLayout)
		day, ok := byDate[date]
		if !ok {
			day = &Day{Date: date, Tasks: []TimelineTask{}}
			byDate[date] = day
		}
		day.Tasks = append(day.Tasks, TimelineTask{
			ID:         t.ID,
			Title:      t.Title,
			Duration:   t.Duration,
			Importance: t.Importance,
		})
		day.TotalHours += t.Duration
		if d.scorer.UrgencyLevel(t) == scoring.UrgencyUrgent {
			day.UrgentCount++
		}
	}

	days := make([]Day, 0, len(byDate))
	for _, day := range byDate {
		sort.Slice(day.Tasks, func(i, j int) bool { return day.Tasks[i].ID < day.Tasks[j].ID })
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

// TasksByDate returns active tasks whose deadline falls on date (YYYY-MM-DD).
func (d *Dashboard) TasksByDate(ctx context.Context, date string) ([]tasks.Task, error) {
	target, err := time.Parse(DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	daysUntil := int(math.Round(target.Sub(d.today()).Hours() / 24))

	all, err := d.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := []tasks.Task{}
	for _, t := range all {
		if t.Status.Active() && t.Deadline == daysUntil {
			out = append(out, t)
		}
	}
	return out, nil
}

// HighStressMode evaluates the session's mode through the monitor, so the
// hysteresis state is shared with the advisor.
func (d *Dashboard) HighStressMode(ctx context.Context, session string) (StressMode, error) {
	all, err := d.store.List(ctx)
	if err != nil {
		return StressMode{}, err
	}

	mode := StressMode{
		HighStressMode: d.monitor.IsHighStress(session, all),
		Signal:         round(d.monitor.Signal(all), 2),
		Message:        "All under control.",
	}
	if mode.HighStressMode {
		mode.Message = "High-stress mode on: favouring quick, important tasks."
	}
	return mode, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
