package scoring

import (
	"sort"

	"priority-agent-backend/internal/tasks"
)

// Ranked is a backlog task with its score; it marshals as a flat object.
type Ranked struct {
	tasks.Task
	Score
}

// Rank scores every backlog task and returns them best first.
// doing/done tasks are not eligible.
func (s *Scorer) Rank(all []tasks.Task, w Weights) []Ranked {
	result := make([]Ranked, 0, len(all))
	for _, t := range all {
		if t.Status != tasks.StatusBacklog {
			continue
		}
		result = append(result, Ranked{Task: t, Score: s.Score(t, w)})
	}

	sort.Slice(result, func(i, j int) bool {
		return Less(result[i], result[j])
	})
	return result
}

// Less orders by utility desc, deadline asc, importance desc, id asc.
func Less(a, b Ranked) bool {
	if a.Utility != b.Utility {
		return a.Utility > b.Utility
	}
	if a.Deadline != b.Deadline {
		return a.Deadline < b.Deadline
	}
	if a.Importance != b.Importance {
		return a.Importance > b.Importance
	}
	return a.ID < b.ID
}
