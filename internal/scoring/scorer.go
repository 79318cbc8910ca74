// Package scoring turns a task snapshot and a weight vector into a utility
// score, discrete urgency/importance levels, and a ranked order.
//
// Everything here is pure: the same task and weights always produce the same
// score, so callers may score concurrently without coordination.
package scoring

import (
	"math"

	"priority-agent-backend/internal/tasks"
)

type Level string

const (
	UrgencyUrgent   Level = "urgent"
	UrgencyModerate Level = "moderate"
	UrgencyCalm     Level = "calm"

	ImportanceHigh   Level = "high"
	ImportanceMedium Level = "medium"
	ImportanceLow    Level = "low"
)

// Weights holds one non-negative magnitude per feature. The stress term is
// subtracted in the utility, so its effective coefficient is negative.
type Weights struct {
	Importance float64 `json:"importance" yaml:"importance"`
	Urgency    float64 `json:"urgency" yaml:"urgency"`
	Fun        float64 `json:"fun" yaml:"fun"`
	Stress     float64 `json:"stress" yaml:"stress"`
	Penalty    float64 `json:"penalty" yaml:"penalty"`
}

func DefaultWeights() Weights {
	return Weights{
		Importance: 1.0,
		Urgency:    1.0,
		Fun:        1.0,
		Stress:     0.5,
		Penalty:    0.75,
	}
}

// Dim is the number of feature dimensions.
const Dim = 5

func (w Weights) Vector() [Dim]float64 {
	return [Dim]float64{w.Importance, w.Urgency, w.Fun, w.Stress, w.Penalty}
}

func WeightsFromVector(v [Dim]float64) Weights {
	return Weights{Importance: v[0], Urgency: v[1], Fun: v[2], Stress: v[3], Penalty: v[4]}
}

type Params struct {
	// UrgencyScale is K in urgency = 1 - deadline/(duration*K).
	UrgencyScale float64 `yaml:"urgency_scale"`
}

func DefaultParams() Params {
	return Params{UrgencyScale: 2.0}
}

// Features is the derived feature vector of a task. It is never stored.
type Features struct {
	Importance  float64 `json:"importance"`
	Urgency     float64 `json:"urgency"`
	Fun         float64 `json:"fun"`
	Stress      float64 `json:"stress"`
	PenaltyLate float64 `json:"penalty_late"`
}

// Terms are the signed weighted contributions that sum to the utility.
type Terms struct {
	Importance float64
	Urgency    float64
	Fun        float64
	Stress     float64
	Penalty    float64
}

type Score struct {
	Utility         float64 `json:"utility"`
	Urgency         float64 `json:"urgency"`
	UrgencyLevel    Level   `json:"urgency_level"`
	ImportanceLevel Level   `json:"importance_level"`
	Terms           Terms   `json:"-"`
}

type Scorer struct {
	params Params
}

func NewScorer(p Params) *Scorer {
	if p.UrgencyScale <= 0 {
		p.UrgencyScale = DefaultParams().UrgencyScale
	}
	return &Scorer{params: p}
}

// Urgency is clamp(1 - deadline/(duration*K), 0, 1).
func (s *Scorer) Urgency(t tasks.Task) float64 {
	if t.Duration <= 0 {
		return 1
	}
	return clamp01(1 - float64(t.Deadline)/(t.Duration*s.params.UrgencyScale))
}

func (s *Scorer) Features(t tasks.Task) Features {
	return Features{
		Importance:  t.Importance,
		Urgency:     s.Urgency(t),
		Fun:         t.Fun,
		Stress:      t.Stress,
		PenaltyLate: t.PenaltyLate,
	}
}

func (s *Scorer) Score(t tasks.Task, w Weights) Score {
	f := s.Features(t)

	terms := Terms{
		Importance: w.Importance * f.Importance,
		Urgency:    w.Urgency * f.Urgency,
		Fun:        w.Fun * f.Fun,
		Stress:     -w.Stress * f.Stress,
		Penalty:    w.Penalty * f.PenaltyLate * f.Urgency,
	}

	return Score{
		Utility:         terms.Importance + terms.Urgency + terms.Fun + terms.Stress + terms.Penalty,
		Urgency:         f.Urgency,
		UrgencyLevel:    urgencyLevel(t.Deadline, f.Urgency),
		ImportanceLevel: ImportanceLevel(t.Importance),
		Terms:           terms,
	}
}

func (s *Scorer) UrgencyLevel(t tasks.Task) Level {
	return urgencyLevel(t.Deadline, s.Urgency(t))
}

func urgencyLevel(deadline int, urgency float64) Level {
	switch {
	case deadline <= 1 || urgency >= 0.7:
		return UrgencyUrgent
	case deadline <= 3 || urgency >= 0.4:
		return UrgencyModerate
	default:
		return UrgencyCalm
	}
}

func ImportanceLevel(importance float64) Level {
	switch {
	case importance >= 0.7:
		return ImportanceHigh
	case importance >= 0.4:
		return ImportanceMedium
	default:
		return ImportanceLow
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
