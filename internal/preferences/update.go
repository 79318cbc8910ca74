// Package preferences owns the per-session weight vectors and the online
// update rule that adapts them from accept/ignore feedback.
package preferences

import (
	"fmt"
	"math"

	"priority-agent-backend/internal/feedback"
	"priority-agent-backend/internal/scoring"
)

type Params struct {
	LearningRate float64 `yaml:"learning_rate"`
	WMin         float64 `yaml:"w_min"`
	WMax         float64 `yaml:"w_max"`
	// The L2 norm of the vector is pulled back into [NormMin, NormMax].
	NormMin float64 `yaml:"norm_min"`
	NormMax float64 `yaml:"norm_max"`
	// DedupSize bounds how many applied event ids a session remembers.
	DedupSize int `yaml:"dedup_size"`
}

func DefaultParams() Params {
	return Params{
		LearningRate: 0.05,
		WMin:         0.05,
		WMax:         3.0,
		NormMin:      1.0,
		NormMax:      4.0,
		DedupSize:    256,
	}
}

func (p Params) Validate() error {
	switch {
	case p.LearningRate <= 0:
		return fmt.Errorf("learning_rate must be positive, got %v", p.LearningRate)
	case p.WMin < 0 || p.WMax <= p.WMin:
		return fmt.Errorf("weight bounds must satisfy 0 <= w_min < w_max, got [%v, %v]", p.WMin, p.WMax)
	case p.NormMin <= 0 || p.NormMax < p.NormMin:
		return fmt.Errorf("norm band must satisfy 0 < norm_min <= norm_max, got [%v, %v]", p.NormMin, p.NormMax)
	case p.DedupSize <= 0:
		return fmt.Errorf("dedup_size must be positive, got %d", p.DedupSize)
	}
	return nil
}

// direction is the gradient of the utility with respect to each weight.
func direction(f scoring.Features) [scoring.Dim]float64 {
	return [scoring.Dim]float64{
		f.Importance,
		f.Urgency,
		f.Fun,
		-f.Stress,
		f.PenaltyLate * f.Urgency,
	}
}

// Update applies one feedback event to w and returns the new vector.
// accepted moves towards the task's features, ignored moves away.
func Update(p Params, w scoring.Weights, e feedback.Event) scoring.Weights {
	sign := 1.0
	if e.Outcome == feedback.Ignored {
		sign = -1.0
	}

	g := direction(e.Features)
	mean := 0.0
	for _, x := range g {
		mean += x
	}
	mean /= scoring.Dim

	v := w.Vector()
	for i := range v {
		v[i] += sign * p.LearningRate * (g[i] - mean)
	}
	return Bound(p, scoring.WeightsFromVector(v))
}

// Bound clips into [WMin, WMax], renormalizes into the norm band and clips
// again, so the result is always inside the coefficient bounds.
func Bound(p Params, w scoring.Weights) scoring.Weights {
	v := clip(p, w.Vector())

	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)

	switch {
	case norm > p.NormMax:
		scale(&v, p.NormMax/norm)
	case norm > 0 && norm < p.NormMin:
		scale(&v, p.NormMin/norm)
	}

	return scoring.WeightsFromVector(clip(p, v))
}

func clip(p Params, v [scoring.Dim]float64) [scoring.Dim]float64 {
	for i, x := range v {
		switch {
		case math.IsNaN(x):
			v[i] = p.WMin
		case x < p.WMin:
			v[i] = p.WMin
		case x > p.WMax:
			v[i] = p.WMax
		}
	}
	return v
}

func scale(v *[scoring.Dim]float64, k float64) {
	for i := range v {
		v[i] *= k
	}
}

// InBounds reports whether every coefficient lies in [WMin, WMax].
func InBounds(p Params, w scoring.Weights) bool {
	for _, x := range w.Vector() {
		if x < p.WMin || x > p.WMax {
			return false
		}
	}
	return true
}
