package quality

import (
	"fmt"
	"strings"

	"simforge/internal/plan"
)

// Component weights. They sum to 1 so the overall score stays in [0,1].
const (
	weightObjectCount = 0.2
	weightCamera      = 0.2
	weightLighting    = 0.1
	weightPhysics     = 0.4
	weightFrameRange  = 0.1
)

// Metrics is the scored comparison between a plan and an inspection.
type Metrics struct {
	ObjectCount float64
	Camera      float64
	Lighting    float64
	Physics     float64
	FrameRange  float64
	Overall     float64

	// Shortfalls lists the checks that scored below 1, in scoring order,
	// phrased so a refinement prompt can quote them directly.
	Shortfalls []string
}

// Score compares an inspection against the plan that produced it. The same
// inputs always yield the same metrics.
func Score(p plan.Plan, insp Inspection) Metrics {
	var m Metrics

	expected := p.TotalObjectCount()
	m.ObjectCount = ratio(insp.ObjectCount, expected)
	if m.ObjectCount < 1 {
		m.Shortfalls = append(m.Shortfalls,
			fmt.Sprintf("scene has %d mesh objects, plan calls for %d", insp.ObjectCount, expected))
	}

	if insp.HasCamera {
		m.Camera = 1
	} else {
		m.Shortfalls = append(m.Shortfalls, "scene has no camera")
	}

	if insp.HasLight {
		m.Lighting = 1
	} else {
		m.Shortfalls = append(m.Shortfalls, "scene has no light source")
	}

	m.Physics = physicsScore(p, insp)
	if m.Physics < 1 {
		m.Shortfalls = append(m.Shortfalls,
			fmt.Sprintf("%s physics setup is incomplete", p.SimulationType))
	}

	m.FrameRange = ratio(insp.FrameEnd, p.DurationFrames)
	if m.FrameRange < 1 {
		m.Shortfalls = append(m.Shortfalls,
			fmt.Sprintf("frame range ends at %d, plan calls for %d", insp.FrameEnd, p.DurationFrames))
	}

	m.Overall = weightObjectCount*m.ObjectCount +
		weightCamera*m.Camera +
		weightLighting*m.Lighting +
		weightPhysics*m.Physics +
		weightFrameRange*m.FrameRange
	return m
}

func physicsScore(p plan.Plan, insp Inspection) float64 {
	switch {
	case p.SimulationType == plan.RigidBody:
		return ratio(insp.RigidBodyCount, p.TotalObjectCount())
	case p.SimulationType.IsFluid():
		if insp.FluidDomainCount >= 1 {
			return 1
		}
		return 0
	case p.SimulationType == plan.Cloth:
		expected := 0
		for _, entity := range p.Entities {
			if !entity.Static {
				expected += entity.Count
			}
		}
		return ratio(insp.ClothCount, expected)
	default:
		return 0
	}
}

// ratio scores actual against expected, capping overshoot at 1. An expected
// value of zero scores 1 only when actual is also zero.
func ratio(actual, expected int) float64 {
	if expected <= 0 {
		if actual == 0 {
			return 1
		}
		return 0
	}
	if actual <= 0 {
		return 0
	}
	if actual >= expected {
		return 1
	}
	return float64(actual) / float64(expected)
}

// Better reports whether candidate strictly improves on best. A nil best
// loses to any candidate, so the first scored attempt is always kept.
func Better(candidate, best *Metrics) bool {
	if candidate == nil {
		return false
	}
	if best == nil {
		return true
	}
	return candidate.Overall > best.Overall
}

// FeedbackSummary renders the shortfalls as refinement guidance.
func (m Metrics) FeedbackSummary() string {
	if len(m.Shortfalls) == 0 {
		return fmt.Sprintf("overall quality %.2f, no specific shortfalls detected", m.Overall)
	}
	return fmt.Sprintf("overall quality %.2f; issues: %s", m.Overall, strings.Join(m.Shortfalls, "; "))
}
