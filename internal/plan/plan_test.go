package plan

import (
	"testing"
	"time"

	"simforge/internal/materials"
)

func validPlan() Plan {
	return Plan{
		SimulationType: RigidBody,
		Entities: []Entity{
			{Name: "block", Shape: ShapeCube, Count: 20, Material: "wood", Scale: 1},
			{Name: "ground", Shape: ShapePlane, Count: 1, Material: "concrete", Scale: 10, Static: true},
		},
		Physics:        PhysicsSettings{Gravity: -9.81, SubstepsPerFrame: 10, SolverIterations: 10, TimeScale: 1},
		DurationFrames: 250,
		FrameRate:      24,
		Prompt:         "20 wooden blocks falling on a concrete floor",
		CreatedAt:      time.Now().UTC(),
	}
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	p := validPlan()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Plan)
	}{
		{"unknown type", func(p *Plan) { p.SimulationType = "plasma" }},
		{"no entities", func(p *Plan) { p.Entities = nil }},
		{"unnamed entity", func(p *Plan) { p.Entities[0].Name = "" }},
		{"bad shape", func(p *Plan) { p.Entities[0].Shape = "blob" }},
		{"zero count", func(p *Plan) { p.Entities[0].Count = 0 }},
		{"excessive count", func(p *Plan) { p.Entities[0].Count = MaxEntityCount + 1 }},
		{"missing material", func(p *Plan) { p.Entities[0].Material = "" }},
		{"zero duration", func(p *Plan) { p.DurationFrames = 0 }},
		{"excessive duration", func(p *Plan) { p.DurationFrames = MaxDurationFrames + 1 }},
		{"zero frame rate", func(p *Plan) { p.FrameRate = 0 }},
		{"fluid resolution too low", func(p *Plan) {
			p.SimulationType = FluidSmoke
			p.Physics.ResolutionMax = 8
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validPlan()
			tc.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEnriched(t *testing.T) {
	p := validPlan()
	if p.Enriched() {
		t.Fatal("plan should not be enriched before properties resolve")
	}
	props := materials.Properties{Name: "wood_pine", Density: 500}
	for i := range p.Entities {
		p.Entities[i].Properties = &props
	}
	if !p.Enriched() {
		t.Fatal("plan should be enriched once all entities carry properties")
	}
	empty := Plan{}
	if empty.Enriched() {
		t.Fatal("empty plan can never be enriched")
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := validPlan()
	props := materials.Properties{Name: "wood_pine", Density: 500}
	p.Entities[0].Properties = &props

	clone := p.Clone()
	clone.Entities[0].Count = 99
	clone.Entities[0].Properties.Density = 1

	if p.Entities[0].Count != 20 {
		t.Fatal("clone mutated original entity")
	}
	if p.Entities[0].Properties.Density != 500 {
		t.Fatal("clone shares property pointers with original")
	}
}

func TestTotalObjectCountAndStatics(t *testing.T) {
	p := validPlan()
	if got := p.TotalObjectCount(); got != 21 {
		t.Fatalf("TotalObjectCount = %d", got)
	}
	if !p.HasStaticEntity() {
		t.Fatal("expected a static ground entity")
	}
}
