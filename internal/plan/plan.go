// Package plan defines the structured representation of a simulation request
// that flows between pipeline stages. A Plan is immutable once handed
// downstream within one attempt; refinement replaces it wholesale.
package plan

import (
	"fmt"
	"time"

	"simforge/internal/materials"
)

// SimulationType categorizes the physics solver a plan targets.
type SimulationType string

const (
	RigidBody   SimulationType = "rigid_body"
	FluidSmoke  SimulationType = "fluid_smoke"
	FluidFire   SimulationType = "fluid_fire"
	FluidLiquid SimulationType = "fluid_liquid"
	Cloth       SimulationType = "cloth"
)

var simulationTypes = map[SimulationType]struct{}{
	RigidBody:   {},
	FluidSmoke:  {},
	FluidFire:   {},
	FluidLiquid: {},
	Cloth:       {},
}

// Valid reports whether the simulation type is known.
func (t SimulationType) Valid() bool {
	_, ok := simulationTypes[t]
	return ok
}

// IsFluid reports whether the type uses the fluid solver.
func (t SimulationType) IsFluid() bool {
	return t == FluidSmoke || t == FluidFire || t == FluidLiquid
}

// Shape is a primitive mesh kind an entity instantiates.
type Shape string

const (
	ShapeCube     Shape = "cube"
	ShapeSphere   Shape = "sphere"
	ShapeCylinder Shape = "cylinder"
	ShapeCone     Shape = "cone"
	ShapePlane    Shape = "plane"
	ShapeTorus    Shape = "torus"
)

var shapes = map[Shape]struct{}{
	ShapeCube:     {},
	ShapeSphere:   {},
	ShapeCylinder: {},
	ShapeCone:     {},
	ShapePlane:    {},
	ShapeTorus:    {},
}

// Valid reports whether the shape is known.
func (s Shape) Valid() bool {
	_, ok := shapes[s]
	return ok
}

// Entity describes one group of identical objects in the simulation.
type Entity struct {
	Name     string
	Shape    Shape
	Count    int
	Material string
	Scale    float64
	Static   bool

	// Properties is nil until the enrichment stage resolves the material.
	Properties *materials.Properties
}

// PhysicsSettings carries the global solver parameters.
type PhysicsSettings struct {
	Gravity          float64
	SubstepsPerFrame int
	SolverIterations int
	TimeScale        float64
	// ResolutionMax applies to fluid simulations only; zero means unset.
	ResolutionMax int
	// QualitySteps applies to cloth simulations only; zero means unset.
	QualitySteps int
}

// Plan is the structured intent derived from a free-text request.
type Plan struct {
	SimulationType SimulationType
	Entities       []Entity
	Physics        PhysicsSettings
	DurationFrames int
	FrameRate      int
	Prompt         string
	CreatedAt      time.Time
}

// Limits enforced on incoming plans regardless of what the generative
// service produced.
const (
	MaxEntityCount    = 1000
	MaxDurationFrames = 1000
	MinFluidRes       = 32
	MaxFluidRes       = 512
)

// Validate checks structural invariants at the stage boundary so downstream
// stages can rely on the plan without re-checking.
func (p *Plan) Validate() error {
	if !p.SimulationType.Valid() {
		return fmt.Errorf("unknown simulation type %q", p.SimulationType)
	}
	if len(p.Entities) == 0 {
		return fmt.Errorf("plan has no entities")
	}
	for i, entity := range p.Entities {
		if entity.Name == "" {
			return fmt.Errorf("entity %d has no name", i)
		}
		if !entity.Shape.Valid() {
			return fmt.Errorf("entity %q has unknown shape %q", entity.Name, entity.Shape)
		}
		if entity.Count < 1 || entity.Count > MaxEntityCount {
			return fmt.Errorf("entity %q count %d out of range 1..%d", entity.Name, entity.Count, MaxEntityCount)
		}
		if entity.Material == "" {
			return fmt.Errorf("entity %q has no material", entity.Name)
		}
	}
	if p.DurationFrames < 1 || p.DurationFrames > MaxDurationFrames {
		return fmt.Errorf("duration %d frames out of range 1..%d", p.DurationFrames, MaxDurationFrames)
	}
	if p.FrameRate <= 0 {
		return fmt.Errorf("frame rate %d invalid", p.FrameRate)
	}
	if p.SimulationType.IsFluid() && p.Physics.ResolutionMax != 0 {
		if p.Physics.ResolutionMax < MinFluidRes || p.Physics.ResolutionMax > MaxFluidRes {
			return fmt.Errorf("fluid resolution %d out of range %d..%d", p.Physics.ResolutionMax, MinFluidRes, MaxFluidRes)
		}
	}
	return nil
}

// Enriched reports whether every entity carries resolved material properties.
func (p *Plan) Enriched() bool {
	if len(p.Entities) == 0 {
		return false
	}
	for _, entity := range p.Entities {
		if entity.Properties == nil {
			return false
		}
	}
	return true
}

// TotalObjectCount sums the instance counts across all entities.
func (p *Plan) TotalObjectCount() int {
	total := 0
	for _, entity := range p.Entities {
		total += entity.Count
	}
	return total
}

// HasStaticEntity reports whether any entity is passive (ground, obstacle).
func (p *Plan) HasStaticEntity() bool {
	for _, entity := range p.Entities {
		if entity.Static {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stages can derive new plans without mutating
// their input.
func (p *Plan) Clone() Plan {
	out := *p
	out.Entities = make([]Entity, len(p.Entities))
	for i, entity := range p.Entities {
		out.Entities[i] = entity
		if entity.Properties != nil {
			props := *entity.Properties
			out.Entities[i].Properties = &props
		}
	}
	return out
}
