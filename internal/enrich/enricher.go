// Package enrich resolves every plan entity's material reference into
// physical properties and normalizes the solver settings per simulation
// type. Unresolved names fail closed onto the database's named fallback and
// are surfaced as warnings, never dropped silently.
package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"simforge/internal/logging"
	"simforge/internal/materials"
	"simforge/internal/plan"
	"simforge/internal/services"
)

// Enricher resolves material properties against an immutable database.
type Enricher struct {
	db     *materials.Database
	logger *slog.Logger
}

// New constructs an Enricher.
func New(db *materials.Database, logger *slog.Logger) *Enricher {
	return &Enricher{
		db:     db,
		logger: logging.NewComponentLogger(logger, "enricher"),
	}
}

// Enrich returns a deep copy of the plan with every entity carrying resolved
// properties, plus warnings for fuzzy matches, fallbacks, and normalized
// settings. The input plan is never mutated.
func (e *Enricher) Enrich(ctx context.Context, input plan.Plan) (plan.Plan, []string, error) {
	if e.db == nil || e.db.Len() == 0 {
		return plan.Plan{}, nil, services.Wrap(services.ErrEnrichment, "enrich", "resolve", "materials database unavailable", nil)
	}

	logger := logging.WithContext(ctx, e.logger)
	enriched := input.Clone()
	var warnings []string

	for i := range enriched.Entities {
		entity := &enriched.Entities[i]
		props, kind := e.db.Resolve(entity.Material)
		switch kind {
		case materials.MatchFuzzy:
			warnings = append(warnings, fmt.Sprintf("material %q fuzzy-matched to %q for entity %q", entity.Material, props.Name, entity.Name))
		case materials.MatchFallback:
			warnings = append(warnings, fmt.Sprintf("unknown material %q for entity %q, using fallback %q", entity.Material, entity.Name, props.Name))
		}
		local := props
		entity.Properties = &local
		logger.Debug("material resolved",
			logging.String("entity", entity.Name),
			logging.String("material", props.Name),
			logging.Float64("density", props.Density),
		)
	}

	warnings = append(warnings, normalizePhysics(&enriched)...)
	warnings = append(warnings, adjustForSimulationType(&enriched)...)

	if !enriched.Enriched() {
		return plan.Plan{}, warnings, services.Wrap(services.ErrEnrichment, "enrich", "resolve", "entities left without properties", nil)
	}

	logger.Info("plan enriched",
		logging.Int("entities", len(enriched.Entities)),
		logging.Int("warnings", len(warnings)),
	)
	return enriched, warnings, nil
}

// normalizePhysics corrects settings that would make the solver unusable
// rather than failing the job over them.
func normalizePhysics(p *plan.Plan) []string {
	var warnings []string
	physics := &p.Physics

	if physics.Gravity > 0 {
		physics.Gravity = -physics.Gravity
		warnings = append(warnings, fmt.Sprintf("gravity flipped to %.2f; positive gravity pushes objects upward", physics.Gravity))
	}
	if physics.Gravity < -50 {
		warnings = append(warnings, fmt.Sprintf("very high gravity (%.2f m/s^2) may cause solver instability", physics.Gravity))
	}
	if physics.TimeScale <= 0 {
		physics.TimeScale = 1
	}

	if p.SimulationType == plan.RigidBody {
		if physics.SubstepsPerFrame < 5 {
			warnings = append(warnings, fmt.Sprintf("low substeps (%d) may cause instability", physics.SubstepsPerFrame))
		}
		if physics.SolverIterations < 5 {
			warnings = append(warnings, fmt.Sprintf("low solver iterations (%d) may cause instability", physics.SolverIterations))
		}
	}

	if p.SimulationType.IsFluid() {
		if physics.ResolutionMax == 0 {
			physics.ResolutionMax = 128
		}
		if physics.ResolutionMax < plan.MinFluidRes {
			physics.ResolutionMax = plan.MinFluidRes
			warnings = append(warnings, fmt.Sprintf("fluid resolution raised to the minimum %d", plan.MinFluidRes))
		}
		if physics.ResolutionMax > 256 {
			warnings = append(warnings, fmt.Sprintf("high fluid resolution (%d) will be slow to bake", physics.ResolutionMax))
		}
	}
	return warnings
}

// adjustForSimulationType applies per-solver duration and quality defaults.
func adjustForSimulationType(p *plan.Plan) []string {
	var warnings []string
	switch {
	case p.SimulationType == plan.RigidBody:
		if p.DurationFrames < 100 {
			p.DurationFrames = 250
			warnings = append(warnings, "rigid body duration raised to 250 frames so objects settle")
		}
		if !p.HasStaticEntity() {
			warnings = append(warnings, "rigid body simulation has no static ground plane")
		}
	case p.SimulationType == plan.FluidSmoke || p.SimulationType == plan.FluidFire:
		if p.DurationFrames > 200 {
			p.DurationFrames = 150
			warnings = append(warnings, "fluid duration reduced to 150 frames")
		}
	case p.SimulationType == plan.Cloth:
		if p.Physics.QualitySteps == 0 {
			p.Physics.QualitySteps = 5
		}
	}
	if p.TotalObjectCount() > 500 {
		warnings = append(warnings, fmt.Sprintf("high object count (%d) may cause performance issues", p.TotalObjectCount()))
	}
	return warnings
}
