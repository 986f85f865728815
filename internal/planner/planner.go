// Package planner turns a free-text simulation request into a structured
// plan by prompting the generative service for a JSON document matching the
// planning schema, then validating the result at the stage boundary.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"simforge/internal/logging"
	"simforge/internal/plan"
	"simforge/internal/services"
	"simforge/internal/services/llm"
)

// Completer is the slice of the LLM client the planner needs.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Planner builds plans from natural language.
type Planner struct {
	completer Completer
	logger    *slog.Logger
}

// New constructs a Planner.
func New(completer Completer, logger *slog.Logger) *Planner {
	return &Planner{
		completer: completer,
		logger:    logging.NewComponentLogger(logger, "planner"),
	}
}

// CreatePlan parses the request into a validated plan.
func (p *Planner) CreatePlan(ctx context.Context, request string) (plan.Plan, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return plan.Plan{}, services.Wrap(services.ErrPlanning, "plan", "create", "empty request", nil)
	}

	content, err := p.completer.CompleteJSON(ctx, planningSystemPrompt, buildPlanningPrompt(request))
	if err != nil {
		return plan.Plan{}, services.Wrap(services.ErrPlanning, "plan", "complete", "generative service call failed", err)
	}
	return p.decode(ctx, content, request)
}

// Refine re-plans using feedback derived from a low quality score. The
// previous plan is serialized into the prompt so the model revises rather
// than restarts.
func (p *Planner) Refine(ctx context.Context, previous plan.Plan, feedback string) (plan.Plan, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return plan.Plan{}, services.Wrap(services.ErrPlanning, "plan", "refine", "empty feedback", nil)
	}

	userPrompt, err := buildRefinementPrompt(previous, feedback)
	if err != nil {
		return plan.Plan{}, services.Wrap(services.ErrPlanning, "plan", "refine", "encode previous plan", err)
	}
	content, err := p.completer.CompleteJSON(ctx, planningSystemPrompt, userPrompt)
	if err != nil {
		return plan.Plan{}, services.Wrap(services.ErrPlanning, "plan", "refine", "generative service call failed", err)
	}
	return p.decode(ctx, content, previous.Prompt)
}

// planPayload is the declared JSON schema the model must produce.
type planPayload struct {
	SimulationType string          `json:"simulation_type"`
	Objects        []objectPayload `json:"objects"`
	DurationFrames int             `json:"duration_frames"`
	Physics        physicsPayload  `json:"physics_settings"`
}

type objectPayload struct {
	Name     string  `json:"name"`
	Shape    string  `json:"shape"`
	Count    int     `json:"count"`
	Material string  `json:"material"`
	Scale    float64 `json:"scale"`
	Static   bool    `json:"is_static"`
}

type physicsPayload struct {
	Gravity          float64 `json:"gravity"`
	SubstepsPerFrame int     `json:"substeps_per_frame"`
	SolverIterations int     `json:"solver_iterations"`
	ResolutionMax    int     `json:"resolution_max"`
}

func (p *Planner) decode(ctx context.Context, content, request string) (plan.Plan, error) {
	var payload planPayload
	if err := llm.DecodeJSON(content, &payload); err != nil {
		return plan.Plan{}, services.Wrap(services.ErrPlanning, "plan", "decode", "schema-invalid response", err)
	}

	result := toPlan(payload, request)
	if err := result.Validate(); err != nil {
		return plan.Plan{}, services.Wrap(services.ErrPlanning, "plan", "validate", "unusable plan structure", err)
	}

	logging.WithContext(ctx, p.logger).Info("plan created",
		logging.String("simulation_type", string(result.SimulationType)),
		logging.Int("entity_kinds", len(result.Entities)),
		logging.Int("duration_frames", result.DurationFrames),
	)
	return result, nil
}

func toPlan(payload planPayload, request string) plan.Plan {
	simType := plan.SimulationType(strings.TrimSpace(payload.SimulationType))
	entities := make([]plan.Entity, 0, len(payload.Objects))
	for _, obj := range payload.Objects {
		scale := obj.Scale
		if scale <= 0 {
			scale = 1
		}
		entities = append(entities, plan.Entity{
			Name:     strings.TrimSpace(obj.Name),
			Shape:    plan.Shape(strings.TrimSpace(obj.Shape)),
			Count:    obj.Count,
			Material: strings.TrimSpace(obj.Material),
			Scale:    scale,
			Static:   obj.Static,
		})
	}

	physics := plan.PhysicsSettings{
		Gravity:          payload.Physics.Gravity,
		SubstepsPerFrame: payload.Physics.SubstepsPerFrame,
		SolverIterations: payload.Physics.SolverIterations,
		TimeScale:        1,
	}
	if physics.Gravity == 0 {
		physics.Gravity = -9.81
	}
	if physics.SubstepsPerFrame <= 0 {
		physics.SubstepsPerFrame = 10
	}
	if physics.SolverIterations <= 0 {
		physics.SolverIterations = 10
	}
	if simType.IsFluid() {
		physics.ResolutionMax = payload.Physics.ResolutionMax
		if physics.ResolutionMax == 0 {
			physics.ResolutionMax = 128
		}
	}

	duration := payload.DurationFrames
	if duration <= 0 {
		duration = defaultDuration(simType)
	}

	return plan.Plan{
		SimulationType: simType,
		Entities:       entities,
		Physics:        physics,
		DurationFrames: duration,
		FrameRate:      24,
		Prompt:         request,
		CreatedAt:      time.Now().UTC(),
	}
}

func defaultDuration(simType plan.SimulationType) int {
	switch {
	case simType == plan.Cloth:
		return 200
	case simType.IsFluid():
		return 150
	default:
		return 250
	}
}

func buildPlanningPrompt(request string) string {
	return fmt.Sprintf(`Parse this simulation request:

%q

Examples of good plans:

Request: "20 wooden blocks falling on concrete floor"
-> rigid_body, 20 cubes (wood), 1 plane (concrete, static), 250 frames

Request: "Smoke rising from a sphere"
-> fluid_smoke, 1 sphere (emitter), 150 frames

Request: "Red cloth draped over a sphere"
-> cloth, 1 plane (fabric), 1 sphere (static collision), 200 frames

Now parse the user's request above.`, request)
}

func buildRefinementPrompt(previous plan.Plan, feedback string) (string, error) {
	encoded, err := json.MarshalIndent(planToPayload(previous), "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`The previous plan for the request %q produced a low-quality result.

Previous plan:
%s

Quality feedback:
%s

Revise the plan to address the feedback. Keep what already works; change only
what the feedback calls out. Respond with the complete revised plan.`,
		previous.Prompt, encoded, feedback), nil
}

func planToPayload(p plan.Plan) planPayload {
	objects := make([]objectPayload, 0, len(p.Entities))
	for _, entity := range p.Entities {
		objects = append(objects, objectPayload{
			Name:     entity.Name,
			Shape:    string(entity.Shape),
			Count:    entity.Count,
			Material: entity.Material,
			Scale:    entity.Scale,
			Static:   entity.Static,
		})
	}
	return planPayload{
		SimulationType: string(p.SimulationType),
		Objects:        objects,
		DurationFrames: p.DurationFrames,
		Physics: physicsPayload{
			Gravity:          p.Physics.Gravity,
			SubstepsPerFrame: p.Physics.SubstepsPerFrame,
			SolverIterations: p.Physics.SolverIterations,
			ResolutionMax:    p.Physics.ResolutionMax,
		},
	}
}

const planningSystemPrompt = `You are an expert in physics simulations and 3D scene construction.

Your task is to parse user requests for simulations into structured plans.
Respond with a single JSON object matching this schema:

{
  "simulation_type": "rigid_body" | "fluid_smoke" | "fluid_fire" | "fluid_liquid" | "cloth",
  "objects": [
    {
      "name": string,
      "shape": "cube" | "sphere" | "cylinder" | "cone" | "plane" | "torus",
      "count": integer (1-1000),
      "material": string (simple terms: wood, metal, stone, rubber, glass, plastic, concrete),
      "scale": number (0.1-100),
      "is_static": boolean (true for ground planes and obstacles)
    }
  ],
  "duration_frames": integer (1-1000, 24 frames = 1 second),
  "physics_settings": {
    "gravity": number (negative pulls down, default -9.81),
    "substeps_per_frame": integer (1-20),
    "solver_iterations": integer (1-20),
    "resolution_max": integer (32-512, fluid simulations only)
  }
}

Guidelines:
1. Extract all objects mentioned, both active bodies and static ground or obstacles.
2. Always include a static ground plane for falling objects.
3. Defaults: rigid body 250 frames, fluids 150 frames, cloth 200 frames.
4. Infer reasonable values for anything unspecified. Be precise.`
