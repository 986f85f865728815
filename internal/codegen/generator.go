// Package codegen renders an enriched plan into a headless Blender Python
// script. Generation is deterministic: the same plan and output path always
// produce the same artifact, which keeps quality scoring reproducible across
// refinement iterations.
package codegen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"simforge/internal/artifact"
	"simforge/internal/logging"
	"simforge/internal/plan"
	"simforge/internal/services"
)

// Generator renders plans into artifacts.
type Generator struct {
	logger *slog.Logger
}

// New constructs a Generator.
func New(logger *slog.Logger) *Generator {
	return &Generator{logger: logging.NewComponentLogger(logger, "codegen")}
}

// Generate renders the script for an enriched plan.
func (g *Generator) Generate(ctx context.Context, p plan.Plan, outputPath string) (artifact.Artifact, error) {
	if !p.Enriched() {
		return artifact.Artifact{}, services.Wrap(services.ErrValidation, "generate-artifact", "render", "plan is not enriched", nil)
	}
	if strings.TrimSpace(outputPath) == "" {
		return artifact.Artifact{}, services.Wrap(services.ErrValidation, "generate-artifact", "render", "output path required", nil)
	}

	var body string
	var err error
	switch {
	case p.SimulationType == plan.RigidBody:
		body, err = render(rigidBodyTemplate, p)
	case p.SimulationType == plan.FluidSmoke || p.SimulationType == plan.FluidFire:
		body, err = render(smokeTemplate, p)
	case p.SimulationType == plan.FluidLiquid:
		body, err = render(liquidTemplate, p)
	case p.SimulationType == plan.Cloth:
		body, err = render(clothTemplate, p)
	default:
		err = fmt.Errorf("unsupported simulation type %q", p.SimulationType)
	}
	if err != nil {
		return artifact.Artifact{}, services.Wrap(services.ErrValidation, "generate-artifact", "render", "template execution failed", err)
	}

	script := strings.Join([]string{
		header(p),
		body,
		sceneFooter(p, outputPath),
	}, "\n")

	art := artifact.New(script, outputPath, Complexity(p))
	logging.WithContext(ctx, g.logger).Info("artifact generated",
		logging.String("simulation_type", string(p.SimulationType)),
		logging.Int("script_bytes", len(script)),
		logging.Float64("complexity", art.ComplexityScore),
	)
	return art, nil
}

// Complexity estimates how heavy the artifact is to execute, in [0,1].
func Complexity(p plan.Plan) float64 {
	score := 0.2
	score += float64(p.TotalObjectCount()) / float64(plan.MaxEntityCount) * 0.4
	score += float64(p.DurationFrames) / float64(plan.MaxDurationFrames) * 0.2
	if p.SimulationType.IsFluid() {
		score += float64(p.Physics.ResolutionMax) / float64(plan.MaxFluidRes) * 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

func render(tmpl *template.Template, p plan.Plan) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, templateData(p)); err != nil {
		return "", err
	}
	return sb.String(), nil
}

type entityData struct {
	Name           string
	Shape          string
	Count          int
	Scale          float64
	Static         bool
	Density        float64
	Friction       float64
	Restitution    float64
	LinearDamping  float64
	AngularDamping float64
	CollisionShape string
}

type scriptData struct {
	Entities      []entityData
	Gravity       float64
	Substeps      int
	Iterations    int
	ResolutionMax int
	QualitySteps  int
	Frames        int
	FrameRate     int
}

func templateData(p plan.Plan) scriptData {
	data := scriptData{
		Gravity:       p.Physics.Gravity,
		Substeps:      p.Physics.SubstepsPerFrame,
		Iterations:    p.Physics.SolverIterations,
		ResolutionMax: p.Physics.ResolutionMax,
		QualitySteps:  p.Physics.QualitySteps,
		Frames:        p.DurationFrames,
		FrameRate:     p.FrameRate,
	}
	for _, entity := range p.Entities {
		shape := collisionShapeToken(entity.Properties.CollisionShape)
		data.Entities = append(data.Entities, entityData{
			Name:           sanitizeName(entity.Name),
			Shape:          string(entity.Shape),
			Count:          entity.Count,
			Scale:          entity.Scale,
			Static:         entity.Static,
			Density:        entity.Properties.Density,
			Friction:       entity.Properties.Friction,
			Restitution:    entity.Properties.Restitution,
			LinearDamping:  entity.Properties.LinearDamping,
			AngularDamping: entity.Properties.AngularDamping,
			CollisionShape: shape,
		})
	}
	return data
}

func collisionShapeToken(shape string) string {
	switch shape {
	case "box":
		return "BOX"
	case "sphere":
		return "SPHERE"
	case "mesh":
		return "MESH"
	default:
		return "CONVEX_HULL"
	}
}

// sanitizeName keeps entity names usable as Blender object name prefixes.
func sanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		case r == ' ', r == '-':
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "object"
	}
	return sb.String()
}

func header(p plan.Plan) string {
	return fmt.Sprintf(`import bpy
import math

# Generated simulation script: %s

def reset_scene():
    bpy.ops.object.select_all(action='SELECT')
    bpy.ops.object.delete(use_global=False)
    for mesh in list(bpy.data.meshes):
        if mesh.users == 0:
            bpy.data.meshes.remove(mesh)

reset_scene()`, p.SimulationType)
}

func sceneFooter(p plan.Plan, outputPath string) string {
	return fmt.Sprintf(`
def setup_camera_and_light():
    bpy.ops.object.camera_add(location=(14.0, -14.0, 10.0), rotation=(math.radians(63), 0.0, math.radians(45)))
    bpy.context.scene.camera = bpy.context.object
    bpy.ops.object.light_add(type='SUN', location=(6.0, -6.0, 12.0))
    bpy.context.object.data.energy = 3.0

setup_camera_and_light()

scene = bpy.context.scene
scene.frame_start = 1
scene.frame_end = %d
scene.render.fps = %d

bpy.ops.wm.save_as_mainfile(filepath=%q)
print("frames 1-%d")
print("SAVED:" + %q)
`, p.DurationFrames, p.FrameRate, outputPath, p.DurationFrames, outputPath)
}
