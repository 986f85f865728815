// Package quality measures how well an executed simulation matches its
// plan. Measurement has two halves: an inspector that extracts scene facts
// from the saved .blend file, and a deterministic scorer that folds those
// facts into a single overall score in [0,1].
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"simforge/internal/services"
)

// resultMarker prefixes the single machine-readable line the inspection
// script prints among Blender's own chatter.
const resultMarker = "INSPECTION_RESULT:"

// Inspection holds the scene facts extracted from a saved .blend file.
type Inspection struct {
	ObjectCount      int  `json:"object_count"`
	HasCamera        bool `json:"has_camera"`
	HasLight         bool `json:"has_light"`
	RigidBodyCount   int  `json:"rigid_body_count"`
	FluidDomainCount int  `json:"fluid_domain_count"`
	ClothCount       int  `json:"cloth_count"`
	FrameStart       int  `json:"frame_start"`
	FrameEnd         int  `json:"frame_end"`
}

// Inspector extracts an Inspection from a saved scene file.
type Inspector interface {
	Inspect(ctx context.Context, blendPath string) (Inspection, error)
}

// ScriptRunner is the slice of the blender runner the inspector needs.
type ScriptRunner interface {
	Inspect(ctx context.Context, blendPath, script string) (string, error)
}

// BlenderInspector opens the scene in headless Blender and runs a small
// counting script.
type BlenderInspector struct {
	runner ScriptRunner
}

// NewBlenderInspector constructs an inspector backed by the given runner.
func NewBlenderInspector(runner ScriptRunner) *BlenderInspector {
	return &BlenderInspector{runner: runner}
}

// Inspect runs the counting script against blendPath.
func (b *BlenderInspector) Inspect(ctx context.Context, blendPath string) (Inspection, error) {
	out, err := b.runner.Inspect(ctx, blendPath, inspectionScript)
	if err != nil {
		return Inspection{}, err
	}
	return ParseInspection(out)
}

// ParseInspection finds the marker line in process output and decodes it.
func ParseInspection(output string) (Inspection, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, resultMarker) {
			continue
		}
		var insp Inspection
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, resultMarker)), &insp); err != nil {
			return Inspection{}, services.Wrap(services.ErrExecution, "score-quality", "parse",
				fmt.Sprintf("malformed inspection payload: %v", err), nil)
		}
		return insp, nil
	}
	return Inspection{}, services.Wrap(services.ErrExecution, "score-quality", "parse",
		"inspection output missing result line", nil)
}

var _ Inspector = (*BlenderInspector)(nil)

const inspectionScript = `import bpy
import json

scene = bpy.context.scene
counts = {
    "object_count": 0,
    "has_camera": False,
    "has_light": False,
    "rigid_body_count": 0,
    "fluid_domain_count": 0,
    "cloth_count": 0,
    "frame_start": scene.frame_start,
    "frame_end": scene.frame_end,
}
for obj in scene.objects:
    if obj.type == 'CAMERA':
        counts["has_camera"] = True
        continue
    if obj.type == 'LIGHT':
        counts["has_light"] = True
        continue
    if obj.type != 'MESH':
        continue
    counts["object_count"] += 1
    if obj.rigid_body is not None:
        counts["rigid_body_count"] += 1
    for mod in obj.modifiers:
        if mod.type == 'FLUID' and mod.fluid_type == 'DOMAIN':
            counts["fluid_domain_count"] += 1
        elif mod.type == 'CLOTH':
            counts["cloth_count"] += 1

print("INSPECTION_RESULT:" + json.dumps(counts))
`
