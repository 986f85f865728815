package pipeline

import (
	"simforge/internal/artifact"
	"simforge/internal/plan"
	"simforge/internal/quality"
	"simforge/internal/services"
	"simforge/internal/stage"
)

// ErrorDetail is a classified failure carried on the result. Kind and
// Suggestion come from the taxonomy so callers never parse error strings.
type ErrorDetail struct {
	Stage      string
	Kind       services.Kind
	Message    string
	Suggestion string
}

// Result is the full account of one pipeline run. It is always populated,
// even when the run fails, so callers can surface partial progress.
type Result struct {
	Request string
	// Success reports whether a usable artifact was produced. A run that
	// exhausts refinement below the quality threshold still succeeds with
	// ExhaustedFallback set.
	Success           bool
	ExhaustedFallback bool

	Plan      *plan.Plan
	Artifact  *artifact.Artifact
	Execution *artifact.ExecutionRecord
	Quality   *quality.Metrics

	// Iterations counts refinement passes beyond the first attempt.
	Iterations int

	// StageSeconds records wall time per stage, keyed "name" for the first
	// attempt and "name#N" for refinement iteration N.
	StageSeconds stage.Timings

	Warnings []string
	Errors   []ErrorDetail
}

func (r *Result) warn(message string) {
	r.Warnings = append(r.Warnings, message)
}

func (r *Result) recordError(stage string, err error) {
	cls := services.Classify(err)
	r.Errors = append(r.Errors, ErrorDetail{
		Stage:      stage,
		Kind:       cls.Kind,
		Message:    cls.Message,
		Suggestion: cls.Suggestion,
	})
}
