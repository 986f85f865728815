// Package pipeline orchestrates the six stages that turn a natural
// language request into a scored simulation artifact: plan, enrich,
// generate-artifact, validate-artifact, execute-externally and
// score-quality. The orchestrator owns retry policy, progress reporting,
// the execution concurrency limit and the quality-gated refinement loop;
// the stages themselves stay oblivious to each other.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"simforge/internal/artifact"
	"simforge/internal/logging"
	"simforge/internal/plan"
	"simforge/internal/quality"
	"simforge/internal/services"
	"simforge/internal/stage"
)

// Stage names double as progress identifiers and timing keys.
const (
	StagePlan     = "plan"
	StageEnrich   = "enrich"
	StageGenerate = "generate-artifact"
	StageValidate = "validate-artifact"
	StageExecute  = "execute-externally"
	StageScore    = "score-quality"

	// StageRefine is reported when a refinement iteration begins so callers
	// can surface the refining state; it is not a pipeline stage itself.
	StageRefine = "refine"
)

// progressCheckpoints give each stage a completion fraction so callers see
// movement even when a stage dominates wall time.
var progressCheckpoints = map[string]float64{
	StagePlan:     0.10,
	StageEnrich:   0.25,
	StageGenerate: 0.40,
	StageValidate: 0.55,
	StageExecute:  0.70,
	StageScore:    0.90,
}

// Planner produces and refines simulation plans.
type Planner interface {
	CreatePlan(ctx context.Context, request string) (plan.Plan, error)
	Refine(ctx context.Context, previous plan.Plan, feedback string) (plan.Plan, error)
}

// Enricher resolves materials and normalizes physics settings.
type Enricher interface {
	Enrich(ctx context.Context, input plan.Plan) (plan.Plan, []string, error)
}

// Generator renders an enriched plan into an artifact.
type Generator interface {
	Generate(ctx context.Context, p plan.Plan, outputPath string) (artifact.Artifact, error)
}

// Validator checks an artifact before execution.
type Validator interface {
	Check(ctx context.Context, art artifact.Artifact) (artifact.Artifact, artifact.ValidationOutcome, error)
}

// Executor runs the artifact through the external process.
type Executor interface {
	Execute(ctx context.Context, art artifact.Artifact) (artifact.ExecutionRecord, error)
}

// Deps bundles the stage collaborators.
type Deps struct {
	Planner   Planner
	Enricher  Enricher
	Generator Generator
	Validator Validator
	Executor  Executor
	Inspector quality.Inspector
}

// Options are the orchestrator-wide knobs. Zero values are replaced with
// defaults by normalize.
type Options struct {
	QualityThreshold        float64
	EnableRefinement        bool
	MaxRefinementIterations int
	StageRetryLimit         int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	MaxConcurrentExecutions int64
}

func (o *Options) normalize() {
	if o.QualityThreshold <= 0 || o.QualityThreshold > 1 {
		o.QualityThreshold = 0.8
	}
	if o.MaxRefinementIterations <= 0 {
		o.MaxRefinementIterations = 2
	}
	if o.StageRetryLimit <= 0 {
		o.StageRetryLimit = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 500 * time.Millisecond
	}
	if o.RetryMaxDelay < o.RetryBaseDelay {
		o.RetryMaxDelay = 10 * time.Second
	}
	if o.MaxConcurrentExecutions <= 0 {
		o.MaxConcurrentExecutions = 2
	}
}

// Request identifies one unit of work handed to RunJob.
type Request struct {
	ID         string
	Text       string
	OutputPath string
	Reporter   stage.Reporter
}

// Orchestrator runs requests through the pipeline. It is safe for
// concurrent use; the execution limiter is shared across all jobs.
type Orchestrator struct {
	deps    Deps
	opts    Options
	limiter *semaphore.Weighted
	sleep   func(context.Context, time.Duration) error
	rand    *rand.Rand
	randMu  sync.Mutex
	logger  *slog.Logger
}

// New constructs an Orchestrator.
func New(deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	opts.normalize()
	return &Orchestrator{
		deps:    deps,
		opts:    opts,
		limiter: semaphore.NewWeighted(opts.MaxConcurrentExecutions),
		sleep:   defaultSleep,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logging.NewComponentLogger(logger, "pipeline"),
	}
}

// attempt holds the product of one full pass through the stages.
type attemptResult struct {
	plan     plan.Plan
	artifact artifact.Artifact
	record   artifact.ExecutionRecord
	metrics  quality.Metrics
}

// RunJob executes the pipeline for one request. The returned Result is
// never nil; on failure it carries the classified errors alongside
// whatever the run produced before failing.
func (o *Orchestrator) RunJob(ctx context.Context, req Request) (*Result, error) {
	result := &Result{
		Request:      req.Text,
		StageSeconds: stage.Timings{},
	}
	if strings.TrimSpace(req.Text) == "" {
		err := services.Wrap(services.ErrPlanning, StagePlan, "validate", "request text is empty", nil)
		result.recordError(StagePlan, err)
		return result, err
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		err := services.Wrap(services.ErrConfiguration, StagePlan, "validate", "output path is empty", nil)
		result.recordError(StagePlan, err)
		return result, err
	}

	ctx = services.WithRequestID(ctx, req.ID)
	report := newMonotonicReporter(req.Reporter)
	log := logging.WithContext(ctx, o.logger)
	timings := result.StageSeconds

	// Stage 1: plan.
	var basePlan plan.Plan
	err := o.timedStage(ctx, timings, StagePlan, 0, o.opts.StageRetryLimit, func(ctx context.Context) error {
		p, err := o.deps.Planner.CreatePlan(ctx, req.Text)
		if err != nil {
			return err
		}
		basePlan = p
		return nil
	})
	if err != nil {
		result.recordError(StagePlan, err)
		return result, err
	}
	report(StagePlan, progressCheckpoints[StagePlan], "plan created")

	// First full attempt.
	best, err := o.attempt(ctx, basePlan, 0, req.OutputPath, result, report)
	if err != nil {
		result.recordError(stageOf(err), err)
		return result, err
	}

	// Quality-gated refinement. Iteration failures downgrade to warnings;
	// the best attempt so far always survives.
	bestMetrics := best.metrics
	if o.opts.EnableRefinement {
		for iter := 1; iter <= o.opts.MaxRefinementIterations && bestMetrics.Overall < o.opts.QualityThreshold; iter++ {
			result.Iterations = iter
			report(StageRefine, progressCheckpoints[StageScore], fmt.Sprintf("refinement iteration %d", iter))
			log.Info("starting refinement iteration",
				logging.Int(logging.FieldIteration, iter),
				logging.Float64("best_overall", bestMetrics.Overall),
			)

			var refined plan.Plan
			err := o.timedStage(ctx, timings, StagePlan, iter, o.opts.StageRetryLimit, func(ctx context.Context) error {
				p, err := o.deps.Planner.Refine(ctx, best.plan, bestMetrics.FeedbackSummary())
				if err != nil {
					return err
				}
				refined = p
				return nil
			})
			if err != nil {
				if ctx.Err() != nil {
					result.recordError(StagePlan, err)
					return result, err
				}
				result.warn(fmt.Sprintf("refinement iteration %d: plan refinement failed: %v", iter, err))
				continue
			}

			candidate, err := o.attempt(ctx, refined, iter, iterationPath(req.OutputPath, iter), result, report)
			if err != nil {
				if ctx.Err() != nil {
					result.recordError(stageOf(err), err)
					return result, err
				}
				result.warn(fmt.Sprintf("refinement iteration %d failed: %v", iter, err))
				continue
			}
			if quality.Better(&candidate.metrics, &bestMetrics) {
				best = candidate
				bestMetrics = candidate.metrics
			} else {
				result.warn(fmt.Sprintf("refinement iteration %d did not improve quality (%.2f vs %.2f), keeping earlier attempt",
					iter, candidate.metrics.Overall, bestMetrics.Overall))
			}
		}
	}

	result.Success = true
	result.Plan = &best.plan
	result.Artifact = &best.artifact
	result.Execution = &best.record
	result.Quality = &bestMetrics
	if bestMetrics.Overall < o.opts.QualityThreshold {
		result.ExhaustedFallback = true
		result.warn(fmt.Sprintf("final quality %.2f is below the %.2f threshold; returning the best attempt",
			bestMetrics.Overall, o.opts.QualityThreshold))
	}
	report("done", 1.0, "pipeline complete")
	log.Info("pipeline finished",
		logging.Float64("overall_quality", bestMetrics.Overall),
		logging.Int(logging.FieldIteration, result.Iterations),
		logging.Bool("exhausted_fallback", result.ExhaustedFallback),
	)
	return result, nil
}

// attempt runs enrich through score-quality once for the given plan.
func (o *Orchestrator) attempt(ctx context.Context, basePlan plan.Plan, iteration int, outputPath string, result *Result, report reportFunc) (attemptResult, error) {
	timings := result.StageSeconds
	var out attemptResult

	err := o.timedStage(ctx, timings, StageEnrich, iteration, 1, func(ctx context.Context) error {
		enriched, warnings, err := o.deps.Enricher.Enrich(ctx, basePlan)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			result.warn(w)
		}
		out.plan = enriched
		return nil
	})
	if err != nil {
		return out, err
	}
	report(StageEnrich, progressCheckpoints[StageEnrich], "materials resolved")

	// Generation is deterministic, so validation gets the deterministic
	// auto-fix pass inside Check rather than blind re-runs here.
	err = o.timedStage(ctx, timings, StageGenerate, iteration, 1, func(ctx context.Context) error {
		art, err := o.deps.Generator.Generate(ctx, out.plan, outputPath)
		if err != nil {
			return err
		}
		out.artifact = art
		return nil
	})
	if err != nil {
		return out, err
	}
	report(StageGenerate, progressCheckpoints[StageGenerate], "script generated")

	err = o.timedStage(ctx, timings, StageValidate, iteration, 1, func(ctx context.Context) error {
		checked, outcome, err := o.deps.Validator.Check(ctx, out.artifact)
		if err != nil {
			return err
		}
		if outcome.AutoFixed {
			result.warn(fmt.Sprintf("artifact repaired during validation: %s", strings.Join(outcome.Issues, "; ")))
		}
		out.artifact = checked
		return nil
	})
	if err != nil {
		return out, err
	}
	report(StageValidate, progressCheckpoints[StageValidate], "artifact validated")

	err = o.timedStage(ctx, timings, StageExecute, iteration, o.opts.StageRetryLimit, func(ctx context.Context) error {
		if err := o.limiter.Acquire(ctx, 1); err != nil {
			return err
		}
		defer o.limiter.Release(1)
		record, err := o.deps.Executor.Execute(ctx, out.artifact)
		out.record = record
		return err
	})
	if err != nil {
		return out, err
	}
	report(StageExecute, progressCheckpoints[StageExecute], "simulation executed")

	err = o.timedStage(ctx, timings, StageScore, iteration, o.opts.StageRetryLimit, func(ctx context.Context) error {
		insp, err := o.deps.Inspector.Inspect(ctx, out.artifact.OutputPath)
		if err != nil {
			return err
		}
		out.metrics = quality.Score(out.plan, insp)
		return nil
	})
	if err != nil {
		return out, err
	}
	report(StageScore, progressCheckpoints[StageScore], fmt.Sprintf("quality %.2f", out.metrics.Overall))

	return out, nil
}

// timedStage wraps runStage with wall-clock accounting and stage context.
func (o *Orchestrator) timedStage(ctx context.Context, timings stage.Timings, name string, iteration, maxAttempts int, fn func(context.Context) error) error {
	ctx = services.WithStage(ctx, name)
	start := time.Now()
	err := o.runStage(ctx, name, maxAttempts, fn)
	timings.Record(name, iteration, time.Since(start))
	return err
}

// stageOf recovers the stage name baked into a wrapped error message so the
// error detail can point at the failing stage.
func stageOf(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, name := range []string{StageEnrich, StageGenerate, StageValidate, StageExecute, StageScore, StagePlan} {
		if strings.Contains(msg, name) {
			return name
		}
	}
	return "pipeline"
}

// iterationPath derives a distinct output file per refinement pass so a
// later, worse attempt can never clobber the best artifact.
func iterationPath(base string, iteration int) string {
	if iteration == 0 {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + fmt.Sprintf("_r%d", iteration) + ext
}

type reportFunc func(stageName string, fraction float64, message string)

// newMonotonicReporter clamps progress so a refinement pass re-running
// earlier stages never appears to move backwards.
func newMonotonicReporter(inner stage.Reporter) reportFunc {
	if inner == nil {
		inner = stage.NopReporter{}
	}
	var mu sync.Mutex
	high := 0.0
	return func(stageName string, fraction float64, message string) {
		mu.Lock()
		if fraction < high {
			fraction = high
		} else {
			high = fraction
		}
		mu.Unlock()
		inner.Report(stageName, fraction, message)
	}
}
