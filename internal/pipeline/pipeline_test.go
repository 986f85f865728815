package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"simforge/internal/artifact"
	"simforge/internal/logging"
	"simforge/internal/materials"
	"simforge/internal/plan"
	"simforge/internal/quality"
	"simforge/internal/services"
	"simforge/internal/stage"
)

func testPlan() plan.Plan {
	props := materials.Properties{Name: "wood_oak", Density: 700, CollisionShape: "box"}
	return plan.Plan{
		Prompt:         "crates falling",
		SimulationType: plan.RigidBody,
		Entities: []plan.Entity{
			{Name: "crate", Shape: plan.ShapeCube, Count: 10, Material: "wood_oak", Scale: 1, Properties: &props},
			{Name: "ground", Shape: plan.ShapePlane, Count: 1, Material: "concrete", Scale: 1, Static: true, Properties: &props},
		},
		Physics:        plan.PhysicsSettings{Gravity: -9.81, SubstepsPerFrame: 10, SolverIterations: 10, TimeScale: 1},
		DurationFrames: 250,
		FrameRate:      24,
	}
}

type fakePlanner struct {
	planErr    error
	refineErr  error
	refineCnt  int
	refinePlan plan.Plan
}

func (f *fakePlanner) CreatePlan(ctx context.Context, request string) (plan.Plan, error) {
	if f.planErr != nil {
		return plan.Plan{}, f.planErr
	}
	return testPlan(), nil
}

func (f *fakePlanner) Refine(ctx context.Context, previous plan.Plan, feedback string) (plan.Plan, error) {
	f.refineCnt++
	if f.refineErr != nil {
		return plan.Plan{}, f.refineErr
	}
	if f.refinePlan.Prompt != "" {
		return f.refinePlan, nil
	}
	return previous, nil
}

type fakeEnricher struct {
	err      error
	warnings []string
}

func (f *fakeEnricher) Enrich(ctx context.Context, input plan.Plan) (plan.Plan, []string, error) {
	if f.err != nil {
		return plan.Plan{}, nil, f.err
	}
	return input, f.warnings, nil
}

type fakeGenerator struct{ err error }

func (f *fakeGenerator) Generate(ctx context.Context, p plan.Plan, outputPath string) (artifact.Artifact, error) {
	if f.err != nil {
		return artifact.Artifact{}, f.err
	}
	return artifact.New("import bpy\n", outputPath, 0.3), nil
}

type fakeValidator struct{ err error }

func (f *fakeValidator) Check(ctx context.Context, art artifact.Artifact) (artifact.Artifact, artifact.ValidationOutcome, error) {
	if f.err != nil {
		return art, artifact.ValidationOutcome{Valid: false}, f.err
	}
	return art, artifact.ValidationOutcome{Valid: true}, nil
}

// fakeExecutor returns scripted errors in order, then succeeds.
type fakeExecutor struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	inFlight int32
	peak     int32
	delay    time.Duration
}

func (f *fakeExecutor) Execute(ctx context.Context, art artifact.Artifact) (artifact.ExecutionRecord, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if current <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, current) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return artifact.ExecutionRecord{}, ctx.Err()
		}
	}

	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()
	if idx < len(f.errs) && f.errs[idx] != nil {
		return artifact.ExecutionRecord{}, f.errs[idx]
	}
	return artifact.ExecutionRecord{Success: true, OutputPath: art.OutputPath, FrameCount: 250, ElapsedSeconds: 1}, nil
}

// fakeInspector returns scripted inspections in order, repeating the last.
type fakeInspector struct {
	mu    sync.Mutex
	insps []quality.Inspection
	err   error
	calls int
}

func (f *fakeInspector) Inspect(ctx context.Context, blendPath string) (quality.Inspection, error) {
	if f.err != nil {
		return quality.Inspection{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.insps) {
		idx = len(f.insps) - 1
	}
	return f.insps[idx], nil
}

func goodInspection() quality.Inspection {
	return quality.Inspection{ObjectCount: 11, HasCamera: true, HasLight: true, RigidBodyCount: 11, FrameStart: 1, FrameEnd: 250}
}

func poorInspection() quality.Inspection {
	return quality.Inspection{ObjectCount: 11, RigidBodyCount: 0, FrameStart: 1, FrameEnd: 250}
}

func newTestOrchestrator(deps Deps, opts Options) *Orchestrator {
	o := New(deps, opts, logging.NewNop())
	o.sleep = func(context.Context, time.Duration) error { return nil }
	return o
}

func defaultDeps(executor *fakeExecutor, inspector *fakeInspector) Deps {
	return Deps{
		Planner:   &fakePlanner{},
		Enricher:  &fakeEnricher{},
		Generator: &fakeGenerator{},
		Validator: &fakeValidator{},
		Executor:  executor,
		Inspector: inspector,
	}
}

func TestRunJobSucceeds(t *testing.T) {
	executor := &fakeExecutor{}
	result, err := newTestOrchestrator(defaultDeps(executor, &fakeInspector{insps: []quality.Inspection{goodInspection()}}), Options{}).
		RunJob(context.Background(), Request{ID: "r1", Text: "drop 10 crates", OutputPath: "/tmp/out.blend"})
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if !result.Success || result.ExhaustedFallback {
		t.Errorf("unexpected result flags: %+v", result)
	}
	if result.Quality == nil || result.Quality.Overall != 1.0 {
		t.Errorf("expected perfect quality, got %+v", result.Quality)
	}
	if result.Iterations != 0 {
		t.Errorf("expected no refinement, got %d iterations", result.Iterations)
	}
	for _, name := range []string{StagePlan, StageEnrich, StageGenerate, StageValidate, StageExecute, StageScore} {
		if _, ok := result.StageSeconds[name]; !ok {
			t.Errorf("missing timing for stage %s", name)
		}
	}
}

func TestRunJobRetriesTransientExecutionFailure(t *testing.T) {
	executor := &fakeExecutor{errs: []error{
		services.Wrap(services.ErrExecution, StageExecute, "run", "blender crashed", errors.New("exit 11")),
	}}
	result, err := newTestOrchestrator(defaultDeps(executor, &fakeInspector{insps: []quality.Inspection{goodInspection()}}), Options{}).
		RunJob(context.Background(), Request{ID: "r1", Text: "drop crates", OutputPath: "/tmp/out.blend"})
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if !result.Success {
		t.Error("expected success after retry")
	}
	if executor.calls != 2 {
		t.Errorf("executor called %d times, want 2", executor.calls)
	}
}

func TestRunJobFatalEnrichmentFailureIsNotRetried(t *testing.T) {
	enricher := &fakeEnricher{err: services.Wrap(services.ErrEnrichment, StageEnrich, "resolve", "materials database empty", nil)}
	deps := defaultDeps(&fakeExecutor{}, &fakeInspector{insps: []quality.Inspection{goodInspection()}})
	deps.Enricher = enricher
	result, err := newTestOrchestrator(deps, Options{}).
		RunJob(context.Background(), Request{ID: "r1", Text: "drop crates", OutputPath: "/tmp/out.blend"})
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Success {
		t.Error("result should not report success")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one classified error, got %v", result.Errors)
	}
	if result.Errors[0].Kind != services.KindEnrichmentFailure {
		t.Errorf("kind = %s, want enrichment_failure", result.Errors[0].Kind)
	}
}

func TestRunJobTimeoutBudgetExhausted(t *testing.T) {
	timeout := services.Wrap(services.ErrTimeout, StageExecute, "run", "blender exceeded 5m0s budget", context.DeadlineExceeded)
	executor := &fakeExecutor{errs: []error{timeout, timeout, timeout}}
	result, err := newTestOrchestrator(defaultDeps(executor, &fakeInspector{insps: []quality.Inspection{goodInspection()}}), Options{StageRetryLimit: 3}).
		RunJob(context.Background(), Request{ID: "r1", Text: "drop crates", OutputPath: "/tmp/out.blend"})
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if executor.calls != 3 {
		t.Errorf("executor called %d times, want exactly the retry limit of 3", executor.calls)
	}
	if result.Errors[0].Kind != services.KindTimeout {
		t.Errorf("kind = %s, want timeout", result.Errors[0].Kind)
	}
}

func TestRunJobRefinementImprovesQuality(t *testing.T) {
	inspector := &fakeInspector{insps: []quality.Inspection{poorInspection(), goodInspection()}}
	planner := &fakePlanner{}
	deps := defaultDeps(&fakeExecutor{}, inspector)
	deps.Planner = planner
	result, err := newTestOrchestrator(deps, Options{EnableRefinement: true}).
		RunJob(context.Background(), Request{ID: "r1", Text: "drop crates", OutputPath: "/tmp/out.blend"})
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if !result.Success || result.ExhaustedFallback {
		t.Errorf("unexpected flags: success=%v fallback=%v", result.Success, result.ExhaustedFallback)
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}
	if result.Quality.Overall != 1.0 {
		t.Errorf("expected refined attempt kept, quality %f", result.Quality.Overall)
	}
	if planner.refineCnt != 1 {
		t.Errorf("refine called %d times, want 1", planner.refineCnt)
	}
	if result.Artifact.OutputPath != "/tmp/out_r1.blend" {
		t.Errorf("refined artifact path = %q", result.Artifact.OutputPath)
	}
}

func TestRunJobRefinementExhaustedKeepsBestAttempt(t *testing.T) {
	inspector := &fakeInspector{insps: []quality.Inspection{poorInspection()}}
	result, err := newTestOrchestrator(defaultDeps(&fakeExecutor{}, inspector), Options{EnableRefinement: true, MaxRefinementIterations: 2}).
		RunJob(context.Background(), Request{ID: "r1", Text: "drop crates", OutputPath: "/tmp/out.blend"})
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if !result.Success {
		t.Error("exhausted refinement must still succeed")
	}
	if !result.ExhaustedFallback {
		t.Error("expected exhausted fallback flag")
	}
	if result.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", result.Iterations)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "below the 0.80 threshold") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected warning naming the unmet threshold, got %v", result.Warnings)
	}
}

func TestRunJobRefinementIterationFailureBecomesWarning(t *testing.T) {
	inspector := &fakeInspector{insps: []quality.Inspection{poorInspection()}}
	planner := &fakePlanner{refineErr: services.Wrap(services.ErrPlanning, StagePlan, "refine", "model returned junk", nil)}
	deps := defaultDeps(&fakeExecutor{}, inspector)
	deps.Planner = planner
	result, err := newTestOrchestrator(deps, Options{EnableRefinement: true, MaxRefinementIterations: 1, StageRetryLimit: 1}).
		RunJob(context.Background(), Request{ID: "r1", Text: "drop crates", OutputPath: "/tmp/out.blend"})
	if err != nil {
		t.Fatalf("iteration failure must not fail the job: %v", err)
	}
	if !result.Success {
		t.Error("best attempt should survive iteration failure")
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "plan refinement failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected refinement failure warning, got %v", result.Warnings)
	}
}

func TestRunJobProgressIsMonotonic(t *testing.T) {
	var mu sync.Mutex
	var fractions []float64
	reporter := stage.ReporterFunc(func(stageName string, fraction float64, message string) {
		mu.Lock()
		fractions = append(fractions, fraction)
		mu.Unlock()
	})
	inspector := &fakeInspector{insps: []quality.Inspection{poorInspection(), goodInspection()}}
	_, err := newTestOrchestrator(defaultDeps(&fakeExecutor{}, inspector), Options{EnableRefinement: true}).
		RunJob(context.Background(), Request{ID: "r1", Text: "drop crates", OutputPath: "/tmp/out.blend", Reporter: reporter})
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if len(fractions) == 0 {
		t.Fatal("no progress reported")
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("progress went backwards at %d: %v", i, fractions)
		}
	}
	if fractions[len(fractions)-1] != 1.0 {
		t.Errorf("final fraction = %f, want 1.0", fractions[len(fractions)-1])
	}
}

func TestRunJobExecutionConcurrencyIsBounded(t *testing.T) {
	executor := &fakeExecutor{delay: 30 * time.Millisecond}
	orch := newTestOrchestrator(defaultDeps(executor, &fakeInspector{insps: []quality.Inspection{goodInspection()}}), Options{MaxConcurrentExecutions: 2})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := orch.RunJob(context.Background(), Request{
				ID:         fmt.Sprintf("r%d", i),
				Text:       "drop crates",
				OutputPath: fmt.Sprintf("/tmp/out%d.blend", i),
			})
			if err != nil {
				t.Errorf("RunJob: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if peak := atomic.LoadInt32(&executor.peak); peak > 2 {
		t.Errorf("peak concurrent executions = %d, want at most 2", peak)
	}
}

func TestRunJobCancellation(t *testing.T) {
	executor := &fakeExecutor{delay: time.Second}
	orch := newTestOrchestrator(defaultDeps(executor, &fakeInspector{insps: []quality.Inspection{goodInspection()}}), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	result, err := orch.RunJob(ctx, Request{ID: "r1", Text: "drop crates", OutputPath: "/tmp/out.blend"})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if result.Success {
		t.Error("canceled run must not succeed")
	}
	if len(result.Errors) == 0 || result.Errors[0].Kind != services.KindCanceled {
		t.Errorf("expected canceled classification, got %+v", result.Errors)
	}
}

func TestRunJobRejectsEmptyRequest(t *testing.T) {
	orch := newTestOrchestrator(defaultDeps(&fakeExecutor{}, &fakeInspector{insps: []quality.Inspection{goodInspection()}}), Options{})
	result, err := orch.RunJob(context.Background(), Request{ID: "r1", Text: "  ", OutputPath: "/tmp/out.blend"})
	if err == nil {
		t.Fatal("expected error for empty request")
	}
	if result == nil {
		t.Fatal("result must never be nil")
	}
}

func TestIterationPath(t *testing.T) {
	if got := iterationPath("/tmp/out.blend", 0); got != "/tmp/out.blend" {
		t.Errorf("iteration 0 path = %q", got)
	}
	if got := iterationPath("/tmp/out.blend", 2); got != "/tmp/out_r2.blend" {
		t.Errorf("iteration 2 path = %q", got)
	}
}

func TestBackoffDelayRespectsCap(t *testing.T) {
	orch := newTestOrchestrator(defaultDeps(&fakeExecutor{}, &fakeInspector{insps: []quality.Inspection{goodInspection()}}),
		Options{RetryBaseDelay: time.Second, RetryMaxDelay: 4 * time.Second})
	for attempt := 1; attempt <= 10; attempt++ {
		delay := orch.backoffDelay(attempt)
		// Jitter can push at most 25% past the cap.
		if delay > 5*time.Second {
			t.Errorf("attempt %d delay %s exceeds cap plus jitter", attempt, delay)
		}
		if delay < 0 {
			t.Errorf("attempt %d delay negative", attempt)
		}
	}
}
