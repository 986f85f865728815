// Package worker drains the job queue in the background. A flock-guarded
// single instance claims pending jobs, runs them through the pipeline and
// writes progress plus the scored outcome back to the store so the CLI can
// watch jobs from another process.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"simforge/internal/logging"
	"simforge/internal/pipeline"
	"simforge/internal/queue"
	"simforge/internal/services"
	"simforge/internal/stage"
)

// Orchestrator is the slice of the pipeline the worker drives.
type Orchestrator interface {
	RunJob(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Options configure the drain loop.
type Options struct {
	// LockPath guards against a second worker instance. Empty disables
	// the guard, which only makes sense in tests.
	LockPath          string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	// StaleAfter is how long a claimed job may go without a heartbeat
	// before a restarted worker reclaims it.
	StaleAfter  time.Duration
	Concurrency int
}

func (o *Options) normalize() {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 2 * time.Minute
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
}

// Worker claims and processes queued jobs.
type Worker struct {
	store    *queue.Store
	pipeline Orchestrator
	opts     Options
	logger   *slog.Logger
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New constructs a worker.
func New(store *queue.Store, orch Orchestrator, opts Options, logger *slog.Logger) (*Worker, error) {
	if store == nil || orch == nil {
		return nil, errors.New("worker requires a store and a pipeline")
	}
	opts.normalize()
	w := &Worker{
		store:    store,
		pipeline: orch,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "worker"),
	}
	if opts.LockPath != "" {
		w.lock = flock.New(opts.LockPath)
	}
	return w, nil
}

// Start acquires the instance lock, recovers stuck jobs and launches the
// drain loop. It returns immediately; use Stop to shut down.
func (w *Worker) Start(ctx context.Context) error {
	if w.running.Load() {
		return errors.New("worker already running")
	}
	if w.lock != nil {
		ok, err := w.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire worker lock: %w", err)
		}
		if !ok {
			return errors.New("another worker instance is already running")
		}
	}

	reset, err := w.store.ResetStuckJobs(ctx)
	if err != nil {
		w.releaseLock()
		return fmt.Errorf("reset stuck jobs: %w", err)
	}
	if reset > 0 {
		w.logger.Info("recovered stuck jobs", logging.Int64("count", reset))
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	group.SetLimit(w.opts.Concurrency + 1) // claimers plus the drain loop itself

	w.cancel = cancel
	w.group = group
	w.running.Store(true)

	group.Go(func() error {
		w.drain(groupCtx)
		return nil
	})
	w.logger.Info("worker started",
		logging.Int("concurrency", w.opts.Concurrency),
		logging.Duration("poll_interval", w.opts.PollInterval),
	)
	return nil
}

// Stop cancels processing and waits for in-flight jobs to settle.
func (w *Worker) Stop() {
	if !w.running.Load() {
		return
	}
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.group != nil {
		_ = w.group.Wait()
		w.group = nil
	}
	w.releaseLock()
	w.running.Store(false)
	w.logger.Info("worker stopped")
}

// Running reports whether the drain loop is active.
func (w *Worker) Running() bool {
	return w.running.Load()
}

func (w *Worker) releaseLock() {
	if w.lock == nil {
		return
	}
	if err := w.lock.Unlock(); err != nil {
		w.logger.Warn("failed to release worker lock", logging.Error(err))
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := w.store.ReclaimStale(ctx, time.Now().Add(-w.opts.StaleAfter)); err != nil {
			w.logger.Warn("reclaim stale jobs failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}

		job, err := w.store.ClaimNextPending(ctx)
		if err != nil {
			w.logger.Error("failed to claim next job", logging.Error(err))
			w.wait(ctx)
			continue
		}
		if job == nil {
			w.wait(ctx)
			continue
		}

		claimed := job
		started := w.group.TryGo(func() error {
			w.process(ctx, claimed)
			return nil
		})
		if !started {
			// Concurrency budget is full; put the claim back.
			claimed.Status = queue.StatusPending
			claimed.LastHeartbeat = nil
			if err := w.store.Update(ctx, claimed); err != nil {
				w.logger.Error("failed to return claimed job", logging.Int64(logging.FieldJobID, claimed.ID), logging.Error(err))
			}
			w.wait(ctx)
		}
	}
}

func (w *Worker) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.opts.PollInterval):
	}
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	ctx = services.WithJobID(ctx, job.ID)
	log := logging.WithContext(ctx, w.logger)
	log.Info("job started", logging.String("request", job.Request))

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeat(heartbeatCtx, job.ID)

	reporter := stage.ReporterFunc(func(stageName string, fraction float64, message string) {
		job.SetProgress(stageName, message, fraction*100)
		if stageName == pipeline.StageRefine && job.Status == queue.StatusRunning {
			job.Status = queue.StatusRefining
		}
		if err := w.store.Update(context.WithoutCancel(ctx), job); err != nil {
			log.Warn("failed to persist progress", logging.Error(err))
		}
	})

	result, err := w.pipeline.RunJob(ctx, pipeline.Request{
		ID:         fmt.Sprintf("job-%d", job.ID),
		Text:       job.Request,
		OutputPath: job.OutputPath,
		Reporter:   reporter,
	})
	stopHeartbeat()

	w.finish(context.WithoutCancel(ctx), log, job, result, err)
}

func (w *Worker) finish(ctx context.Context, log *slog.Logger, job *queue.Job, result *pipeline.Result, runErr error) {
	job.LastHeartbeat = nil
	if result != nil {
		job.Iterations = result.Iterations
		job.ExhaustedFallback = result.ExhaustedFallback
		if result.Quality != nil {
			job.QualityScore = result.Quality.Overall
		}
		// Refinement may have produced the winning artifact at an
		// iteration-suffixed path; record where it actually landed.
		if result.Execution != nil && result.Execution.OutputPath != "" {
			job.ArtifactPath = result.Execution.OutputPath
		}
		if encoded, err := json.Marshal(summarize(result)); err == nil {
			job.ResultJSON = string(encoded)
		}
	}

	switch {
	case runErr == nil:
		job.Status = queue.StatusSucceeded
		job.SetProgress("done", "pipeline complete", 100)
		log.Info("job succeeded",
			logging.Float64("quality", job.QualityScore),
			logging.Int(logging.FieldIteration, job.Iterations),
		)
	case services.Classify(runErr).Kind == services.KindCanceled:
		// Shutdown mid-run: requeue so a restarted worker picks it up.
		job.Status = queue.StatusPending
		job.SetProgress("", queue.WorkerStopReason, 0)
		log.Info("job requeued after cancellation")
	default:
		cls := services.Classify(runErr)
		job.SetFailed(string(cls.Kind), cls.Message)
		log.Error("job failed",
			logging.String(logging.FieldErrorKind, string(cls.Kind)),
			logging.Error(runErr),
		)
	}

	if err := w.store.Update(ctx, job); err != nil {
		log.Error("failed to persist job outcome", logging.Error(err))
	}
}

func (w *Worker) heartbeat(ctx context.Context, id int64) {
	ticker := time.NewTicker(w.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.UpdateHeartbeat(ctx, id); err != nil && ctx.Err() == nil {
				w.logger.Warn("heartbeat update failed", logging.Int64(logging.FieldJobID, id), logging.Error(err))
			}
		}
	}
}

// resultSummary is the compact JSON stored on the job row.
type resultSummary struct {
	Success           bool               `json:"success"`
	ExhaustedFallback bool               `json:"exhausted_fallback,omitempty"`
	QualityOverall    float64            `json:"quality_overall"`
	Iterations        int                `json:"iterations"`
	StageSeconds      map[string]float64 `json:"stage_seconds,omitempty"`
	Warnings          []string           `json:"warnings,omitempty"`
	Errors            []string           `json:"errors,omitempty"`
}

func summarize(result *pipeline.Result) resultSummary {
	summary := resultSummary{
		Success:           result.Success,
		ExhaustedFallback: result.ExhaustedFallback,
		Iterations:        result.Iterations,
		StageSeconds:      result.StageSeconds,
		Warnings:          result.Warnings,
	}
	if result.Quality != nil {
		summary.QualityOverall = result.Quality.Overall
	}
	for _, detail := range result.Errors {
		summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", detail.Kind, detail.Message))
	}
	return summary
}
