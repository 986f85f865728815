package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"simforge/internal/logging"
	"simforge/internal/queue"
	"simforge/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logPath := filepath.Join(cfg.Paths.LogDir, "simforge-worker.log")
			logger, err := ctx.newLogger("stdout", logPath)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := queue.Open(cfg.QueuePath())
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			defer store.Close()

			orch, err := ctx.buildOrchestrator(logger)
			if err != nil {
				return err
			}

			w, err := worker.New(store, orch, worker.Options{
				LockPath:          cfg.LockPath(),
				PollInterval:      time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
				HeartbeatInterval: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
				StaleAfter:        time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
				Concurrency:       cfg.Workflow.WorkerConcurrency,
			}, logger)
			if err != nil {
				return err
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := w.Start(runCtx); err != nil {
				return err
			}
			logger.Info("worker started",
				logging.String("queue", cfg.QueuePath()),
				logging.Int("concurrency", cfg.Workflow.WorkerConcurrency))

			<-runCtx.Done()
			logger.Info("worker shutting down")
			w.Stop()
			return nil
		},
	}
}
