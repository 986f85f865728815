package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"simforge/internal/blender"
	"simforge/internal/queue"
	"simforge/internal/services/llm"
	"simforge/internal/stage"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var skipLLM bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify Blender, the planning model and the job store are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := ctx.newLogger("stderr")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			checks := make([]stage.Health, 0, 4)

			runner := blender.NewRunner(logger,
				blender.WithExecutable(cfg.Blender.Executable),
				blender.WithTimeout(30*time.Second),
			)
			if version, err := runner.CheckAvailable(cmd.Context()); err != nil {
				checks = append(checks, stage.Unhealthy("blender", err.Error()))
			} else {
				checks = append(checks, stage.Healthy("blender ("+version+")"))
			}

			if skipLLM {
				checks = append(checks, stage.Health{Name: "planning model", Ready: true, Detail: "skipped"})
			} else {
				checks = append(checks, checkLLM(cmd.Context(), cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.TimeoutSeconds))
			}

			if db, err := materialsDatabase(cfg); err != nil {
				checks = append(checks, stage.Unhealthy("materials database", err.Error()))
			} else {
				checks = append(checks, stage.Health{
					Name:   "materials database",
					Ready:  true,
					Detail: fmt.Sprintf("%d material(s)", db.Len()),
				})
			}

			checks = append(checks, checkStore(cmd.Context(), cfg.QueuePath()))

			rows := make([][]string, 0, len(checks))
			healthy := true
			for _, check := range checks {
				state := "ok"
				if !check.Ready {
					state = "FAIL"
					healthy = false
				}
				rows = append(rows, []string{check.Name, state, check.Detail})
			}
			table := renderTable([]string{"Check", "State", "Detail"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft})
			fmt.Fprintln(cmd.OutOrStdout(), table)

			if !healthy {
				return fmt.Errorf("one or more checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipLLM, "skip-llm", false, "Skip the planning model connectivity check")
	return cmd
}

func checkLLM(ctx context.Context, apiKey, baseURL, model string, timeoutSeconds int) stage.Health {
	client := llm.NewClient(llm.Config{
		APIKey:         apiKey,
		BaseURL:        baseURL,
		Model:          model,
		TimeoutSeconds: timeoutSeconds,
	})
	if err := client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("planning model", err.Error())
	}
	return stage.Healthy("planning model")
}

func checkStore(ctx context.Context, path string) stage.Health {
	store, err := queue.Open(path)
	if err != nil {
		return stage.Unhealthy("job store", err.Error())
	}
	defer store.Close()

	summary, err := store.Health(ctx)
	if err != nil {
		return stage.Unhealthy("job store", err.Error())
	}
	return stage.Health{
		Name:   "job store",
		Ready:  true,
		Detail: fmt.Sprintf("%d job(s), %d pending", summary.Total, summary.Pending),
	}
}
