package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"simforge/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage the simulation job queue",
	}

	jobsCmd.AddCommand(newJobsAddCommand(ctx))
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsStatusCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsResetCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))
	jobsCmd.AddCommand(newJobsHealthCommand(ctx))

	return jobsCmd
}

func newJobsAddCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "add <request>",
		Short: "Queue a simulation request for the background worker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := strings.TrimSpace(strings.Join(args, " "))
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			target := strings.TrimSpace(outputPath)
			if target == "" {
				name := fmt.Sprintf("sim_%s.blend", time.Now().Format("20060102_150405"))
				target = filepath.Join(cfg.Paths.OutputDir, name)
			}

			return ctx.withStore(func(store *queue.Store) error {
				job, err := store.NewJob(cmd.Context(), request, target)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d -> %s\n", job.ID, job.OutputPath)
				fmt.Fprintln(cmd.OutOrStdout(), "Run `simforge worker` to process the queue")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination for the .blend artifact")
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []queue.Status
			for _, raw := range statusFilters {
				status, ok := queue.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}

			return ctx.withStore(func(store *queue.Store) error {
				jobs, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs queued")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						string(job.Status),
						formatProgress(job),
						formatQuality(job),
						truncate(job.Request, 48),
						job.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				table := renderTable(
					[]string{"ID", "Status", "Progress", "Quality", "Request", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Only show jobs with these statuses")
	return cmd
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			return ctx.withStore(func(store *queue.Store) error {
				job, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				rows := [][]string{
					{"ID", strconv.FormatInt(job.ID, 10)},
					{"Status", string(job.Status)},
					{"Request", job.Request},
					{"Output", job.OutputPath},
					{"Artifact", job.ArtifactPath},
					{"Progress", formatProgress(job)},
					{"Quality", formatQuality(job)},
					{"Iterations", strconv.Itoa(job.Iterations)},
					{"Fallback", yesNo(job.ExhaustedFallback)},
					{"Created", job.CreatedAt.Local().Format(time.RFC3339)},
					{"Updated", job.UpdatedAt.Local().Format(time.RFC3339)},
				}
				if job.ErrorMessage != "" {
					rows = append(rows, []string{"Error", job.ErrorMessage})
					rows = append(rows, []string{"Error kind", job.ErrorKind})
				}
				fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))

				if job.ResultJSON != "" {
					fmt.Fprintln(out, "Result:")
					fmt.Fprintln(out, job.ResultJSON)
				}
				return nil
			})
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Requeue failed jobs (all failed jobs when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				updated, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d job(s)\n", updated)
				return nil
			})
		},
	}
}

func newJobsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Return jobs stuck in a processing state to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				updated, err := store.ResetStuckJobs(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d job(s)\n", updated)
				return nil
			})
		},
	}
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id...>",
		Short: "Remove jobs from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				var removed int64
				for _, id := range ids {
					ok, err := store.Remove(cmd.Context(), id)
					if err != nil {
						return err
					}
					if ok {
						removed++
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", removed)
				return nil
			})
		},
	}
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var failedOnly bool
	var succeededOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if failedOnly && succeededOnly {
				return fmt.Errorf("--failed and --succeeded are mutually exclusive")
			}
			return ctx.withStore(func(store *queue.Store) error {
				var removed int64
				var err error
				switch {
				case failedOnly:
					removed, err = store.ClearFailed(cmd.Context())
				case succeededOnly:
					removed, err = store.ClearSucceeded(cmd.Context())
				default:
					removed, err = store.Clear(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only clear failed jobs")
	cmd.Flags().BoolVar(&succeededOnly, "succeeded", false, "Only clear succeeded jobs")
	return cmd
}

func newJobsHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show aggregate queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Pending", strconv.Itoa(summary.Pending)},
					{"Processing", strconv.Itoa(summary.Processing)},
					{"Succeeded", strconv.Itoa(summary.Succeeded)},
					{"Failed", strconv.Itoa(summary.Failed)},
					{"Total", strconv.Itoa(summary.Total)},
				}
				table := renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid job id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatProgress(job *queue.Job) string {
	if job.ProgressStage == "" && job.ProgressPercent == 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", job.ProgressPercent)
}

func formatQuality(job *queue.Job) string {
	if job.Status != queue.StatusSucceeded {
		return "-"
	}
	return fmt.Sprintf("%.2f", job.QualityScore)
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
