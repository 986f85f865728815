package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"simforge/internal/pipeline"
	"simforge/internal/stage"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var jsonOutput bool
	var refine bool
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "generate <request>",
		Short: "Run one simulation request through the pipeline and wait for the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := strings.TrimSpace(strings.Join(args, " "))
			if request == "" {
				return fmt.Errorf("request text is required")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("refine") {
				cfg.Pipeline.EnableRefinement = refine
			}
			if cmd.Flags().Changed("max-iterations") {
				cfg.Pipeline.MaxRefinementIterations = maxIterations
			}

			logger, err := ctx.newLogger(filepath.Join(cfg.Paths.LogDir, "simforge.log"))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			orch, err := ctx.buildOrchestrator(logger)
			if err != nil {
				return err
			}

			target := strings.TrimSpace(outputPath)
			if target == "" {
				name := fmt.Sprintf("sim_%s.blend", time.Now().Format("20060102_150405"))
				target = filepath.Join(cfg.Paths.OutputDir, name)
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			reporter := newProgressPrinter(out, !jsonOutput)

			result, runErr := orch.RunJob(runCtx, pipeline.Request{
				ID:         uuid.NewString(),
				Text:       request,
				OutputPath: target,
				Reporter:   reporter,
			})
			reporter.finish()

			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(result); err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
			} else {
				printResult(out, result)
			}

			if runErr != nil {
				return fmt.Errorf("generation failed: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination for the .blend artifact")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the full result as JSON")
	cmd.Flags().BoolVar(&refine, "refine", true, "Refine low-quality results by re-planning")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Override the refinement iteration limit")
	return cmd
}

// progressPrinter renders stage progress. On a terminal it rewrites a single
// status line; otherwise it prints one line per checkpoint.
type progressPrinter struct {
	out         io.Writer
	enabled     bool
	interactive bool
	dirty       bool
}

func newProgressPrinter(out io.Writer, enabled bool) *progressPrinter {
	interactive := false
	if f, ok := out.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &progressPrinter{out: out, enabled: enabled, interactive: interactive}
}

func (p *progressPrinter) Report(name string, fraction float64, message string) {
	if !p.enabled {
		return
	}
	label := stage.Label(name)
	if p.interactive {
		fmt.Fprintf(p.out, "\r\033[K[%3.0f%%] %s: %s", fraction*100, label, message)
		p.dirty = true
		return
	}
	fmt.Fprintf(p.out, "[%3.0f%%] %s: %s\n", fraction*100, label, message)
}

// finish terminates the rewritten status line before summary output.
func (p *progressPrinter) finish() {
	if p.dirty {
		fmt.Fprintln(p.out)
		p.dirty = false
	}
}

func printResult(out io.Writer, result *pipeline.Result) {
	if result == nil {
		return
	}

	if result.Success {
		fmt.Fprintln(out, "Simulation complete")
	} else {
		fmt.Fprintln(out, "Simulation failed")
	}

	if result.Quality != nil {
		q := result.Quality
		rows := [][]string{
			{"Objects", fmt.Sprintf("%.2f", q.ObjectCount)},
			{"Camera", fmt.Sprintf("%.2f", q.Camera)},
			{"Lighting", fmt.Sprintf("%.2f", q.Lighting)},
			{"Physics", fmt.Sprintf("%.2f", q.Physics)},
			{"Frame range", fmt.Sprintf("%.2f", q.FrameRange)},
			{"Overall", fmt.Sprintf("%.2f", q.Overall)},
		}
		fmt.Fprintln(out, renderTable([]string{"Quality Check", "Score"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if result.Execution != nil && result.Execution.OutputPath != "" {
		fmt.Fprintf(out, "Artifact: %s\n", result.Execution.OutputPath)
	}
	if result.Iterations > 0 {
		fmt.Fprintf(out, "Refinement iterations: %d\n", result.Iterations)
	}
	if result.ExhaustedFallback {
		fmt.Fprintln(out, "Note: quality threshold was not reached; this is the best attempt")
	}

	if len(result.StageSeconds) > 0 {
		rows := make([][]string, 0, len(result.StageSeconds))
		for _, name := range result.StageSeconds.Names() {
			rows = append(rows, []string{name, fmt.Sprintf("%.2fs", result.StageSeconds[name])})
		}
		rows = append(rows, []string{"total", fmt.Sprintf("%.2fs", result.StageSeconds.Total())})
		fmt.Fprintln(out, renderTable([]string{"Stage", "Elapsed"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", warning)
	}
	for _, detail := range result.Errors {
		fmt.Fprintf(out, "Error (%s, %s): %s\n", detail.Stage, detail.Kind, detail.Message)
		if detail.Suggestion != "" {
			fmt.Fprintf(out, "  Suggestion: %s\n", detail.Suggestion)
		}
	}
}
