// Package blender runs generated scripts through a headless Blender
// process. Scripts execute with --factory-startup so user preferences and
// addons cannot change simulation results between runs.
package blender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"simforge/internal/artifact"
	"simforge/internal/logging"
	"simforge/internal/services"
)

var commandContext = exec.CommandContext

const defaultTimeout = 5 * time.Minute

// stderrTailLimit bounds how much stderr is carried into error messages.
const stderrTailLimit = 2048

var frameRangePattern = regexp.MustCompile(`frames 1-(\d+)`)

// Option configures the runner.
type Option func(*Runner)

// WithExecutable overrides the default blender binary.
func WithExecutable(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.executable = path
		}
	}
}

// WithTimeout bounds a single execution.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// Runner executes simulation scripts in headless Blender.
type Runner struct {
	executable string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewRunner constructs a Runner with defaults.
func NewRunner(logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		executable: "blender",
		timeout:    defaultTimeout,
		logger:     logging.NewComponentLogger(logger, "blender"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs the artifact's script and reports the outcome. A non-nil
// error is returned alongside a record describing the failed run.
func (r *Runner) Execute(ctx context.Context, art artifact.Artifact) (artifact.ExecutionRecord, error) {
	scriptPath, cleanup, err := writeScript(art.Script)
	if err != nil {
		return artifact.ExecutionRecord{}, services.Wrap(services.ErrExecution, "execute-externally", "prepare", "write script file", err)
	}
	defer cleanup()

	record, err := r.run(ctx, nil, scriptPath)
	record.OutputPath = art.OutputPath
	if err != nil {
		return record, err
	}

	if err := verifyBlendFile(art.OutputPath); err != nil {
		record.Success = false
		record.FailureDetail = err.Error()
		return record, services.Wrap(services.ErrExecution, "execute-externally", "verify", "blender exited cleanly but output is unusable", err)
	}
	record.Success = true
	return record, nil
}

// Inspect opens an existing .blend file and runs an analysis script,
// returning the combined stdout for the caller to parse.
func (r *Runner) Inspect(ctx context.Context, blendPath, script string) (string, error) {
	scriptPath, cleanup, err := writeScript(script)
	if err != nil {
		return "", services.Wrap(services.ErrExecution, "score-quality", "prepare", "write inspection script", err)
	}
	defer cleanup()

	record, err := r.run(ctx, []string{blendPath}, scriptPath)
	if err != nil {
		return record.Stdout, err
	}
	return record.Stdout, nil
}

// CheckAvailable verifies the configured binary is a working Blender and
// returns its version banner.
func (r *Runner) CheckAvailable(ctx context.Context) (string, error) {
	cmd := commandContext(ctx, r.executable, "--version")
	out, err := cmd.Output()
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "execute-externally", "check", fmt.Sprintf("blender executable %q not usable", r.executable), err)
	}
	banner := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if !strings.HasPrefix(banner, "Blender") {
		return "", services.Wrap(services.ErrConfiguration, "execute-externally", "check", fmt.Sprintf("unexpected version output %q", banner), nil)
	}
	return banner, nil
}

func (r *Runner) run(ctx context.Context, preArgs []string, scriptPath string) (artifact.ExecutionRecord, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{"--background", "--factory-startup"}
	args = append(args, preArgs...)
	args = append(args, "--python", scriptPath)

	cmd := commandContext(runCtx, r.executable, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureProcessGroup(cmd)

	log := logging.WithContext(ctx, r.logger)
	log.Info("starting blender", logging.String("executable", r.executable), logging.Int("arg_count", len(args)))

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	record := artifact.ExecutionRecord{
		ElapsedSeconds: elapsed.Seconds(),
		Stdout:         stdout.String(),
		Stderr:         stderr.String(),
		FrameCount:     extractFrameCount(stdout.String()),
	}
	if cmd.ProcessState != nil {
		record.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		record.FailureDetail = tail(stderr.String(), stderrTailLimit)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return record, services.Wrap(services.ErrTimeout, "execute-externally", "run",
				fmt.Sprintf("blender exceeded %s budget", r.timeout), err)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return record, fmt.Errorf("blender run canceled: %w", ctx.Err())
		}
		return record, services.Wrap(services.ErrExecution, "execute-externally", "run",
			fmt.Sprintf("blender exited with code %d: %s", record.ExitCode, record.FailureDetail), err)
	}

	log.Info("blender finished",
		logging.Float64("elapsed_seconds", record.ElapsedSeconds),
		logging.Int("frame_count", record.FrameCount),
	)
	return record, nil
}

// configureProcessGroup puts Blender in its own process group so that a
// context cancellation also reaps any render workers it forked.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
}

// verifyBlendFile checks that the saved file carries the BLENDER magic
// bytes. Blender writes the header first, so a truncated or empty file
// indicates the save was interrupted.
func verifyBlendFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("output file missing after run: %w", err)
	}
	defer file.Close()

	magic := make([]byte, 7)
	if _, err := io.ReadFull(file, magic); err != nil {
		return fmt.Errorf("output file unreadable: %w", err)
	}
	if string(magic) != "BLENDER" {
		return fmt.Errorf("output file %s lacks BLENDER header", filepath.Base(path))
	}
	return nil
}

func writeScript(script string) (string, func(), error) {
	file, err := os.CreateTemp("", "simforge-*.py")
	if err != nil {
		return "", nil, err
	}
	path := file.Name()
	cleanup := func() { os.Remove(path) }
	if _, err := file.WriteString(script); err != nil {
		file.Close()
		cleanup()
		return "", nil, err
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return filepath.Clean(path), cleanup, nil
}

func extractFrameCount(output string) int {
	match := frameRangePattern.FindStringSubmatch(output)
	if match == nil {
		return 0
	}
	count, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return count
}

func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
