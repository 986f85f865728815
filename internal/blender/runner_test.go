package blender

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"simforge/internal/artifact"
	"simforge/internal/logging"
	"simforge/internal/services"
)

func setHelperCommand(t *testing.T, mode string) *[]string {
	t.Helper()
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(),
			"GO_WANT_HELPER_PROCESS=1",
			fmt.Sprintf("BLENDER_HELPER_MODE=%s", mode),
			fmt.Sprintf("BLENDER_HELPER_OUTPUT=%s", os.Getenv("BLENDER_HELPER_OUTPUT")),
		)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &capturedArgs
}

func TestExecuteSuccess(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "scene.blend")
	t.Setenv("BLENDER_HELPER_OUTPUT", outputPath)
	args := setHelperCommand(t, "success")

	runner := NewRunner(logging.NewNop())
	art := artifact.New("import bpy\n", outputPath, 0.2)
	record, err := runner.Execute(context.Background(), art)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !record.Success {
		t.Error("expected success")
	}
	if record.FrameCount != 250 {
		t.Errorf("frame count = %d, want 250", record.FrameCount)
	}
	if record.ElapsedSeconds <= 0 {
		t.Error("expected positive elapsed time")
	}

	got := *args
	if len(got) < 4 || got[0] != "--background" || got[1] != "--factory-startup" {
		t.Fatalf("unexpected args %v", got)
	}
	if got[len(got)-2] != "--python" {
		t.Errorf("expected --python flag, got %v", got)
	}
	if !strings.HasSuffix(got[len(got)-1], ".py") {
		t.Errorf("expected script path, got %q", got[len(got)-1])
	}
}

func TestExecuteFailsWhenOutputMissing(t *testing.T) {
	t.Setenv("BLENDER_HELPER_OUTPUT", "")
	setHelperCommand(t, "success")

	runner := NewRunner(logging.NewNop())
	art := artifact.New("import bpy\n", filepath.Join(t.TempDir(), "never.blend"), 0.2)
	record, err := runner.Execute(context.Background(), art)
	if err == nil {
		t.Fatal("expected error when output file is missing")
	}
	if !errors.Is(err, services.ErrExecution) {
		t.Errorf("expected execution failure, got %v", err)
	}
	if record.Success {
		t.Error("record should not report success")
	}
}

func TestExecuteCrashCapturesStderr(t *testing.T) {
	setHelperCommand(t, "crash")

	runner := NewRunner(logging.NewNop())
	art := artifact.New("import bpy\n", filepath.Join(t.TempDir(), "scene.blend"), 0.2)
	record, err := runner.Execute(context.Background(), art)
	if err == nil {
		t.Fatal("expected crash error")
	}
	if !errors.Is(err, services.ErrExecution) {
		t.Errorf("expected execution failure, got %v", err)
	}
	if !strings.Contains(record.FailureDetail, "Segmentation fault") {
		t.Errorf("failure detail missing stderr tail: %q", record.FailureDetail)
	}
	if record.ExitCode != 11 {
		t.Errorf("exit code = %d, want 11", record.ExitCode)
	}
}

func TestExecuteTimeout(t *testing.T) {
	setHelperCommand(t, "hang")

	runner := NewRunner(logging.NewNop(), WithTimeout(100*time.Millisecond))
	art := artifact.New("import bpy\n", filepath.Join(t.TempDir(), "scene.blend"), 0.2)
	_, err := runner.Execute(context.Background(), art)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Errorf("expected timeout classification, got %v", err)
	}
}

func TestInspectReturnsStdout(t *testing.T) {
	setHelperCommand(t, "inspect")

	runner := NewRunner(logging.NewNop())
	out, err := runner.Inspect(context.Background(), "/tmp/scene.blend", "print('x')")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !strings.Contains(out, "INSPECTION_RESULT:") {
		t.Errorf("stdout missing inspection marker: %q", out)
	}
}

func TestCheckAvailable(t *testing.T) {
	setHelperCommand(t, "version")

	runner := NewRunner(logging.NewNop())
	banner, err := runner.CheckAvailable(context.Background())
	if err != nil {
		t.Fatalf("CheckAvailable: %v", err)
	}
	if !strings.HasPrefix(banner, "Blender 4.") {
		t.Errorf("unexpected banner %q", banner)
	}
}

func TestCheckAvailableRejectsWrongBinary(t *testing.T) {
	setHelperCommand(t, "notblender")

	runner := NewRunner(logging.NewNop())
	if _, err := runner.CheckAvailable(context.Background()); err == nil {
		t.Fatal("expected error for non-blender binary")
	}
}

func TestVerifyBlendFileRejectsTruncatedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.blend")
	if err := os.WriteFile(path, []byte("BLE"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := verifyBlendFile(path); err == nil {
		t.Fatal("expected error for truncated header")
	}

	if err := os.WriteFile(path, []byte("BLENDER-v405RENDH"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := verifyBlendFile(path); err != nil {
		t.Errorf("valid header rejected: %v", err)
	}
}

func TestExtractFrameCount(t *testing.T) {
	if got := extractFrameCount("junk\nframes 1-250\nmore"); got != 250 {
		t.Errorf("got %d, want 250", got)
	}
	if got := extractFrameCount("no range here"); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("BLENDER_HELPER_MODE") {
	case "success":
		if path := os.Getenv("BLENDER_HELPER_OUTPUT"); path != "" {
			os.WriteFile(path, []byte("BLENDER"), 0o644)
		}
		fmt.Println("Blender 4.2.0")
		fmt.Println("frames 1-250")
		fmt.Println("SAVED:" + os.Getenv("BLENDER_HELPER_OUTPUT"))
		os.Exit(0)
	case "crash":
		fmt.Fprintln(os.Stderr, "Segmentation fault (core dumped)")
		os.Exit(11)
	case "hang":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	case "inspect":
		fmt.Println(`INSPECTION_RESULT:{"object_count":13,"has_camera":true}`)
		os.Exit(0)
	case "version":
		fmt.Println("Blender 4.2.0")
		os.Exit(0)
	case "notblender":
		fmt.Println("ffmpeg version 6.0")
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
