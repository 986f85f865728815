package logging

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"simforge/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "simforge.log")
	logger, err := New(Options{Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hello", String("key", "value"))
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	for _, input := range []string{"", "info", "bogus"} {
		if got := parseLevel(input); got.String() != "INFO" {
			t.Fatalf("parseLevel(%q) = %s, want INFO", input, got)
		}
	}
	if got := parseLevel("debug"); got.String() != "DEBUG" {
		t.Fatalf("parseLevel(debug) = %s", got)
	}
}

func TestWithContextAnnotates(t *testing.T) {
	ctx := services.WithJobID(context.Background(), 42)
	ctx = services.WithStage(ctx, "plan")
	ctx = services.WithRequestID(ctx, "req-1")

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	WithContext(ctx, base).Info("stage started")

	out := buf.String()
	for _, want := range []string{"job_id=42", "stage=plan", "request_id=req-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q: %s", want, out)
		}
	}
}

func TestWithContextNilSafe(t *testing.T) {
	logger := WithContext(context.Background(), nil)
	logger.Info("no-op")
}
