package main

import (
	"os"
	"path/filepath"
	"testing"

	"simforge/internal/testsupport"
)

func TestCheckReportsHealthyDependencies(t *testing.T) {
	stubDir := t.TempDir()
	stub := filepath.Join(stubDir, "blender")
	script := "#!/bin/sh\necho \"Blender 4.5.0\"\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub blender: %v", err)
	}

	env := setupCLITestEnv(t, testsupport.WithBlenderExecutable(stub))

	out, _, err := runCLI(t, []string{"check", "--skip-llm"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "Blender 4.5.0")
	requireContains(t, out, "skipped")
	requireContains(t, out, "job store")
}

func TestCheckFailsOnBrokenBlender(t *testing.T) {
	// The stub exits 0 without printing a version banner, which must be
	// rejected as an unusable executable.
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries("blender"))

	out, _, err := runCLI(t, []string{"check", "--skip-llm"}, env.configPath)
	if err == nil {
		t.Fatalf("expected failing check, got output:\n%s", out)
	}
	requireContains(t, out, "FAIL")
}
