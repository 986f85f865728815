package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("SIMFORGE_LLM_API_KEY", "test-key")
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for a missing file")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Blender.Executable != defaultBlenderExecutable {
		t.Fatalf("blender executable = %q, want default", cfg.Blender.Executable)
	}
	if cfg.Pipeline.QualityThreshold != defaultQualityThreshold {
		t.Fatalf("quality threshold = %v, want %v", cfg.Pipeline.QualityThreshold, defaultQualityThreshold)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Fatalf("api key = %q, want env override", cfg.LLM.APIKey)
	}
}

func TestLoadParsesFileValues(t *testing.T) {
	t.Setenv("SIMFORGE_LLM_API_KEY", "")
	path := writeConfig(t, `
[llm]
api_key = "file-key"
model = "anthropic/claude-sonnet"

[pipeline]
quality_threshold = 0.9
max_concurrent_executions = 4

[logging]
format = "JSON"
level = "Debug"
`)

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.LLM.APIKey != "file-key" {
		t.Fatalf("api key = %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "anthropic/claude-sonnet" {
		t.Fatalf("model = %q", cfg.LLM.Model)
	}
	if cfg.Pipeline.QualityThreshold != 0.9 {
		t.Fatalf("quality threshold = %v", cfg.Pipeline.QualityThreshold)
	}
	if cfg.Pipeline.MaxConcurrentExecutions != 4 {
		t.Fatalf("max concurrent executions = %d", cfg.Pipeline.MaxConcurrentExecutions)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging not normalized: %q %q", cfg.Logging.Format, cfg.Logging.Level)
	}
	// File values must not disturb unrelated defaults.
	if cfg.Workflow.QueuePollInterval != defaultQueuePollInterval {
		t.Fatalf("queue poll interval = %d", cfg.Workflow.QueuePollInterval)
	}
}

func TestLoadEnvOverridesFileValues(t *testing.T) {
	t.Setenv("SIMFORGE_LLM_API_KEY", "env-key")
	t.Setenv("SIMFORGE_BLENDER_EXECUTABLE", "/opt/blender/blender")
	path := writeConfig(t, `
[llm]
api_key = "file-key"

[blender]
executable = "blender-4.2"
`)

	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("api key = %q, want env override", cfg.LLM.APIKey)
	}
	if cfg.Blender.Executable != "/opt/blender/blender" {
		t.Fatalf("executable = %q, want env override", cfg.Blender.Executable)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("SIMFORGE_LLM_API_KEY", "")
	path := filepath.Join(t.TempDir(), "absent.toml")

	_, _, _, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	if !strings.Contains(err.Error(), "llm.api_key") {
		t.Fatalf("error %q does not mention llm.api_key", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"threshold too high", func(c *Config) { c.Pipeline.QualityThreshold = 1.5 }, "quality_threshold"},
		{"threshold zero", func(c *Config) { c.Pipeline.QualityThreshold = 0 }, "quality_threshold"},
		{"retry limit zero", func(c *Config) { c.Pipeline.StageRetryLimit = 0 }, "stage_retry_limit"},
		{"max delay below base", func(c *Config) { c.Pipeline.RetryMaxDelayMS = 100 }, "retry_max_delay_ms"},
		{"concurrency zero", func(c *Config) { c.Pipeline.MaxConcurrentExecutions = 0 }, "max_concurrent_executions"},
		{"poll interval zero", func(c *Config) { c.Workflow.QueuePollInterval = 0 }, "queue_poll_interval"},
		{"heartbeat timeout too low", func(c *Config) { c.Workflow.HeartbeatTimeout = 5 }, "heartbeat_timeout"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.LLM.APIKey = "test-key"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	got, err := expandPath("~/simforge/output")
	if err != nil {
		t.Fatalf("expandPath: %v", err)
	}
	want := filepath.Join(home, "simforge", "output")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.DataDir = "/var/lib/simforge"
	if got := cfg.QueuePath(); got != "/var/lib/simforge/jobs.db" {
		t.Fatalf("QueuePath = %q", got)
	}
	if got := cfg.LockPath(); got != "/var/lib/simforge/worker.lock" {
		t.Fatalf("LockPath = %q", got)
	}
}

func TestCreateSampleWritesParseableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	t.Setenv("SIMFORGE_LLM_API_KEY", "test-key")
	if _, _, _, err := Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.OutputDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("directory %q missing: %v", dir, err)
		}
	}
}
