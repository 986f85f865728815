package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"simforge/internal/blender"
	"simforge/internal/codegen"
	"simforge/internal/config"
	"simforge/internal/enrich"
	"simforge/internal/logging"
	"simforge/internal/materials"
	"simforge/internal/pipeline"
	"simforge/internal/planner"
	"simforge/internal/quality"
	"simforge/internal/queue"
	"simforge/internal/services/llm"
	"simforge/internal/validate"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger(outputPaths ...string) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputPaths,
	})
}

func (c *commandContext) openStore() (*queue.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return queue.Open(cfg.QueuePath())
}

// withStore opens the job store for the duration of one command.
func (c *commandContext) withStore(fn func(*queue.Store) error) error {
	store, err := c.openStore()
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// buildOrchestrator wires the stage collaborators from configuration.
func (c *commandContext) buildOrchestrator(logger *slog.Logger) (*pipeline.Orchestrator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	db, err := materialsDatabase(cfg)
	if err != nil {
		return nil, err
	}

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
	})

	runner := blender.NewRunner(logger,
		blender.WithExecutable(cfg.Blender.Executable),
		blender.WithTimeout(time.Duration(cfg.Blender.TimeoutSeconds)*time.Second),
	)

	deps := pipeline.Deps{
		Planner:   planner.New(client, logger),
		Enricher:  enrich.New(db, logger),
		Generator: codegen.New(logger),
		Validator: validate.New(logger),
		Executor:  runner,
		Inspector: quality.NewBlenderInspector(runner),
	}
	opts := pipeline.Options{
		QualityThreshold:        cfg.Pipeline.QualityThreshold,
		EnableRefinement:        cfg.Pipeline.EnableRefinement,
		MaxRefinementIterations: cfg.Pipeline.MaxRefinementIterations,
		StageRetryLimit:         cfg.Pipeline.StageRetryLimit,
		RetryBaseDelay:          time.Duration(cfg.Pipeline.RetryBaseDelayMS) * time.Millisecond,
		RetryMaxDelay:           time.Duration(cfg.Pipeline.RetryMaxDelayMS) * time.Millisecond,
		MaxConcurrentExecutions: int64(cfg.Pipeline.MaxConcurrentExecutions),
	}
	return pipeline.New(deps, opts, logger), nil
}

func materialsDatabase(cfg *config.Config) (*materials.Database, error) {
	if cfg.Materials.Path != "" {
		db, err := materials.Load(cfg.Materials.Path)
		if err != nil {
			return nil, fmt.Errorf("load materials database: %w", err)
		}
		return db, nil
	}
	db, err := materials.Embedded()
	if err != nil {
		return nil, fmt.Errorf("load embedded materials database: %w", err)
	}
	return db, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
