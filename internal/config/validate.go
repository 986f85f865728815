package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/simforge/config.toml"
		}
		return fmt.Errorf("llm.api_key is required. Set SIMFORGE_LLM_API_KEY env var or edit %s (create with 'simforge config init')", defaultPath)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.QualityThreshold <= 0 || c.Pipeline.QualityThreshold > 1 {
		return errors.New("pipeline.quality_threshold must be between 0 and 1")
	}
	if c.Pipeline.MaxRefinementIterations < 0 {
		return errors.New("pipeline.max_refinement_iterations must not be negative")
	}
	if c.Pipeline.StageRetryLimit < 1 {
		return errors.New("pipeline.stage_retry_limit must be at least 1")
	}
	if c.Pipeline.RetryBaseDelayMS < 0 || c.Pipeline.RetryMaxDelayMS < 0 {
		return errors.New("pipeline retry delays must not be negative")
	}
	if c.Pipeline.RetryMaxDelayMS < c.Pipeline.RetryBaseDelayMS {
		return errors.New("pipeline.retry_max_delay_ms must be at least retry_base_delay_ms")
	}
	if c.Pipeline.MaxConcurrentExecutions < 1 {
		return errors.New("pipeline.max_concurrent_executions must be at least 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval < 1 {
		return errors.New("workflow.queue_poll_interval must be at least 1 second")
	}
	if c.Workflow.HeartbeatInterval < 1 {
		return errors.New("workflow.heartbeat_interval must be at least 1 second")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed heartbeat_interval")
	}
	if c.Workflow.WorkerConcurrency < 1 {
		return errors.New("workflow.worker_concurrency must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
