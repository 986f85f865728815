package config

const (
	defaultDataDir               = "~/.local/share/simforge"
	defaultOutputDir             = "~/simforge/output"
	defaultLogDir                = "~/.local/share/simforge/logs"
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMReferer            = "https://github.com/simforge/simforge"
	defaultLLMTitle              = "Simforge Planner"
	defaultLLMTimeoutSeconds     = 60
	defaultBlenderExecutable     = "blender"
	defaultBlenderTimeoutSeconds = 300
	defaultQualityThreshold      = 0.8
	defaultMaxRefinementIters    = 2
	defaultStageRetryLimit       = 3
	defaultRetryBaseDelayMS      = 500
	defaultRetryMaxDelayMS       = 10000
	defaultMaxConcurrentExecs    = 2
	defaultQueuePollInterval     = 2
	defaultHeartbeatInterval     = 15
	defaultHeartbeatTimeout      = 120
	defaultWorkerConcurrency     = 1
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Blender: Blender{
			Executable:     defaultBlenderExecutable,
			TimeoutSeconds: defaultBlenderTimeoutSeconds,
		},
		Pipeline: Pipeline{
			QualityThreshold:        defaultQualityThreshold,
			EnableRefinement:        true,
			MaxRefinementIterations: defaultMaxRefinementIters,
			StageRetryLimit:         defaultStageRetryLimit,
			RetryBaseDelayMS:        defaultRetryBaseDelayMS,
			RetryMaxDelayMS:         defaultRetryMaxDelayMS,
			MaxConcurrentExecutions: defaultMaxConcurrentExecs,
		},
		Workflow: Workflow{
			QueuePollInterval: defaultQueuePollInterval,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
			WorkerConcurrency: defaultWorkerConcurrency,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
