package config

const (
	defaultDataDir           = "~/.local/share/shortreel/data"
	defaultWorkDir           = "~/.local/share/shortreel/work"
	defaultLogDir            = "~/.local/share/shortreel/logs"
	defaultStylesFile        = "~/.config/shortreel/styles.yaml"
	defaultAPIBind           = "127.0.0.1:7519"
	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMTimeoutSeconds = 60
	defaultTTSOutputFormat   = "mp3"
	defaultTTSTimeout        = 120
	defaultStockProvider     = "pexels"
	defaultStockBaseURL      = "https://api.pexels.com/videos"
	defaultStockClips        = 6
	defaultStockTimeout      = 60
	defaultFFmpegBin         = "ffmpeg"
	defaultRenderWidth       = 1080
	defaultRenderHeight      = 1920
	defaultRenderFPS         = 30
	defaultRenderTimeout     = 900
	defaultTopicCount        = 30
	defaultLookbackHours     = 72
	defaultCollectAfterHours = 24
	defaultScoreScope        = "global"
	defaultScoreDecayPerDay  = 0.97
	defaultScoreSaveSeconds  = 300
	defaultTickSeconds       = 30
	defaultWorkerPool        = 4
	defaultMaxDailyRuns      = 10
	defaultBreakerThreshold  = 5
	defaultBreakerCooldown   = 300
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultPublishTime       = "09:00"
	defaultItemsPerDay       = 1
	defaultMaxConcurrent     = 1
	defaultStyle             = "clean-bold"
)

func defaultTuning(maxAttempts, timeoutSeconds int) StageTuning {
	return StageTuning{
		MaxAttempts:        maxAttempts,
		TimeoutSeconds:     timeoutSeconds,
		BackoffBaseSeconds: 5,
		BackoffMaxSeconds:  600,
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			WorkDir:    defaultWorkDir,
			LogDir:     defaultLogDir,
			StylesFile: defaultStylesFile,
			APIBind:    defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		TTS: TTS{
			OutputFormat:   defaultTTSOutputFormat,
			TimeoutSeconds: defaultTTSTimeout,
		},
		Stock: Stock{
			Provider:       defaultStockProvider,
			BaseURL:        defaultStockBaseURL,
			ClipsPerItem:   defaultStockClips,
			TimeoutSeconds: defaultStockTimeout,
		},
		Render: Render{
			FFmpegBin:      defaultFFmpegBin,
			Width:          defaultRenderWidth,
			Height:         defaultRenderHeight,
			FPS:            defaultRenderFPS,
			TimeoutSeconds: defaultRenderTimeout,
		},
		Research: Research{
			TopicCount:    defaultTopicCount,
			RedditEnabled: true,
			LookbackHours: defaultLookbackHours,
		},
		Analytics: Analytics{
			CollectAfterHours: defaultCollectAfterHours,
		},
		Scoring: Scoring{
			Scope:         defaultScoreScope,
			DecayPerDay:   defaultScoreDecayPerDay,
			SaveEverySecs: defaultScoreSaveSeconds,
		},
		Stages: Stages{
			Research:  defaultTuning(3, 60),
			Script:    defaultTuning(3, 120),
			Voiceover: defaultTuning(3, 180),
			Assets:    defaultTuning(3, 120),
			Compose:   defaultTuning(2, 1200),
			Publish:   defaultTuning(4, 600),
			Analytics: defaultTuning(8, 60),
		},
		Breaker: Breaker{
			FailureThreshold: defaultBreakerThreshold,
			CooldownSeconds:  defaultBreakerCooldown,
		},
		Workflow: Workflow{
			TickIntervalSeconds: defaultTickSeconds,
			WorkerPoolSize:      defaultWorkerPool,
			MaxDailyRuns:        defaultMaxDailyRuns,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
