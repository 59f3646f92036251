package config

const (
	defaultDataDir            = "~/.local/share/conveyor"
	defaultLogDir             = "~/.local/share/conveyor/logs"
	defaultAPIBind            = "127.0.0.1:7519"
	defaultLogFormat          = "text"
	defaultLogLevel           = "info"
	defaultPollInterval       = 5
	defaultErrorRetryInterval = 10
	defaultPhaseTimeout       = 0
	defaultEventBuffer        = 512
	defaultExecutorTimeout    = 30
	defaultTrackerTimeout     = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Executor: Executor{
			RequestTimeout: defaultExecutorTimeout,
		},
		Coordinator: Coordinator{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			PhaseTimeout:       defaultPhaseTimeout,
			EventBuffer:        defaultEventBuffer,
		},
		Tracker: Tracker{
			RequestTimeout: defaultTrackerTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
