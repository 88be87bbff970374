package config

const (
	defaultStoreFile             = "store.db"
	defaultPollIntervalMS        = 250
	defaultBusyTimeoutMS         = 5000
	defaultEventRetentionMinutes = 60
	defaultListenerWorkers       = 4
	defaultListenerQueueSize     = 64
	defaultReadyTimeoutSeconds   = 10
	defaultLogFormat             = "json"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 14
	defaultArrayFS               = ","
	defaultCLIFormat             = "table"
)

// Default returns a Config populated with repository defaults. An empty
// store DSN resolves to <appDir>/store.db during normalization.
func Default() Config {
	return Config{
		Store: Store{
			PollIntervalMS:        defaultPollIntervalMS,
			BusyTimeoutMS:         defaultBusyTimeoutMS,
			EventRetentionMinutes: defaultEventRetentionMinutes,
		},
		Listeners: Listeners{
			Workers:   defaultListenerWorkers,
			QueueSize: defaultListenerQueueSize,
		},
		Launcher: Launcher{
			ReadyTimeoutSeconds: defaultReadyTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		CLI: CLI{
			ArrayFS: defaultArrayFS,
			Format:  defaultCLIFormat,
		},
	}
}
