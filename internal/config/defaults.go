package config

const (
	defaultStateDB            = "~/.local/share/retake/state.db"
	defaultReport             = "~/.local/share/retake/report.log"
	defaultLogDir             = "~/.local/share/retake/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultRequestTimeout     = 60
	defaultPageSize           = 500
	defaultCheckChunkSize     = 600
	defaultScanWorkers        = 4
	defaultExecuteWorkers     = 3
	defaultMatchWindowSeconds = 5
	defaultRetryAttempts      = 4
	defaultRetryBackoffMillis = 1500
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Immich: Immich{
			RequestTimeout: defaultRequestTimeout,
			PageSize:       defaultPageSize,
			CheckChunkSize: defaultCheckChunkSize,
		},
		Paths: Paths{
			StateDB: defaultStateDB,
			Report:  defaultReport,
			LogDir:  defaultLogDir,
		},
		Sync: Sync{
			ScanWorkers:        defaultScanWorkers,
			ExecuteWorkers:     defaultExecuteWorkers,
			MatchWindowSeconds: defaultMatchWindowSeconds,
			RetryAttempts:      defaultRetryAttempts,
			RetryBackoffMillis: defaultRetryBackoffMillis,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
