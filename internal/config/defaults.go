package config

const (
	defaultDataDir              = "~/.local/share/mimic/data"
	defaultLogDir               = "~/.local/share/mimic/logs"
	defaultAPIBind              = "127.0.0.1:7319"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultUploadAttempts       = 3
	defaultUploadBackoffSeconds = 1
	defaultSynthesisBaseURL     = "https://api.d-id.com"
	defaultSynthesisTimeout     = 30
	defaultPollInterval         = 5
	defaultMaxUploadMiB         = 100
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Storage: Storage{
			UploadAttempts:       defaultUploadAttempts,
			UploadBackoffSeconds: defaultUploadBackoffSeconds,
		},
		Synthesis: Synthesis{
			BaseURL:             defaultSynthesisBaseURL,
			TimeoutSeconds:      defaultSynthesisTimeout,
			PollIntervalSeconds: defaultPollInterval,
		},
		Ingest: Ingest{
			MaxUploadMiB: defaultMaxUploadMiB,
		},
		Workflow: Workflow{
			RegistryPollInterval: 5,
			ErrorRetryInterval:   10,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
