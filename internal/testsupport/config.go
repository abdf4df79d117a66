package testsupport

import (
	"path/filepath"
	"testing"

	"mimic/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Synthesis.APIKey = "test"
	cfg.Synthesis.PollIntervalSeconds = 1
	cfg.Storage.Endpoint = "127.0.0.1:9000"
	cfg.Storage.AccessKey = "test"
	cfg.Storage.SecretKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithSynthesisKey sets the synthesis provider API key on the test config.
func WithSynthesisKey(key string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Synthesis.APIKey = key
	}
}

// WithAPIToken sets the daemon API bearer token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Paths.APIToken = token
	}
}
