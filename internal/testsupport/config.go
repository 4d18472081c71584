package testsupport

import (
	"path/filepath"
	"testing"

	"dealsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.MediaCacheDir = filepath.Join(base, "media")
	cfgVal.Paths.SocketPath = filepath.Join(base, "dealsyncd.sock")
	cfgVal.Backend.BaseURL = "https://backend.test"
	cfgVal.Backend.FunctionsURL = "https://backend.test/functions/v1"
	cfgVal.Backend.AnonKey = "test-anon-key"
	cfgVal.Sync.DebounceSeconds = 0

	builder := &configBuilder{t: t, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithBackendURL points the test config at the provided backend base URL.
func WithBackendURL(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backend.BaseURL = baseURL
		b.cfg.Backend.FunctionsURL = baseURL + "/functions/v1"
	}
}

// WithMaxRetryCount overrides the retry ceiling on the test config.
func WithMaxRetryCount(count int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.MaxRetryCount = count
	}
}
