package testsupport

import (
	"path/filepath"
	"testing"

	"retake/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Immich.URL = "http://immich.test"
	cfg.Immich.APIKey = "test-key"
	cfg.Export.Root = filepath.Join(base, "export")
	cfg.Paths.StateDB = filepath.Join(base, "state.db")
	cfg.Paths.Report = filepath.Join(base, "report.log")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Sync.RetryBackoffMillis = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithDryRun sets the dry-run default on the test config.
func WithDryRun() ConfigOption {
	return func(c *config.Config) {
		c.Sync.DryRun = true
	}
}

// WithScopeAlbum restricts the test config to one album.
func WithScopeAlbum(name string) ConfigOption {
	return func(c *config.Config) {
		c.Export.Album = name
	}
}
