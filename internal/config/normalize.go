package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeImmich(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSync()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeImmich() error {
	if value, ok := os.LookupEnv("IMMICH_URL"); ok && strings.TrimSpace(value) != "" {
		c.Immich.URL = value
	}
	if value, ok := os.LookupEnv("IMMICH_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.Immich.APIKey = value
	}
	c.Immich.URL = strings.TrimRight(strings.TrimSpace(c.Immich.URL), "/")
	c.Immich.APIKey = strings.TrimSpace(c.Immich.APIKey)
	if c.Immich.RequestTimeout <= 0 {
		c.Immich.RequestTimeout = defaultRequestTimeout
	}
	if c.Immich.PageSize <= 0 {
		c.Immich.PageSize = defaultPageSize
	}
	if c.Immich.CheckChunkSize <= 0 {
		c.Immich.CheckChunkSize = defaultCheckChunkSize
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if value, ok := os.LookupEnv("RETAKE_EXPORT_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Export.Root = value
	}
	if strings.TrimSpace(c.Export.Root) != "" {
		if c.Export.Root, err = expandPath(c.Export.Root); err != nil {
			return fmt.Errorf("export.root: %w", err)
		}
	}
	c.Export.Album = strings.TrimSpace(c.Export.Album)
	if strings.TrimSpace(c.Paths.StateDB) == "" {
		c.Paths.StateDB = defaultStateDB
	}
	if c.Paths.StateDB, err = expandPath(c.Paths.StateDB); err != nil {
		return fmt.Errorf("paths.state_db: %w", err)
	}
	if strings.TrimSpace(c.Paths.Report) == "" {
		c.Paths.Report = defaultReport
	}
	if c.Paths.Report, err = expandPath(c.Paths.Report); err != nil {
		return fmt.Errorf("paths.report: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSync() {
	if value, ok := os.LookupEnv("RETAKE_DRY_RUN"); ok {
		c.Sync.DryRun = value == "1" || strings.EqualFold(value, "true")
	}
	if c.Sync.ScanWorkers <= 0 {
		c.Sync.ScanWorkers = defaultScanWorkers
	}
	if c.Sync.ExecuteWorkers <= 0 {
		c.Sync.ExecuteWorkers = defaultExecuteWorkers
	}
	if c.Sync.MatchWindowSeconds <= 0 {
		c.Sync.MatchWindowSeconds = defaultMatchWindowSeconds
	}
	if c.Sync.RetryAttempts <= 0 {
		c.Sync.RetryAttempts = defaultRetryAttempts
	}
	if c.Sync.RetryBackoffMillis <= 0 {
		c.Sync.RetryBackoffMillis = defaultRetryBackoffMillis
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
