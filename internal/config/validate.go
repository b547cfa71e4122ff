package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateImmich(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateImmich() error {
	if c.Immich.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/retake/config.toml"
		}
		return fmt.Errorf("immich.url is required. Set IMMICH_URL env var or edit %s (create with 'retake config init')", defaultPath)
	}
	if !strings.HasPrefix(c.Immich.URL, "http://") && !strings.HasPrefix(c.Immich.URL, "https://") {
		return fmt.Errorf("immich.url must start with http:// or https://, got %q", c.Immich.URL)
	}
	if c.Immich.APIKey == "" {
		return errors.New("immich.api_key is required. Set IMMICH_API_KEY env var or edit the config file")
	}
	return nil
}

func (c *Config) validateExport() error {
	if strings.TrimSpace(c.Export.Root) == "" {
		return errors.New("export.root must point at the export directory (or set RETAKE_EXPORT_ROOT)")
	}
	return nil
}

func (c *Config) validateSync() error {
	if err := ensurePositiveMap(map[string]int{
		"immich.request_timeout":    c.Immich.RequestTimeout,
		"immich.page_size":          c.Immich.PageSize,
		"immich.check_chunk_size":   c.Immich.CheckChunkSize,
		"sync.scan_workers":         c.Sync.ScanWorkers,
		"sync.execute_workers":      c.Sync.ExecuteWorkers,
		"sync.match_window_seconds": c.Sync.MatchWindowSeconds,
		"sync.retry_attempts":       c.Sync.RetryAttempts,
		"sync.retry_backoff_millis": c.Sync.RetryBackoffMillis,
	}); err != nil {
		return err
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
