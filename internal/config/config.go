package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Immich contains connection settings for the remote Immich server.
type Immich struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	RequestTimeout int    `toml:"request_timeout"`
	PageSize       int    `toml:"page_size"`
	CheckChunkSize int    `toml:"check_chunk_size"`
}

// Export describes the local export tree to reconcile.
type Export struct {
	Root  string `toml:"root"`
	Album string `toml:"album"`
}

// Paths contains persisted file locations.
type Paths struct {
	StateDB string `toml:"state_db"`
	Report  string `toml:"report"`
	LogDir  string `toml:"log_dir"`
}

// Sync contains reconciliation behavior settings.
type Sync struct {
	DryRun             bool `toml:"dry_run"`
	ScanWorkers        int  `toml:"scan_workers"`
	ExecuteWorkers     int  `toml:"execute_workers"`
	MatchWindowSeconds int  `toml:"match_window_seconds"`
	RetryAttempts      int  `toml:"retry_attempts"`
	RetryBackoffMillis int  `toml:"retry_backoff_millis"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for retake.
//
// Sections by subsystem:
//   - Immich: server URL, credentials, request sizing
//   - Export: export root directory and scope album
//   - Paths: run-state database, report file, log directory
//   - Sync: dry-run default, worker counts, matching tolerance, retries
//   - Logging: log format and level
type Config struct {
	Immich  Immich  `toml:"immich"`
	Export  Export  `toml:"export"`
	Paths   Paths   `toml:"paths"`
	Sync    Sync    `toml:"sync"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/retake/config.toml")
}

// Load locates, parses, and validates a configuration file. Credentials may be
// supplied through the environment (optionally seeded from a .env file);
// environment values take priority over the file.
func Load(path string) (*Config, string, bool, error) {
	loadDotenv()

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotenv overlays .env values without overriding real environment variables.
func loadDotenv() {
	candidates := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "retake", ".env"))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			_ = godotenv.Load(candidate)
		}
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("retake.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories backing persisted paths.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir, filepath.Dir(c.Paths.StateDB), filepath.Dir(c.Paths.Report)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequestTimeout returns the per-call timeout for remote service requests.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Immich.RequestTimeout) * time.Second
}

// MatchWindow returns the time-bucket tolerance used by the matcher.
func (c *Config) MatchWindow() time.Duration {
	return time.Duration(c.Sync.MatchWindowSeconds) * time.Second
}

// RetryBackoff returns the base delay for exponential retry backoff.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Sync.RetryBackoffMillis) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
