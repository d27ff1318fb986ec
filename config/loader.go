package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "abemis.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/abemis"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvFile is loaded into the environment before overrides are read
	EnvFile = ".env"
	// EnvPrefix prefixes every environment override
	EnvPrefix = "ABEMIS_"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger

	// Overridable for tests.
	homeDir func() (string, error)
	workDir func() (string, error)
	getenv  func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:  logger,
		homeDir: os.UserHomeDir,
		workDir: os.Getwd,
		getenv:  os.Getenv,
	}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/abemis/config.yaml)
// 3. Project config (abemis.yaml in current or parent directories)
// 4. .env file in the current directory
// 5. ABEMIS_* environment variables
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		if userConfig, err := LoadFromFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	l.loadDotEnv()
	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFile loads an explicit config file on top of the defaults and applies
// environment overrides. Used by --config.
func (l *Loader) LoadFile(path string) (*Config, error) {
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	l.loadDotEnv()
	if err := l.applyEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return fmt.Errorf("cannot determine home directory")
	}

	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}

	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// loadDotEnv reads .env from the working directory. Variables already set
// in the environment win.
func (l *Loader) loadDotEnv() {
	cwd, err := l.workDir()
	if err != nil {
		return
	}
	path := filepath.Join(cwd, EnvFile)
	if err := godotenv.Load(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to load env file", slog.String("path", path), slog.String("error", err.Error()))
		}
		return
	}
	l.logger.Debug("Loaded env file", slog.String("path", path))
}

// applyEnv overrides config values from ABEMIS_* variables.
func (l *Loader) applyEnv(c *Config) error {
	strs := map[string]*string{
		"HTTP_ADDR":          &c.HTTP.Addr,
		"HTTP_PREFIX":        &c.HTTP.Prefix,
		"STORAGE_BACKEND":    &c.Storage.Backend,
		"STORAGE_BUCKET":     &c.Storage.Bucket,
		"STORAGE_SQLITE":     &c.Storage.SQLitePath,
		"NATS_STORE_DIR":     &c.NATS.StoreDir,
		"LOCATION_BASE_URL":  &c.Location.BaseURL,
		"DOCUMENTS_BACKEND":  &c.Documents.Backend,
		"DOCUMENTS_BUCKET":   &c.Documents.Bucket,
		"DOCUMENTS_REGION":   &c.Documents.Region,
		"DOCUMENTS_ENDPOINT": &c.Documents.Endpoint,
		"METRICS_PATH":       &c.Metrics.Path,
	}
	for name, dst := range strs {
		if v := l.getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	if v := l.getenv(EnvPrefix + "NATS_URL"); v != "" {
		c.NATS.URL = v
		c.NATS.Embedded = false
	}

	bools := map[string]*bool{
		"HTTP_GZIP":            &c.HTTP.Gzip,
		"NATS_EMBEDDED":        &c.NATS.Embedded,
		"DOCUMENTS_PATH_STYLE": &c.Documents.PathStyle,
		"METRICS_ENABLED":      &c.Metrics.Enabled,
	}
	for name, dst := range bools {
		if v := l.getenv(EnvPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"LOCATION_TIMEOUT":      &c.Location.Timeout,
		"HTTP_SHUTDOWN_TIMEOUT": &c.HTTP.ShutdownTimeout,
		"MONITOR_INTERVAL":      &c.Monitor.CheckInterval,
	}
	for name, dst := range durations {
		if v := l.getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}

	if v := l.getenv(EnvPrefix + "STORAGE_HISTORY"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("%sSTORAGE_HISTORY: %w", EnvPrefix, err)
		}
		c.Storage.History = uint8(n)
	}
	if v := l.getenv(EnvPrefix + "DOCUMENTS_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sDOCUMENTS_MAX_UPLOAD_BYTES: %w", EnvPrefix, err)
		}
		c.Documents.MaxUploadBytes = n
	}
	return nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := l.homeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for abemis.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := l.workDir()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
