// Package config provides configuration loading and management for the
// portal server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config represents the complete portal configuration
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	NATS      NATSConfig      `yaml:"nats"`
	Location  LocationConfig  `yaml:"location"`
	Documents DocumentsConfig `yaml:"documents"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	// Addr is the listen address (default: :8080)
	Addr string `yaml:"addr"`
	// Prefix is prepended to every API route (default: /api)
	Prefix string `yaml:"prefix"`
	// Gzip compresses responses
	Gzip bool `yaml:"gzip"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig configures the key-value repository
type StorageConfig struct {
	// Backend is memory, nats or sqlite
	Backend string `yaml:"backend"`
	// Bucket is the JetStream KV bucket name
	Bucket string `yaml:"bucket"`
	// History is the number of revisions JetStream keeps per key
	History uint8 `yaml:"history"`
	// SQLitePath is the database file of the sqlite backend
	SQLitePath string `yaml:"sqlite_path"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
	// StoreDir persists embedded JetStream data (empty = temp dir)
	StoreDir string `yaml:"store_dir"`
}

// LocationConfig configures the geographic codes upstream
type LocationConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DocumentsConfig configures where stage document files are kept
type DocumentsConfig struct {
	// Backend is memory or s3
	Backend   string `yaml:"backend"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	// MaxUploadBytes bounds a single document upload
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MonitorConfig configures the late-project monitor
type MonitorConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			Prefix:          "/api",
			Gzip:            true,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend:    BackendNATS,
			Bucket:     "ABEMIS_PORTAL",
			History:    5,
			SQLitePath: "data/abemis.db",
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Location: LocationConfig{
			BaseURL: "https://psgc.gitlab.io/api",
			Timeout: 15 * time.Second,
		},
		Documents: DocumentsConfig{
			Backend:        BackendMemory,
			Region:         "ap-southeast-1",
			MaxUploadBytes: 20 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Monitor: MonitorConfig{
			CheckInterval: time.Hour,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.HTTP.Prefix != "" && !strings.HasPrefix(c.HTTP.Prefix, "/") {
		return fmt.Errorf("http.prefix must start with /")
	}
	if !slices.Contains([]string{BackendMemory, BackendNATS, BackendSQLite}, c.Storage.Backend) {
		return fmt.Errorf("storage.backend must be memory, nats or sqlite")
	}
	if c.Storage.Backend == BackendNATS && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required for the nats backend")
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
	}
	if c.Storage.Backend == BackendNATS && c.NATS.URL == "" && !c.NATS.Embedded {
		return fmt.Errorf("nats.url is required when nats.embedded is false")
	}
	if c.Location.BaseURL == "" {
		return fmt.Errorf("location.base_url is required")
	}
	switch c.Documents.Backend {
	case BackendMemory:
	case BackendS3:
		if c.Documents.Bucket == "" {
			return fmt.Errorf("documents.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("documents.backend must be memory or s3")
	}
	if c.Documents.MaxUploadBytes <= 0 {
		return fmt.Errorf("documents.max_upload_bytes must be positive")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	if c.Monitor.CheckInterval <= 0 {
		return fmt.Errorf("monitor.check_interval must be positive")
	}
	return nil
}

// NeedsNATS reports whether the server must connect to NATS.
func (c *Config) NeedsNATS() bool {
	return c.Storage.Backend == BackendNATS || c.NATS.URL != "" || c.NATS.Embedded
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	defaults := DefaultConfig()

	// HTTP
	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}
	if other.HTTP.Prefix != "" {
		c.HTTP.Prefix = other.HTTP.Prefix
	}
	if other.HTTP.Gzip != defaults.HTTP.Gzip {
		c.HTTP.Gzip = other.HTTP.Gzip
	}
	if other.HTTP.ShutdownTimeout != 0 {
		c.HTTP.ShutdownTimeout = other.HTTP.ShutdownTimeout
	}

	// Storage
	if other.Storage.Backend != "" {
		c.Storage.Backend = other.Storage.Backend
	}
	if other.Storage.Bucket != "" {
		c.Storage.Bucket = other.Storage.Bucket
	}
	if other.Storage.History != 0 {
		c.Storage.History = other.Storage.History
	}
	if other.Storage.SQLitePath != "" {
		c.Storage.SQLitePath = other.Storage.SQLitePath
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}
	if other.NATS.StoreDir != "" {
		c.NATS.StoreDir = other.NATS.StoreDir
	}

	// Location
	if other.Location.BaseURL != "" {
		c.Location.BaseURL = other.Location.BaseURL
	}
	if other.Location.Timeout != 0 {
		c.Location.Timeout = other.Location.Timeout
	}

	// Documents
	if other.Documents.Backend != "" {
		c.Documents.Backend = other.Documents.Backend
	}
	if other.Documents.Bucket != "" {
		c.Documents.Bucket = other.Documents.Bucket
	}
	if other.Documents.Region != "" {
		c.Documents.Region = other.Documents.Region
	}
	if other.Documents.Endpoint != "" {
		c.Documents.Endpoint = other.Documents.Endpoint
	}
	if other.Documents.PathStyle {
		c.Documents.PathStyle = true
	}
	if other.Documents.MaxUploadBytes != 0 {
		c.Documents.MaxUploadBytes = other.Documents.MaxUploadBytes
	}

	// Metrics
	if other.Metrics.Enabled != defaults.Metrics.Enabled {
		c.Metrics.Enabled = other.Metrics.Enabled
	}
	if other.Metrics.Path != "" {
		c.Metrics.Path = other.Metrics.Path
	}

	// Monitor
	if other.Monitor.CheckInterval != 0 {
		c.Monitor.CheckInterval = other.Monitor.CheckInterval
	}
}
