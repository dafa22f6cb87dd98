// Package config provides configuration for the analytics store and its servers.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const envPrefix = "ANALYTICA_"

// Config holds the full service configuration.
type Config struct {
	// DataDir is the base directory for the database and local exports
	DataDir string `json:"data_dir" yaml:"data_dir"`

	Store     StoreConfig     `json:"store" yaml:"store"`
	Retention RetentionConfig `json:"retention" yaml:"retention"`
	Query     QueryConfig     `json:"query" yaml:"query"`
	Reports   ReportsConfig   `json:"reports" yaml:"reports"`
	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	GRPC      GRPCConfig      `json:"grpc" yaml:"grpc"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Export    ExportConfig    `json:"export" yaml:"export"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// StoreConfig configures the embedded SQLite database.
type StoreConfig struct {
	// Path is the database file; defaults to <data_dir>/analytics.db
	Path string `json:"path" yaml:"path"`

	// BusyTimeout is how long SQLite waits on a locked database
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`

	// ReadPoolSize is the number of concurrent read connections
	ReadPoolSize int `json:"read_pool_size" yaml:"read_pool_size"`
}

// RetentionConfig configures the retention evictor.
type RetentionConfig struct {
	// MaxRecords is the retention ceiling (default 50,000)
	MaxRecords int `json:"max_records" yaml:"max_records"`
}

// QueryConfig configures query defaults.
type QueryConfig struct {
	// DefaultLimit is the page size used when a query has no limit
	DefaultLimit int `json:"default_limit" yaml:"default_limit"`

	// StatsCeiling bounds how many records stats computation reads
	StatsCeiling int `json:"stats_ceiling" yaml:"stats_ceiling"`
}

// ReportsConfig configures the report cache.
type ReportsConfig struct {
	CacheSize int           `json:"cache_size" yaml:"cache_size"`
	CacheTTL  time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC health server configuration.
type GRPCConfig struct {
	Addr    string `json:"addr" yaml:"addr"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// StorageConfig selects where export snapshots are written.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// ExportConfig configures scheduled export snapshots.
type ExportConfig struct {
	// Schedule is a cron spec; empty disables scheduled exports
	Schedule string `json:"schedule" yaml:"schedule"`

	// Prefix is the object path prefix for snapshots
	Prefix string `json:"prefix" yaml:"prefix"`

	// Keep is how many scheduled snapshots survive pruning; 0 keeps all
	Keep int `json:"keep" yaml:"keep"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/analytica",
		Store: StoreConfig{
			BusyTimeout:  5 * time.Second,
			ReadPoolSize: 4,
		},
		Retention: RetentionConfig{
			MaxRecords: 50000,
		},
		Query: QueryConfig{
			DefaultLimit: 100,
			StatsCeiling: 10000,
		},
		Reports: ReportsConfig{
			CacheSize: 256,
			CacheTTL:  10 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Export: ExportConfig{
			Prefix: "exports",
			Keep:   24,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Resolve fills paths derived from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/analytica"
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "analytics.db")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Retention.MaxRecords <= 0 {
		return fmt.Errorf("retention.max_records must be positive, got %d", c.Retention.MaxRecords)
	}
	if c.Query.DefaultLimit <= 0 {
		return fmt.Errorf("query.default_limit must be positive, got %d", c.Query.DefaultLimit)
	}
	if c.Query.StatsCeiling < c.Query.DefaultLimit {
		return fmt.Errorf("query.stats_ceiling (%d) must be >= query.default_limit (%d)",
			c.Query.StatsCeiling, c.Query.DefaultLimit)
	}
	if c.Store.ReadPoolSize <= 0 {
		return fmt.Errorf("store.read_pool_size must be positive, got %d", c.Store.ReadPoolSize)
	}
	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}
	if c.Export.Schedule != "" {
		if _, err := cron.ParseStandard(c.Export.Schedule); err != nil {
			return fmt.Errorf("invalid export.schedule %q: %w", c.Export.Schedule, err)
		}
	}
	if c.Export.Keep < 0 {
		return fmt.Errorf("export.keep must not be negative, got %d", c.Export.Keep)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log.format: %s (must be text or json)", c.Log.Format)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides cfg from ANALYTICA_* environment variables.
// Unparseable numeric values are ignored.
func LoadFromEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("DATA_DIR", &cfg.DataDir)
	str("STORE_PATH", &cfg.Store.Path)
	dur("STORE_BUSY_TIMEOUT", &cfg.Store.BusyTimeout)
	num("STORE_READ_POOL_SIZE", &cfg.Store.ReadPoolSize)

	num("RETENTION_MAX_RECORDS", &cfg.Retention.MaxRecords)
	num("QUERY_DEFAULT_LIMIT", &cfg.Query.DefaultLimit)
	num("QUERY_STATS_CEILING", &cfg.Query.StatsCeiling)
	num("REPORTS_CACHE_SIZE", &cfg.Reports.CacheSize)
	dur("REPORTS_CACHE_TTL", &cfg.Reports.CacheTTL)

	str("HTTP_ADDR", &cfg.HTTP.Addr)
	str("GRPC_ADDR", &cfg.GRPC.Addr)
	if v := os.Getenv(envPrefix + "GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	str("STORAGE_TYPE", &cfg.Storage.Type)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("S3_BUCKET", &cfg.Storage.S3.Bucket)
	str("S3_REGION", &cfg.Storage.S3.Region)
	str("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)

	str("EXPORT_SCHEDULE", &cfg.Export.Schedule)
	str("EXPORT_PREFIX", &cfg.Export.Prefix)
	num("EXPORT_KEEP", &cfg.Export.Keep)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
}

// EnsureDirectories creates the directories the service writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, filepath.Dir(c.Store.Path)}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
