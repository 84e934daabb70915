// Package config provides unified configuration for the Stockroom engine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the Stockroom migration engine.
type Config struct {
	// DataDir is the base directory for resources and work files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// ModelsDir is the directory holding schema version resources
	ModelsDir string `json:"models_dir" yaml:"models_dir"`

	// MappingsDir is the directory holding custom mapping resources
	MappingsDir string `json:"mappings_dir" yaml:"mappings_dir"`

	// Snapshot configuration
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
}

// SnapshotConfig holds pre-migration snapshot configuration.
type SnapshotConfig struct {
	// Enabled controls whether a snapshot of the store is archived before
	// each migration
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Storage is the archive backend: local, s3
	Storage string `json:"storage" yaml:"storage"`

	// Path is the local archive path (for local storage)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 storage)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 archive configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/stockroom",
		Snapshot: SnapshotConfig{
			Enabled: false,
			Storage: "local",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/stockroom"
	}

	if c.ModelsDir == "" {
		c.ModelsDir = filepath.Join(c.DataDir, "models")
	}

	// Custom mappings live next to the models they connect unless placed
	// elsewhere explicitly.
	if c.MappingsDir == "" {
		c.MappingsDir = filepath.Join(c.ModelsDir, "mappings")
	}

	if c.Snapshot.Path == "" {
		c.Snapshot.Path = filepath.Join(c.DataDir, "snapshots")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.ModelsDir == "" {
		return fmt.Errorf("models_dir is required")
	}

	if c.Snapshot.Storage != "local" && c.Snapshot.Storage != "s3" {
		return fmt.Errorf("invalid snapshot storage: %s (must be local or s3)", c.Snapshot.Storage)
	}

	if c.Snapshot.Enabled && c.Snapshot.Storage == "s3" && c.Snapshot.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when snapshot storage is s3")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
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

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the STOCKROOM_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("STOCKROOM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("STOCKROOM_MODELS_DIR"); v != "" {
		cfg.ModelsDir = v
	}
	if v := os.Getenv("STOCKROOM_MAPPINGS_DIR"); v != "" {
		cfg.MappingsDir = v
	}

	// Snapshot configuration
	if v := os.Getenv("STOCKROOM_SNAPSHOT_ENABLED"); v != "" {
		cfg.Snapshot.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("STOCKROOM_SNAPSHOT_STORAGE"); v != "" {
		cfg.Snapshot.Storage = v
	}
	if v := os.Getenv("STOCKROOM_SNAPSHOT_PATH"); v != "" {
		cfg.Snapshot.Path = v
	}
	if v := os.Getenv("STOCKROOM_S3_BUCKET"); v != "" {
		cfg.Snapshot.S3.Bucket = v
	}
	if v := os.Getenv("STOCKROOM_S3_REGION"); v != "" {
		cfg.Snapshot.S3.Region = v
	}
	if v := os.Getenv("STOCKROOM_S3_ENDPOINT"); v != "" {
		cfg.Snapshot.S3.Endpoint = v
	}
	if v := os.Getenv("STOCKROOM_S3_USE_PATH_STYLE"); v != "" {
		cfg.Snapshot.S3.UsePathStyle = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.ModelsDir,
		c.MappingsDir,
	}
	if c.Snapshot.Enabled && c.Snapshot.Storage == "local" {
		dirs = append(dirs, c.Snapshot.Path)
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
