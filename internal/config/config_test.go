package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigResolvesAndValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ModelsDir != filepath.Join(cfg.DataDir, "models") {
		t.Errorf("ModelsDir = %s", cfg.ModelsDir)
	}
	if cfg.MappingsDir != filepath.Join(cfg.ModelsDir, "mappings") {
		t.Errorf("MappingsDir = %s", cfg.MappingsDir)
	}
	if cfg.Snapshot.Path != filepath.Join(cfg.DataDir, "snapshots") {
		t.Errorf("Snapshot.Path = %s", cfg.Snapshot.Path)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /var/lib/stockroom
models_dir: /opt/models
snapshot:
  enabled: true
  storage: s3
  s3:
    bucket: stockroom-snapshots
    region: eu-west-1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.DataDir != "/var/lib/stockroom" || cfg.ModelsDir != "/opt/models" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.Snapshot.Enabled || cfg.Snapshot.S3.Bucket != "stockroom-snapshots" {
		t.Errorf("snapshot = %+v", cfg.Snapshot)
	}
	// Mappings default follows the explicit models dir.
	if cfg.MappingsDir != filepath.Join("/opt/models", "mappings") {
		t.Errorf("MappingsDir = %s", cfg.MappingsDir)
	}
}

func TestLoadFromFileUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STOCKROOM_DATA_DIR", "/tmp/sr")
	t.Setenv("STOCKROOM_SNAPSHOT_ENABLED", "true")
	t.Setenv("STOCKROOM_SNAPSHOT_STORAGE", "s3")
	t.Setenv("STOCKROOM_S3_BUCKET", "b")
	t.Setenv("STOCKROOM_S3_USE_PATH_STYLE", "1")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.DataDir != "/tmp/sr" || cfg.Snapshot.Storage != "s3" || !cfg.Snapshot.S3.UsePathStyle {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidateRejectsBadSnapshotStorage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	cfg.Snapshot.Storage = "ftp"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown snapshot storage")
	}
}

func TestValidateRequiresBucketForS3(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	cfg.Snapshot.Enabled = true
	cfg.Snapshot.Storage = "s3"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing s3 bucket")
	}
}
