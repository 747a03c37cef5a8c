package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"immunocore/internal/blob"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.Storage.SQLitePath != DefaultSQLitePath {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Blob.Driver != blob.DriverFilesystem {
		t.Fatalf("unexpected blob driver %s", cfg.Blob.Driver)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "immunocore.yaml")
	data := `
storage:
  driver: memory
blob:
  driver: s3
  s3:
    bucket: from-file
    region: eu-west-1
http:
  addr: ":9090"
log:
  level: debug
distinct_cache_size: 8
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IMMUNOCORE_BLOB_S3_BUCKET", "from-env")
	t.Setenv("IMMUNOCORE_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("IMMUNOCORE_DISTINCT_CACHE_SIZE", "4")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Fatalf("expected memory storage, got %s", cfg.Storage.Driver)
	}
	if cfg.Blob.S3.Bucket != "from-env" || cfg.Blob.S3.Region != "eu-west-1" || !cfg.Blob.S3.PathStyle {
		t.Fatalf("unexpected s3 config %+v", cfg.Blob.S3)
	}
	if cfg.HTTP.Addr != ":9090" || cfg.HTTP.ExportQueue != 16 {
		t.Fatalf("unexpected http config %+v", cfg.HTTP)
	}
	if cfg.Log.Level != "debug" || cfg.DistinctCacheSize != 4 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadConfigRejectsInvalidSettings(t *testing.T) {
	t.Setenv("IMMUNOCORE_STORAGE_DRIVER", "postgres")
	t.Setenv("IMMUNOCORE_BLOB_DRIVER", "gcs")
	_, err := LoadConfig("")
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "requires a DSN") || !strings.Contains(msg, "unknown driver") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}

func TestLoadConfigBadEnvValues(t *testing.T) {
	t.Setenv("IMMUNOCORE_DISTINCT_CACHE_SIZE", "many")
	if _, err := LoadConfig(""); err == nil || !strings.Contains(err.Error(), "IMMUNOCORE_DISTINCT_CACHE_SIZE") {
		t.Fatalf("expected cache size parse error, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}
