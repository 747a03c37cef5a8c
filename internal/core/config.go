package core

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"immunocore/internal/blob"
)

// StorageDriver identifies a record store backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// DefaultSQLitePath is the database file used when none is configured.
const DefaultSQLitePath = "cell-count.db"

// Config collects the runtime settings of the command line and HTTP server.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Blob    blob.Config   `yaml:"blob"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	// DistinctCacheSize bounds the distinct-value memo.
	DistinctCacheSize int `yaml:"distinct_cache_size"`
}

// StorageConfig selects and parameterises the record store.
type StorageConfig struct {
	Driver      StorageDriver `yaml:"driver"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// HTTPConfig configures the report server.
type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	ExportQueue int    `yaml:"export_queue"`
}

// LogConfig configures command logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Storage:           StorageConfig{Driver: StorageSQLite, SQLitePath: DefaultSQLitePath},
		Blob:              blob.Config{Driver: blob.DriverFilesystem, Root: "./exports"},
		HTTP:              HTTPConfig{Addr: ":8080", ExportQueue: 16},
		Log:               LogConfig{Level: "info"},
		DistinctCacheSize: defaultDistinctCacheSize,
	}
}

// LoadConfig reads an optional YAML file on top of the defaults and then
// applies IMMUNOCORE_* environment overrides.
//
//	IMMUNOCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	IMMUNOCORE_SQLITE_PATH: sqlite file (default ./cell-count.db)
//	IMMUNOCORE_POSTGRES_DSN: DSN when driver=postgres
//	IMMUNOCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	IMMUNOCORE_BLOB_FS_ROOT: export directory when driver=fs
//	IMMUNOCORE_BLOB_S3_BUCKET, IMMUNOCORE_BLOB_S3_REGION,
//	IMMUNOCORE_BLOB_S3_ENDPOINT, IMMUNOCORE_BLOB_S3_PATH_STYLE
//	IMMUNOCORE_HTTP_ADDR, IMMUNOCORE_LOG_LEVEL, IMMUNOCORE_DISTINCT_CACHE_SIZE
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var driver, blobDriver string
	str("IMMUNOCORE_STORAGE_DRIVER", &driver)
	if driver != "" {
		c.Storage.Driver = StorageDriver(driver)
	}
	str("IMMUNOCORE_SQLITE_PATH", &c.Storage.SQLitePath)
	str("IMMUNOCORE_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("IMMUNOCORE_BLOB_DRIVER", &blobDriver)
	if blobDriver != "" {
		c.Blob.Driver = blob.Driver(blobDriver)
	}
	str("IMMUNOCORE_BLOB_FS_ROOT", &c.Blob.Root)
	str("IMMUNOCORE_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("IMMUNOCORE_BLOB_S3_REGION", &c.Blob.S3.Region)
	str("IMMUNOCORE_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	str("IMMUNOCORE_HTTP_ADDR", &c.HTTP.Addr)
	str("IMMUNOCORE_LOG_LEVEL", &c.Log.Level)

	var pathStyle, cacheSize string
	str("IMMUNOCORE_BLOB_S3_PATH_STYLE", &pathStyle)
	if pathStyle != "" {
		b, err := strconv.ParseBool(pathStyle)
		if err != nil {
			return fmt.Errorf("IMMUNOCORE_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	str("IMMUNOCORE_DISTINCT_CACHE_SIZE", &cacheSize)
	if cacheSize != "" {
		n, err := strconv.Atoi(cacheSize)
		if err != nil {
			return fmt.Errorf("IMMUNOCORE_DISTINCT_CACHE_SIZE: %w", err)
		}
		c.DistinctCacheSize = n
	}
	return nil
}

// Validate checks that the selected drivers have what they need.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage: postgres driver requires a DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}
	if err := c.Blob.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.DistinctCacheSize < 0 {
		errs = append(errs, errors.New("distinct_cache_size must not be negative"))
	}
	return errors.Join(errs...)
}
