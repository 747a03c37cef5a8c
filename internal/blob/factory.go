package blob

import (
	"context"
	"errors"
	"fmt"

	"immunocore/internal/infra/blob/fs"
	"immunocore/internal/infra/blob/memory"
	"immunocore/internal/infra/blob/s3"
)

// Config selects the artifact backend. Root applies to the fs driver and S3
// to the s3 driver.
type Config struct {
	Driver Driver    `yaml:"driver"`
	Root   string    `yaml:"root"`
	S3     s3.Config `yaml:"s3"`
}

// Validate checks that the selected driver has what it needs.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverFilesystem:
		if c.Root == "" {
			return errors.New("blob: fs driver requires a root directory")
		}
	case DriverS3:
		if c.S3.Bucket == "" {
			return errors.New("blob: s3 driver requires a bucket")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("blob: unknown driver %q", c.Driver)
	}
	return nil
}

// Open builds the configured Store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return fs.New(cfg.Root)
	}
}
