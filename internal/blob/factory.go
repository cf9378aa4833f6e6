package blob

import (
	"context"
	"fmt"
	"os"

	"psimaker/internal/infra/blob/fs"
	memorystore "psimaker/internal/infra/blob/memory"
	infraS3 "psimaker/internal/infra/blob/s3"
)

// S3Config re-exports the S3 driver configuration.
type S3Config = infraS3.Config

// Config selects and configures a driver.
type Config struct {
	Driver Driver   `yaml:"driver"`
	Root   string   `yaml:"root"`
	S3     S3Config `yaml:"s3"`
}

// ConfigFromEnv overlays the PSIMAKER_BLOB_* variables on base:
//
//	PSIMAKER_BLOB_DRIVER: fs|s3|memory
//	PSIMAKER_BLOB_FS_ROOT: directory root when driver=fs
//	PSIMAKER_BLOB_S3_*: see the s3 driver
func ConfigFromEnv(base Config) Config {
	if v := os.Getenv("PSIMAKER_BLOB_DRIVER"); v != "" {
		base.Driver = Driver(v)
	}
	if v := os.Getenv("PSIMAKER_BLOB_FS_ROOT"); v != "" {
		base.Root = v
	}
	base.S3 = infraS3.ConfigFromEnv(base.S3)
	return base
}

// Open constructs the store selected by cfg. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem constructs a filesystem-backed store rooted at root.
func NewFilesystem(root string) (Store, error) {
	s, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMockS3ForTests returns an S3 store backed by an in-memory fake bucket.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
