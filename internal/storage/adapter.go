package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/yuanying/epubweb/internal/config"
)

// ErrNotFound is returned by Get when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// Adapter is a destination for published book files. Keys use "/" as
// separator regardless of the backend.
type Adapter interface {
	// Put stores data at key, replacing any existing object.
	Put(ctx context.Context, key string, data io.Reader) error

	// Get retrieves the object at key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases any resources.
	Close() error
}

// NewAdapter creates the adapter selected by cfg.
func NewAdapter(ctx context.Context, cfg config.StorageConfig) (Adapter, error) {
	if err := config.ValidateStorage(cfg); err != nil {
		return nil, err
	}
	switch cfg.Adapter {
	case "local":
		return NewLocalAdapter(cfg.Local.BasePath)
	case "s3":
		return NewS3Adapter(ctx, S3Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Adapter)
	}
}
