// Package storage provides the object storage sink for export snapshots.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage stores whole objects by path.
type ObjectStorage interface {
	// Put writes body to objectPath, replacing any existing object.
	Put(ctx context.Context, objectPath string, body []byte) error

	// Get reads the object at objectPath. A missing object is ErrObjectNotFound.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes an object. Deleting a missing object succeeds.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)

	// Backend names the implementation for logs and metrics.
	Backend() string
}

// Config selects and configures a backend.
type Config struct {
	// Type is "local" or "s3".
	Type string
	// Path is the base directory of the local backend.
	Path string
	// Bucket is the S3 bucket.
	Bucket string
	S3     S3Config
}

// Open creates the backend described by cfg.
func Open(ctx context.Context, cfg Config) (ObjectStorage, error) {
	switch cfg.Type {
	case "", "local":
		local, err := NewLocalStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		return local, nil
	case "s3":
		remote, err := NewS3Storage(ctx, cfg.Bucket, cfg.S3)
		if err != nil {
			return nil, err
		}
		return remote, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Type)
	}
}
