// Package storage puts upload objects into one of two logical buckets. The
// concrete backend (MinIO or Amazon S3) is chosen from configuration; callers
// only ever see the Store interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"bwupload/config"
)

// Bucket is a logical bucket name, resolved to a physical bucket by Buckets.
type Bucket string

const (
	Original  Bucket = "original"
	Processed Bucket = "processed"
)

var ErrNotFound = errors.New("object not found")

// ErrUnknownBucket is returned for a logical bucket name other than Original or Processed.
var ErrUnknownBucket = errors.New("unknown bucket")

// Object is a stored object opened for reading. The caller closes Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

type Store interface {
	Put(ctx context.Context, bucket Bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket Bucket, key string) (*Object, error)
	List(ctx context.Context, bucket Bucket, prefix string) ([]string, error)
}

// Buckets maps logical buckets to physical names.
type Buckets struct {
	Original  string
	Processed string
}

func (b Buckets) Resolve(bucket Bucket) (string, error) {
	switch bucket {
	case Original:
		return b.Original, nil
	case Processed:
		return b.Processed, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownBucket, bucket)
	}
}

func (b Buckets) all() []string {
	return []string{b.Original, b.Processed}
}

// ParseBucket accepts the logical names used in URLs.
func ParseBucket(s string) (Bucket, bool) {
	switch Bucket(s) {
	case Original, Processed:
		return Bucket(s), true
	default:
		return "", false
	}
}

// New builds the configured backend and makes sure both buckets exist.
func New(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (Store, error) {
	buckets := Buckets{Original: cfg.OriginalBucket, Processed: cfg.ProcessedBucket}
	switch cfg.Backend {
	case config.BackendS3:
		s, err := NewS3Store(ctx, cfg.S3, buckets, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMinio:
		s, err := NewMinioStore(ctx, cfg.Minio, buckets, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
