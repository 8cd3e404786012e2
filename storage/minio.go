package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"bwupload/config"
)

const (
	statRetries    = 3
	statRetryDelay = 50 * time.Millisecond
)

type MinioStore struct {
	client  *minio.Client
	buckets Buckets
	log     *zap.Logger
}

func NewMinioStore(ctx context.Context, cfg config.MinioConfig, buckets Buckets, log *zap.Logger) (*MinioStore, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	if i := strings.Index(endpoint, "/"); i != -1 {
		endpoint = endpoint[:i]
	}

	// The default transport keeps only 2 idle conns per host.
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	s := &MinioStore{client: client, buckets: buckets, log: log}
	if err := s.ensureBuckets(ctx, cfg.Region); err != nil {
		log.Warn("Failed to ensure buckets exist", zap.Error(err))
	}
	return s, nil
}

func (s *MinioStore) ensureBuckets(ctx context.Context, region string) error {
	for _, name := range s.buckets.all() {
		ok, err := s.client.BucketExists(ctx, name)
		if err != nil {
			return fmt.Errorf("check bucket %q: %w", name, err)
		}
		if ok {
			continue
		}
		s.log.Info("Creating bucket", zap.String("bucket", name))
		if err := s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("make bucket %q: %w", name, err)
		}
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, bucket Bucket, key string, data []byte, contentType string) error {
	name, err := s.buckets.Resolve(bucket)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, name, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", name, key, err)
	}
	s.log.Info("Object stored",
		zap.String("bucket", name),
		zap.String("key", key),
		zap.Int("size", len(data)))
	return nil
}

func (s *MinioStore) Get(ctx context.Context, bucket Bucket, key string) (*Object, error) {
	name, err := s.buckets.Resolve(bucket)
	if err != nil {
		return nil, err
	}

	// StatObject can intermittently return "Access Denied" under concurrent load.
	var info minio.ObjectInfo
	for attempt := 0; attempt < statRetries; attempt++ {
		info, err = s.client.StatObject(ctx, name, key, minio.StatObjectOptions{})
		if err == nil || minio.ToErrorResponse(err).Code != "AccessDenied" {
			break
		}
		if attempt < statRetries-1 {
			time.Sleep(statRetryDelay)
		}
	}
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%s/%s: %w", name, key, ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s/%s: %w", name, key, err)
	}

	obj, err := s.client.GetObject(ctx, name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", name, key, err)
	}
	return &Object{Body: obj, ContentType: info.ContentType, Size: info.Size}, nil
}

func (s *MinioStore) List(ctx context.Context, bucket Bucket, prefix string) ([]string, error) {
	name, err := s.buckets.Resolve(bucket)
	if err != nil {
		return nil, err
	}
	var keys []string
	for obj := range s.client.ListObjects(ctx, name, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", name, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}
