// Package objectstore implements storage.Store on an S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	platformstore "github.com/animus-labs/animus-migrate/internal/platform/objectstore"
	"github.com/animus-labs/animus-migrate/internal/storage"
	"github.com/minio/minio-go/v7"
)

type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioStore(cfg platformstore.Config) (*MinioStore, error) {
	client, err := platformstore.NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewMinioStoreWithClient(client, cfg.Bucket, cfg.Prefix)
}

func NewMinioStoreWithClient(client *minio.Client, bucket, prefix string) (*MinioStore, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &MinioStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *MinioStore) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *MinioStore) storeKey(objectKey string) string {
	if s.prefix == "" {
		return objectKey
	}
	return strings.TrimPrefix(objectKey, s.prefix+"/")
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(key, err)
	}
	defer func() { _ = obj.Close() }()
	raw, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(key, err)
	}
	return raw, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, value []byte) error {
	opts := minio.PutObjectOptions{ContentType: contentType(key)}
	_, err := s.client.PutObject(ctx, s.bucket, s.objectKey(key), bytes.NewReader(value), int64(len(value)), opts)
	if err != nil {
		return fmt.Errorf("minio put %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.objectKey(prefix),
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("minio list %s: %w", prefix, info.Err)
		}
		keys = append(keys, s.storeKey(info.Key))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, s.objectKey(key), minio.RemoveObjectOptions{}); err != nil {
		return mapError(key, err)
	}
	return nil
}

func mapError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return storage.ErrNotFound
	}
	return fmt.Errorf("minio %s: %w", key, err)
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".ndjson") {
		return "application/x-ndjson"
	}
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
