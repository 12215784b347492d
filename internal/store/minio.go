package store

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore implements ObjectStore for MinIO and other S3-compatible
// endpoints, mirroring the S3Store semantics (ETag version tokens,
// conditional writes).
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore creates a MinIO-backed store with static credentials.
func NewMinIOStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinIOStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: bucket,
	}, nil
}

func (s *MinIOStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get %s/%s: %w", s.bucket, key, err)
	}
	defer func() { _ = obj.Close() }()

	// Stat issues the request; body and ETag come from the same response
	info, err := obj.Stat()
	if err != nil {
		if isMinIONotFound(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("stat %s/%s: %w", s.bucket, key, err)
	}

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("read %s/%s: %w", s.bucket, key, err)
	}

	return body, info.ETag, nil
}

func (s *MinIOStore) Put(ctx context.Context, key string, body []byte, opts PutOptions) (string, error) {
	putOpts := minio.PutObjectOptions{ContentType: opts.ContentType}
	if opts.IfMatch != "" {
		putOpts.SetMatchETag(opts.IfMatch)
	} else if opts.IfNoneMatch {
		putOpts.SetMatchETagExcept("*")
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), putOpts)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "PreconditionFailed" || errResp.Code == "ConditionalRequestConflict" {
			return "", ErrConflict
		}
		return "", fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}

	return info.ETag, nil
}

func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		if isMinIONotFound(err) {
			return nil // Already gone
		}
		return fmt.Errorf("delete %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *MinIOStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", s.bucket, prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func isMinIONotFound(err error) bool {
	errResp := minio.ToErrorResponse(err)
	return errResp.Code == "NoSuchKey" || errResp.Code == "NotFound"
}
