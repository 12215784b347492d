package store

import (
	"context"
	"fmt"

	"recipe-vault-backend/internal/config"
)

// NewFromConfig builds the ObjectStore the configuration selects.
func NewFromConfig(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	switch cfg.StoreBackend {
	case "s3":
		return NewS3Store(ctx, cfg.AWSRegion, cfg.Bucket)
	case "minio":
		return NewMinIOStore(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.Bucket, cfg.MinIOUseSSL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
