package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/config"
)

// NewFromConfig builds the configured object store wrapped with metrics.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (ObjectStore, error) {
	var store ObjectStore

	switch cfg.Backend {
	case "s3":
		s3Store, err := NewS3Store(ctx, S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UseSSL:          cfg.S3.UseSSL,
			UsePathStyle:    cfg.S3.UsePathStyle,
			Timeout:         cfg.S3.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		store = s3Store
	case "memory":
		logger.Warn().Msg("using in-memory object store, data is lost on restart")
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	return NewInstrumentedStore(store), nil
}
