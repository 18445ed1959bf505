package config

import (
	"context"
	"fmt"

	"github.com/modelcached/modelcached/pkg/store"
	"github.com/modelcached/modelcached/pkg/store/memory"
	"github.com/modelcached/modelcached/pkg/store/s3"
)

// CreateRemoteStore creates the remote artifact store from configuration.
func CreateRemoteStore(ctx context.Context, cfg StoreConfig, metrics store.Metrics) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "s3":
		s, err := s3.NewFromConfig(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			KeyPrefix:       cfg.S3.KeyPrefix,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			MaxRetries:      cfg.S3.MaxRetries,
			Metrics:         metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Backend)
	}
}
