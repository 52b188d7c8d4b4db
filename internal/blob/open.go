package blob

import (
	"context"
	"fmt"

	"songshare/internal/config"
)

// Open builds the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.BlobConfig, maxSize int64) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Dir, maxSize)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			EndpointURL:     cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Prefix:          cfg.Prefix,
		}, maxSize)
	case "qiniu":
		return NewQiniuStore(QiniuConfig{
			AccessKey: cfg.QiniuAccessKey,
			SecretKey: cfg.QiniuSecretKey,
			Bucket:    cfg.QiniuBucket,
			Domain:    cfg.QiniuDomain,
			Prefix:    cfg.Prefix,
		}, maxSize), nil
	default:
		return nil, fmt.Errorf("blob: unknown backend %q", cfg.Backend)
	}
}
