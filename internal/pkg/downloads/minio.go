package downloads

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mindsetalert/backoffice/internal/pkg/env"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	Prefix     string
	UseSSL     bool
	LinkTTL    time.Duration
}

func MinIOConfigFromEnv() MinIOConfig {
	return MinIOConfig{
		Endpoint:   env.GetEnv("MINIO_ENDPOINT", ""),
		AccessKey:  env.GetEnv("MINIO_ACCESS_KEY", ""),
		SecretKey:  env.GetEnv("MINIO_SECRET_KEY", ""),
		BucketName: env.GetEnv("MINIO_BUCKET", "downloads"),
		Prefix:     env.GetEnv("MINIO_DOWNLOAD_PREFIX", ""),
		UseSSL:     env.GetBool("MINIO_USE_SSL", true),
		LinkTTL:    env.GetDuration("DOWNLOAD_LINK_TTL", defaultLinkTTL),
	}
}

// MinIOResolver serves installers from a self-hosted MinIO bucket through presigned URLs.
type MinIOResolver struct {
	client *minio.Client
	config MinIOConfig
}

func NewMinIOResolver(ctx context.Context, cfg MinIOConfig) (*MinIOResolver, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required", ErrNotConfigured)
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = defaultLinkTTL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: bucket %s does not exist", ErrNotConfigured, cfg.BucketName)
	}

	log.Infof("[Downloads] MinIO resolver ready for bucket %s", cfg.BucketName)
	return &MinIOResolver{client: client, config: cfg}, nil
}

func (r *MinIOResolver) Resolve(ctx context.Context, fileKey string) (*Delivery, error) {
	key, err := cleanKey(fileKey)
	if err != nil {
		return nil, err
	}
	objectKey := key
	if r.config.Prefix != "" {
		objectKey = path.Join(strings.Trim(r.config.Prefix, "/"), key)
	}

	if _, err := r.client.StatObject(ctx, r.config.BucketName, objectKey, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	fileName := path.Base(key)
	params := url.Values{}
	params.Set("response-content-disposition", attachmentDisposition(fileName))

	u, err := r.client.PresignedGetObject(ctx, r.config.BucketName, objectKey, r.config.LinkTTL, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return &Delivery{RedirectURL: u.String(), FileName: fileName}, nil
}
