package downloads

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"
	"github.com/mindsetalert/backoffice/internal/pkg/env"
)

// S3Config addresses the bucket holding installers. EndpointURL selects an S3-compatible
// service such as Backblaze B2.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string
	Prefix          string
	LinkTTL         time.Duration
}

func S3ConfigFromEnv() S3Config {
	return S3Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Prefix:          env.GetEnv("S3_DOWNLOAD_PREFIX", "releases"),
		LinkTTL:         env.GetDuration("DOWNLOAD_LINK_TTL", defaultLinkTTL),
	}
}

func (c S3Config) validate() error {
	var missing []string
	if c.AccessKeyID == "" {
		missing = append(missing, "S3_ACCESS_KEY_ID")
	}
	if c.SecretAccessKey == "" {
		missing = append(missing, "S3_SECRET_ACCESS_KEY")
	}
	if c.BucketName == "" {
		missing = append(missing, "S3_BUCKET_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}

// S3Resolver answers with short-lived presigned GET URLs.
type S3Resolver struct {
	client    *s3.Client
	presigner *s3.PresignClient
	config    S3Config
}

func NewS3Resolver(ctx context.Context, cfg S3Config) (*S3Resolver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = defaultLinkTTL
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// B2 and MinIO-style endpoints need path-style addressing.
			o.UsePathStyle = true
		}
	})

	log.Infof("[Downloads] S3 resolver ready for bucket %s", cfg.BucketName)
	return &S3Resolver{client: client, presigner: s3.NewPresignClient(client), config: cfg}, nil
}

func (r *S3Resolver) objectKey(fileKey string) string {
	if r.config.Prefix == "" {
		return fileKey
	}
	return path.Join(r.config.Prefix, fileKey)
}

func (r *S3Resolver) Resolve(ctx context.Context, fileKey string) (*Delivery, error) {
	key, err := cleanKey(fileKey)
	if err != nil {
		return nil, err
	}
	objectKey := r.objectKey(key)

	_, err = r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.config.BucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("head s3://%s/%s: %w", r.config.BucketName, objectKey, err)
	}

	fileName := path.Base(key)
	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(r.config.BucketName),
		Key:                        aws.String(objectKey),
		ResponseContentDisposition: aws.String(attachmentDisposition(fileName)),
	}, s3.WithPresignExpires(r.config.LinkTTL))
	if err != nil {
		return nil, fmt.Errorf("presign s3://%s/%s: %w", r.config.BucketName, objectKey, err)
	}
	return &Delivery{RedirectURL: req.URL, FileName: fileName}, nil
}
