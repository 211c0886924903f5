// Package storage archives raw webhook payloads to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/sellerlink/backend/internal/domain/integration"
	infraconfig "github.com/sellerlink/backend/internal/infrastructure/config"
)

var _ integration.WebhookArchive = (*S3WebhookArchive)(nil)

// S3WebhookArchive stores every received webhook body as one object.
// It is compatible with any S3-compatible storage (AWS S3, MinIO, etc.)
type S3WebhookArchive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// S3WebhookArchiveOption is a functional option for configuring S3WebhookArchive
type S3WebhookArchiveOption func(*S3WebhookArchive)

// WithLogger sets a custom logger for S3WebhookArchive
func WithLogger(logger *zap.Logger) S3WebhookArchiveOption {
	return func(s *S3WebhookArchive) {
		s.logger = logger
	}
}

// NewS3WebhookArchive creates a new S3WebhookArchive from configuration
func NewS3WebhookArchive(cfg *infraconfig.StorageConfig, opts ...S3WebhookArchiveOption) (*S3WebhookArchive, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	var endpoint string
	if cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid storage endpoint: %w", err)
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	archive := &S3WebhookArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(archive)
	}
	return archive, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup to ensure the bucket is ready.
func (s *S3WebhookArchive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating webhook archive bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		// Ignore "BucketAlreadyOwnedByYou" error (race condition)
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive uploads the raw payload of event and returns its object key
func (s *S3WebhookArchive) Archive(ctx context.Context, event *integration.WebhookEvent) (string, error) {
	key := ArchiveKey(s.prefix, event)

	topic := event.Topic
	if topic == "" {
		topic = "unknown"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(event.Payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"topic":           topic,
			"signature-valid": strconv.FormatBool(event.SignatureValid),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive webhook %s: %w", event.ID, err)
	}

	s.logger.Debug("Webhook payload archived",
		zap.String("bucket", s.bucket),
		zap.String("key", key))
	return key, nil
}

// GetBucket returns the bucket name
func (s *S3WebhookArchive) GetBucket() string {
	return s.bucket
}

// ArchiveKey partitions payloads by the UTC day they were received: <prefix>/YYYY/MM/DD/<event id>.json
func ArchiveKey(prefix string, event *integration.WebhookEvent) string {
	received := event.ReceivedAt.UTC()
	return path.Join(
		prefix,
		received.Format("2006"),
		received.Format("01"),
		received.Format("02"),
		event.ID.String()+".json",
	)
}
