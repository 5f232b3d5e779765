package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/smallbiznis/donara/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ObjectStore keeps generated documents such as receipts.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, body []byte) (string, error)
}

var Module = fx.Module("providers.storage",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns an S3 store when a bucket is configured and a no-op store otherwise.
func NewFromConfig(cfg config.Config, log *zap.Logger) (ObjectStore, error) {
	bucket := strings.TrimSpace(cfg.Receipts.Bucket)
	if bucket == "" {
		log.Info("receipt storage disabled")
		return NoOpStore{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Receipts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(awsCfg), bucket, cfg.Receipts.Region, cfg.Receipts.KeyPrefix), nil
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Store struct {
	client putObjectAPI
	bucket string
	region string
	prefix string
}

func NewS3Store(client putObjectAPI, bucket, region, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *S3Store) Put(ctx context.Context, key string, contentType string, body []byte) (string, error) {
	objectKey := path.Join(s.prefix, strings.TrimLeft(key, "/"))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, objectKey), nil
}

type NoOpStore struct{}

func (NoOpStore) Put(ctx context.Context, key string, contentType string, body []byte) (string, error) {
	return "", nil
}
