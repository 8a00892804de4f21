package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/smallbiznis/bizledger/internal/config"
	"go.uber.org/zap"
)

// Archiver keeps rendered documents.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// NoOpArchiver discards documents. Used when no object store is configured.
type NoOpArchiver struct{}

func (NoOpArchiver) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return "", nil
}

// MinioArchiver stores documents in a single MinIO bucket.
type MinioArchiver struct {
	client *minio.Client
	bucket string
	log    *zap.Logger
}

// NewMinioArchiver connects to MinIO and makes sure the bucket exists.
func NewMinioArchiver(ctx context.Context, cfg config.MinioConfig, log *zap.Logger) (*MinioArchiver, error) {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("error checking bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("error creating bucket %s: %w", cfg.Bucket, err)
		}
		log.Info("created document bucket", zap.String("bucket", cfg.Bucket))
	}

	return &MinioArchiver{client: client, bucket: cfg.Bucket, log: log}, nil
}

// Put uploads data under key and returns the bucket-qualified location.
func (a *MinioArchiver) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", key, a.bucket, err)
	}
	a.log.Debug("document archived", zap.String("bucket", a.bucket), zap.String("key", key), zap.Int("bytes", len(data)))
	return a.bucket + "/" + key, nil
}

// ObjectKey places documents under <kind>/<year>/<number>.pdf.
func ObjectKey(kind, number string, issued time.Time) string {
	return fmt.Sprintf("%s/%04d/%s.pdf", kind, issued.Year(), number)
}
