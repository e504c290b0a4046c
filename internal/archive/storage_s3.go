package archive

import (
	"context"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"satoshicheckout/internal/logging"
)

// DefaultB2Endpoint is the Backblaze B2 S3-compatible endpoint.
const DefaultB2Endpoint = "s3.us-east-005.backblazeb2.com"

// Client is the subset of the minio client used by S3Storage.
type Client interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Config holds configuration for S3-compatible storage (B2 by default).
type S3Config struct {
	Endpoint string // B2_ENDPOINT
	KeyID    string // B2_KEY_ID
	AppKey   string // B2_APP_KEY
	Bucket   string // B2_BUCKET
	Prefix   string // B2_PREFIX
}

// S3Storage implements Storage on an S3-compatible bucket.
type S3Storage struct {
	client Client
	bucket string
	prefix string
}

// NewS3Storage connects to the configured endpoint.
func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultB2Endpoint
	}
	logging.Archive.Printf("initializing object storage (bucket=%s, prefix=%s, endpoint=%s)", cfg.Bucket, cfg.Prefix, endpoint)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.KeyID, cfg.AppKey, ""),
		Secure: true,
	})
	if err != nil {
		logging.Archive.Printf("failed to create client: %v", err)
		return nil, err
	}
	return NewS3StorageWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3StorageWithClient creates storage over an existing client.
func NewS3StorageWithClient(client Client, bucket, prefix string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Storage) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3Storage) Save(ctx context.Context, key string, data io.Reader, size int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	objectKey := s.key(key)
	info, err := s.client.PutObject(ctx, s.bucket, objectKey, data, size, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		logging.Archive.Printf("upload failed for %s: %v", objectKey, err)
		return 0, err
	}
	return info.Size, nil
}
