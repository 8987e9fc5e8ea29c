package uploads

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds MinIO/S3 connection settings for the upload store.
type Config struct {
	Endpoint  string        `yaml:"endpoint"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	Region    string        `yaml:"region"`
	UseSSL    bool          `yaml:"use_ssl"`
	Bucket    string        `yaml:"bucket"`
	URLTTL    time.Duration `yaml:"url_ttl"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("uploads: endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("uploads: endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("uploads: access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("uploads: secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("uploads: bucket is required")
	}
	return nil
}

// MinioStore issues presigned PUT URLs against one bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

// NewMinioStore connects a MinIO client from config.
func NewMinioStore(cfg Config) (*MinioStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("uploads: minio client: %w", err)
	}

	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, ttl: ttl}, nil
}

// NewMinioStoreWithClient wraps an existing client, mainly for tests.
func NewMinioStoreWithClient(client *minio.Client, bucket string, ttl time.Duration) (*MinioStore, error) {
	if client == nil {
		return nil, errors.New("uploads: minio client is required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MinioStore{client: client, bucket: bucket, ttl: ttl}, nil
}

// EnsureBucket creates the configured bucket when missing.
func (s *MinioStore) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("uploads: bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region})
}

// InitiateUpload mints a file id and a presigned PUT URL scoped to the
// organization's prefix.
func (s *MinioStore) InitiateUpload(ctx context.Context, req Request) (Grant, error) {
	fileID := uuid.NewString()
	key := path.Join(req.OrganizationID, fileID, req.FileName)

	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.ttl)
	if err != nil {
		return Grant{}, fmt.Errorf("uploads: presign put: %w", err)
	}

	return Grant{
		FileID:    fileID,
		Bucket:    s.bucket,
		Key:       key,
		UploadURL: u.String(),
		ExpiresAt: time.Now().UTC().Add(s.ttl),
	}, nil
}
