// Package blob stores media objects in an S3 compatible bucket.
package blob

import (
	"bourracho/errors"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Backend string

const (
	BackendS3    Backend = "s3"
	BackendMinio Backend = "minio"
)

const defaultBucket = "media-files"

type Config struct {
	StorageURI string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Region     string
	UseSSL     bool
}

// Target is where objects go, resolved from the storage URI.
type Target struct {
	Backend Backend
	Bucket  string
}

// ParseStorageURI resolves "s3://bucket" to an AWS bucket. Anything else is
// a local path whose last component, made DNS compliant, names a MinIO bucket.
func ParseStorageURI(uri string) Target {
	if bucket, ok := strings.CutPrefix(uri, "s3://"); ok {
		return Target{Backend: BackendS3, Bucket: bucket}
	}
	trimmed := strings.Trim(uri, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	bucket := strings.Trim(strings.ToLower(strings.ReplaceAll(trimmed, "_", "-")), "-")
	if bucket == "" {
		bucket = defaultBucket
	}
	return Target{Backend: BackendMinio, Bucket: bucket}
}

type MinioStore struct {
	log    *slog.Logger
	client *minio.Client
	target Target
}

// NewMinioStore connects to the backend of cfg.StorageURI and makes sure
// the bucket exists. Only MinIO buckets are created on the fly.
func NewMinioStore(ctx context.Context, log *slog.Logger, cfg Config) (*MinioStore, error) {
	target := ParseStorageURI(cfg.StorageURI)
	endpoint, secure, region := cfg.Endpoint, cfg.UseSSL, cfg.Region
	if target.Backend == BackendS3 {
		endpoint, secure = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region), true
	} else if region == "" {
		region = "us-east-1"
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	store := &MinioStore{log: log, client: client, target: target}
	if err := store.ensureBucket(ctx, region); err != nil {
		log.Error("Storage initialization failed",
			"backend", target.Backend, "bucket", target.Bucket, "endpoint", endpoint, "error", err)
		return nil, err
	}
	log.Info("Media storage initialized", "backend", target.Backend, "bucket", target.Bucket, "endpoint", endpoint)
	return store, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.target.Bucket)
	if err != nil {
		return errors.Unavailable("check bucket "+s.target.Bucket, err)
	}
	if exists {
		return nil
	}
	if s.target.Backend != BackendMinio {
		return fmt.Errorf("%w: bucket %s does not exist", errors.ErrUnavailable, s.target.Bucket)
	}
	s.log.Info("Bucket not found, creating it", "bucket", s.target.Bucket)
	if err := s.client.MakeBucket(ctx, s.target.Bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return errors.Unavailable("create bucket "+s.target.Bucket, err)
	}
	return nil
}

func (s *MinioStore) Backend() Backend { return s.target.Backend }

// Put uploads an object and returns its s3 URI.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.target.Bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", errors.Unavailable("store media "+key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.target.Bucket, key), nil
}

// Get streams an object. The caller closes the reader.
func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	// GetObject is lazy, Stat surfaces a missing key right away.
	object, err := s.client.GetObject(ctx, s.target.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, objectError(key, err)
	}
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, objectError(key, err)
	}
	return object, nil
}

func (s *MinioStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.target.Bucket, key, ttl, nil)
	if err != nil {
		return "", errors.Unavailable("presign media "+key, err)
	}
	return u.String(), nil
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.target.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return objectError(key, err)
	}
	return nil
}

func objectError(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
		return fmt.Errorf("%w: media %s", errors.ErrNotFound, key)
	}
	return errors.Unavailable("media "+key, err)
}
