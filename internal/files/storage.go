// Package files stores task document blobs in S3-compatible object storage.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	// MaxFileSize caps a single uploaded document.
	MaxFileSize = 10 << 20
	// MaxBatchFiles caps how many documents one upload request may carry.
	MaxBatchFiles = 10
)

var (
	ErrNotFound = errors.New("object not found")
	ErrTooLarge = errors.New("file exceeds size limit")
)

// Category buckets a document by its MIME type for listing and preview.
type Category string

const (
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
	CategoryRaw   Category = "raw"
)

// CategoryForMime maps a content type onto a storage category. Anything that
// is not an image or video is raw, including unknown types.
func CategoryForMime(contentType string) Category {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return CategoryImage
	case strings.HasPrefix(contentType, "video/"):
		return CategoryVideo
	default:
		return CategoryRaw
	}
}

// ObjectStore is the blob interface the document handlers depend on.
type ObjectStore interface {
	Put(ctx context.Context, objectKey string, data io.Reader, size int64, contentType string) error
	Get(ctx context.Context, objectKey string) (io.ReadCloser, error)
	Remove(ctx context.Context, objectKey string) error
}

// MinioStore implements ObjectStore on a MinIO (or any S3-compatible) bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, objectKey string, data io.Reader, size int64, contentType string) error {
	if size > MaxFileSize {
		return ErrTooLarge
	}
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, data, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", objectKey, err)
	}
	// GetObject is lazy; Stat forces the first request so missing keys
	// surface here instead of on first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", objectKey, err)
	}
	return obj, nil
}

func (s *MinioStore) Remove(ctx context.Context, objectKey string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("remove object %s: %w", objectKey, err)
	}
	return nil
}
