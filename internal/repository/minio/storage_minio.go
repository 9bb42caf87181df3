package minio

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
)

func NewClient(endpoint, key, secret string, useSSL bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(key, secret, ""),
		Secure: useSSL,
	})
}

// Storage keeps staged spreadsheets in a MinIO bucket until the wizard has
// handed them to the ETL backend.
type Storage struct {
	client *minio.Client
}

var _ ports.ObjectStorage = (*Storage)(nil)

func NewStorage(client *minio.Client) *Storage {
	return &Storage{client: client}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Storage) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

func (s *Storage) Upload(ctx context.Context, bucket, objectName, contentType string, reader io.Reader, size int64) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := s.client.PutObject(ctx, bucket, objectName, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", info.Bucket, info.Key), nil
}

// Open streams a staged object. A missing object is reported as
// ports.ErrObjectNotFound.
func (s *Storage) Open(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	obj, err := s.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapNotFound(err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, mapNotFound(err)
	}
	return obj, nil
}

func (s *Storage) Remove(ctx context.Context, bucket, objectName string) error {
	if _, err := s.client.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{}); err != nil {
		return mapNotFound(err)
	}
	return s.client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{})
}

func mapNotFound(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %v", ports.ErrObjectNotFound, err)
	default:
		return err
	}
}
