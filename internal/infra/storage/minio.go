package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Store struct {
	client     *minio.Client
	bucketName string
	region     string
	presignTTL time.Duration
}

// New buat koneksi MinIO. presignTTL > 0 makes Put return presigned GET URLs
// instead of plain object URLs.
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool, presignTTL time.Duration) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region, presignTTL: presignTTL}, nil
}

// Put uploads an export artifact and returns the URL to fetch it.
func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucketName, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}

	if s.presignTTL > 0 {
		params := url.Values{}
		params.Set("response-content-disposition", `attachment; filename="image_notes_ai.pdf"`)
		u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, s.presignTTL, params)
		if err != nil {
			return "", err
		}
		return u.String(), nil
	}

	// URL publik (jika bucket public)
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL().String(), s.bucketName, key), nil
}

// Check pings the bucket for health reporting.
func (s *Store) Check(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s not found", s.bucketName)
	}
	return nil
}
