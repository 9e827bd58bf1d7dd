package storage

import (
	"context"
	"errors"

	"github.com/gravitational/trace"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioStore implements ObjectStore with the MinIO client.
type minioStore struct {
	client *minio.Client
	region string
}

// Ensure minioStore implements ObjectStore.
var _ ObjectStore = (*minioStore)(nil)

// MinioConfig holds the connection settings for one region.
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
}

// NewMinioStore creates an ObjectStore backed by minio-go.
func NewMinioStore(cfg MinioConfig) (ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, trace.Wrap(err, "creating minio client for %s", cfg.Endpoint)
	}

	return &minioStore{client: client, region: cfg.Region}, nil
}

// MinioFactory returns a StoreFactory building one client per region.
func MinioFactory(endpoint func(region string) string, accessKeyID, secretAccessKey string, useSSL bool) StoreFactory {
	return func(region string) (ObjectStore, error) {
		return NewMinioStore(MinioConfig{
			Endpoint:        endpoint(region),
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
			Region:          region,
			UseSSL:          useSSL,
		})
	}
}

// ListBuckets returns all bucket names visible to the credentials.
func (s *minioStore) ListBuckets(ctx context.Context) ([]string, error) {
	buckets, err := s.client.ListBuckets(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	names := make([]string, 0, len(buckets))
	for _, b := range buckets {
		names = append(names, b.Name)
	}

	return names, nil
}

// MakeBucket creates a bucket in the store's region.
func (s *minioStore) MakeBucket(ctx context.Context, name string) error {
	return trace.Wrap(s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: s.region}))
}

// RemoveBucket removes an empty bucket.
func (s *minioStore) RemoveBucket(ctx context.Context, name string) error {
	return trace.Wrap(s.client.RemoveBucket(ctx, name))
}

// PurgeBucket removes every object in the bucket.
func (s *minioStore) PurgeBucket(ctx context.Context, name string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := s.client.ListObjects(ctx, name, minio.ListObjectsOptions{Recursive: true})

	var errs []error

	for rerr := range s.client.RemoveObjects(ctx, name, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, trace.Wrap(rerr.Err, "removing object %s", rerr.ObjectName))
	}

	return trace.Wrap(errors.Join(errs...))
}
