package storage

import (
	"context"

	"github.com/minio/minio-go/v7"
)

// MinioStore keeps media in an object storage bucket so out-of-process
// workers can fetch uploads accepted by the API process.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{
		client: client,
		bucket: bucket,
	}
}

func (s *MinioStore) Put(ctx context.Context, objectPath, localPath string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, objectPath, localPath, minio.PutObjectOptions{})
	return err
}

func (s *MinioStore) Fetch(ctx context.Context, objectPath, localPath string) error {
	return s.client.FGetObject(ctx, s.bucket, objectPath, localPath, minio.GetObjectOptions{})
}

func (s *MinioStore) Remove(ctx context.Context, objectPath string) error {
	return s.client.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{})
}
