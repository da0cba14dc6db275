// goban/utils/storage.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// FileStore persists attachment and thumbnail files. Keys are board-scoped
// relative paths like "b/src/1700000000_ab12cd34.jpeg".
type FileStore interface {
	Save(key string, data []byte, contentType string) (string, error)
	Remove(path string) error
}

// LocalStore implements FileStore on the local filesystem. Root is normally
// the static page root so rendered pages can reference files directly.
type LocalStore struct {
	Root string
}

func (ls *LocalStore) Save(key string, data []byte, contentType string) (string, error) {
	fullPath := filepath.Join(ls.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", err
	}
	return "/" + key, nil
}

func (ls *LocalStore) Remove(path string) error {
	key := strings.TrimPrefix(path, "/")
	err := os.Remove(filepath.Join(ls.Root, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// S3Store implements FileStore for S3-compatible object storage.
type S3Store struct {
	Client     *minio.Client
	BucketName string
	PublicURL  string
}

func NewS3Store(endpoint, accessKey, secretKey, bucket, region, publicURL string, useSSL bool) (*S3Store, error) {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	var creds *credentials.Credentials
	if accessKey == "" || secretKey == "" {
		creds = credentials.NewIAM("")
	} else {
		creds = credentials.NewStaticV4(accessKey, secretKey, "")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	if publicURL == "" {
		protocol := "http"
		if useSSL {
			protocol = "https"
		}
		publicURL = fmt.Sprintf("%s://%s.%s", protocol, bucket, endpoint)
	}
	publicURL = strings.TrimSuffix(publicURL, "/")

	return &S3Store{
		Client:     client,
		BucketName: bucket,
		PublicURL:  publicURL,
	}, nil
}

func (s3 *S3Store) Save(key string, data []byte, contentType string) (string, error) {
	ctx := context.Background()
	reader := bytes.NewReader(data)
	_, err := s3.Client.PutObject(ctx, s3.BucketName, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", s3.PublicURL, key), nil
}

func (s3 *S3Store) Remove(path string) error {
	key := strings.TrimPrefix(path, s3.PublicURL+"/")
	key = strings.TrimPrefix(key, "/")
	ctx := context.Background()
	return s3.Client.RemoveObject(ctx, s3.BucketName, key, minio.RemoveObjectOptions{})
}
