package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"fileupload/internal/upload"
)

// MinioConfig holds the connection settings for an S3-compatible store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectMover stores uploads as objects in a MinIO bucket. The upload
// directory becomes the object key prefix.
type ObjectMover struct {
	client *minio.Client
	bucket string
	prefix string
	policy Policy
}

// NewMinioClient connects to the configured endpoint and makes sure the
// bucket exists.
func NewMinioClient(ctx context.Context, cfg MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("error checking if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("error creating bucket: %w", err)
		}
		slog.Info("created bucket", "bucket", cfg.Bucket)
	}

	return client, nil
}

// NewObjectMover creates a mover writing under prefix in bucket.
func NewObjectMover(client *minio.Client, bucket, prefix string, policy Policy) *ObjectMover {
	return &ObjectMover{
		client: client,
		bucket: bucket,
		prefix: keyPrefix(prefix),
		policy: policy,
	}
}

// ObjectMovers returns an upload.MoverFactory sharing one client.
func ObjectMovers(client *minio.Client, bucket string, maxSize int64) upload.MoverFactory {
	return func(dir string, allowedTypes []string) (upload.Mover, error) {
		return NewObjectMover(client, bucket, dir, Policy{AllowedTypes: allowedTypes, MaxSize: maxSize}), nil
	}
}

// Move uploads the temp file as a new object and removes the temp file.
func (m *ObjectMover) Move(ctx context.Context, d upload.Descriptor) (string, error) {
	if reasons := m.policy.Check(d); len(reasons) > 0 {
		return "", upload.Reject(reasons...)
	}

	name := storedName(d.OriginalName)
	contentType := d.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := m.client.FPutObject(ctx, m.bucket, m.key(name), d.TempPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		slog.Error("failed to upload object", "bucket", m.bucket, "key", m.key(name), "error", err)
		return "", upload.Reject(fmt.Sprintf("Unable to store %s in the object store.", quoteName(d)))
	}

	if err := os.Remove(d.TempPath); err != nil {
		slog.Warn("failed to remove temp file after upload", "tmp", d.TempPath, "error", err)
	}

	slog.Info("saved object", "bucket", m.bucket, "key", info.Key, "size", info.Size)
	return name, nil
}

// Remove deletes a stored object. A missing object is an error.
func (m *ObjectMover) Remove(ctx context.Context, name string) error {
	key := m.key(name)
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		return fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (m *ObjectMover) key(name string) string {
	name = filepath.ToSlash(name)
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// keyPrefix turns an upload directory into an object key prefix.
func keyPrefix(dir string) string {
	p := path.Clean(filepath.ToSlash(dir))
	p = strings.TrimLeft(p, "/")
	if p == "." {
		return ""
	}
	return p
}
