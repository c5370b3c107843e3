package config

import (
	"context"
	"fmt"
	"log/slog"

	"fileupload/internal/storage"
	"fileupload/internal/upload"
)

// Movers builds the mover factory for the configured storage backend.
func (c *Config) Movers(ctx context.Context) (upload.MoverFactory, error) {
	switch c.StorageBackend {
	case BackendFileSystem:
		slog.Info("file storage initialized", "dir", c.UploadOptions().Dir())
		return storage.FileSystemMovers(c.MaxFileSize), nil
	case BackendMinio:
		client, err := storage.NewMinioClient(ctx, c.Minio)
		if err != nil {
			return nil, err
		}
		slog.Info("object storage initialized", "endpoint", c.Minio.Endpoint, "bucket", c.Minio.Bucket)
		return storage.ObjectMovers(client, c.Minio.Bucket, c.MaxFileSize), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
}
