package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"fileupload/internal/upload"
)

const reserveAttempts = 5

// FileSystemMover moves uploaded temp files into a directory on the local
// filesystem.
type FileSystemMover struct {
	dir    string
	policy Policy
}

// NewFileSystemMover creates a mover rooted at dir.
func NewFileSystemMover(dir string, policy Policy) *FileSystemMover {
	return &FileSystemMover{dir: dir, policy: policy}
}

// FileSystemMovers returns an upload.MoverFactory producing FileSystemMovers
// that share maxSize.
func FileSystemMovers(maxSize int64) upload.MoverFactory {
	return func(dir string, allowedTypes []string) (upload.Mover, error) {
		m := NewFileSystemMover(dir, Policy{AllowedTypes: allowedTypes, MaxSize: maxSize})
		if err := m.EnsureDir(); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Dir returns the directory files are moved into.
func (fs *FileSystemMover) Dir() string {
	return fs.dir
}

// EnsureDir creates the upload directory if it doesn't exist.
func (fs *FileSystemMover) EnsureDir() error {
	if err := os.MkdirAll(fs.dir, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory %s: %w", fs.dir, err)
	}
	return nil
}

// Move checks d against the policy and moves its temp file under a fresh
// name. The returned name is relative to Dir.
func (fs *FileSystemMover) Move(ctx context.Context, d upload.Descriptor) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if reasons := fs.policy.Check(d); len(reasons) > 0 {
		return "", upload.Reject(reasons...)
	}
	if err := fs.EnsureDir(); err != nil {
		slog.Error("upload directory unavailable", "dir", fs.dir, "error", err)
		return "", upload.Reject(fmt.Sprintf("The upload directory %s is not writable.", fs.dir))
	}

	name, target, err := fs.reserve(d.OriginalName)
	if err != nil {
		slog.Error("failed to reserve stored name", "dir", fs.dir, "error", err)
		return "", upload.Reject(fmt.Sprintf("Unable to create a file for %s in the upload directory.", quoteName(d)))
	}

	if err := moveFile(d.TempPath, target); err != nil {
		// Clean up the reserved placeholder
		os.Remove(target)
		slog.Error("failed to move temp file", "tmp", d.TempPath, "target", target, "error", err)
		return "", upload.Reject(fmt.Sprintf("Unable to move %s into the upload directory.", quoteName(d)))
	}

	return name, nil
}

// Remove deletes a stored file. A missing file is an error.
func (fs *FileSystemMover) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath := fs.filePath(name)
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

// Path returns the absolute location of a stored file.
// Returns an error if the file does not exist.
func (fs *FileSystemMover) Path(name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("invalid stored name %q", name)
	}
	filePath := fs.filePath(name)

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", name)
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	return filePath, nil
}

// reserve creates an empty placeholder under a new stored name so concurrent
// requests never pick the same target.
func (fs *FileSystemMover) reserve(original string) (string, string, error) {
	var lastErr error
	for i := 0; i < reserveAttempts; i++ {
		name := storedName(original)
		target := fs.filePath(name)
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			f.Close()
			return name, target, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", "", err
		}
		lastErr = err
	}
	return "", "", fmt.Errorf("no free name after %d attempts: %w", reserveAttempts, lastErr)
}

func (fs *FileSystemMover) filePath(name string) string {
	return filepath.Join(fs.dir, name)
}

// moveFile renames src onto dst, copying when they live on different
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open target: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy temp file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush target: %w", err)
	}

	if err := os.Remove(src); err != nil {
		slog.Warn("failed to remove temp file after copy", "tmp", src, "error", err)
	}
	return nil
}
