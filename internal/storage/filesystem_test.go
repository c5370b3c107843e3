package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fileupload/internal/upload"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload-tmp")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

func TestFileSystemMover_Move(t *testing.T) {
	t.Run("moves file to disk", func(t *testing.T) {
		dir := t.TempDir()
		mover := NewFileSystemMover(dir, Policy{})
		tmp := writeTemp(t, "test content")

		name, err := mover.Move(context.Background(), upload.Descriptor{
			OriginalName: "notes.txt",
			MimeType:     "text/plain",
			TempPath:     tmp,
			Size:         12,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.HasPrefix(name, "notes_") || !strings.HasSuffix(name, ".txt") {
			t.Errorf("expected notes_<suffix>.txt, got %q", name)
		}

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("failed to read stored file: %v", err)
		}
		if string(content) != "test content" {
			t.Errorf("expected 'test content', got %q", content)
		}

		if _, err := os.Stat(tmp); !os.IsNotExist(err) {
			t.Error("expected temp file to be gone after move")
		}
	})

	t.Run("same original name gets distinct stored names", func(t *testing.T) {
		dir := t.TempDir()
		mover := NewFileSystemMover(dir, Policy{})

		seen := map[string]bool{}
		for i := 0; i < 5; i++ {
			name, err := mover.Move(context.Background(), upload.Descriptor{
				OriginalName: "a.png",
				TempPath:     writeTemp(t, "x"),
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seen[name] {
				t.Fatalf("duplicate stored name %s", name)
			}
			seen[name] = true
		}
	})

	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "files")
		mover := NewFileSystemMover(dir, Policy{})

		if _, err := mover.Move(context.Background(), upload.Descriptor{
			OriginalName: "a.txt",
			TempPath:     writeTemp(t, "x"),
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("expected directory to exist: %v", err)
		}
	})

	t.Run("policy rejection leaves temp file in place", func(t *testing.T) {
		dir := t.TempDir()
		mover := NewFileSystemMover(dir, Policy{MaxSize: 3})
		tmp := writeTemp(t, "too long")

		_, err := mover.Move(context.Background(), upload.Descriptor{OriginalName: "big.txt", TempPath: tmp})
		if err == nil {
			t.Fatal("expected rejection")
		}
		if _, ok := err.(*upload.RejectError); !ok {
			t.Fatalf("expected *upload.RejectError, got %T", err)
		}
		if _, err := os.Stat(tmp); err != nil {
			t.Error("expected temp file to remain after rejection")
		}

		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("expected empty upload directory, got %d entries", len(entries))
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		mover := NewFileSystemMover(t.TempDir(), Policy{})
		if _, err := mover.Move(ctx, upload.Descriptor{OriginalName: "a", TempPath: writeTemp(t, "x")}); err == nil {
			t.Fatal("expected error for cancelled context")
		}
	})
}

func TestFileSystemMover_Path(t *testing.T) {
	t.Run("returns path for existing file", func(t *testing.T) {
		dir := t.TempDir()
		mover := NewFileSystemMover(dir, Policy{})

		filePath := filepath.Join(dir, "test123.png")
		os.WriteFile(filePath, []byte("data"), 0644)

		got, err := mover.Path("test123.png")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != filePath {
			t.Errorf("expected %s, got %s", filePath, got)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		mover := NewFileSystemMover(t.TempDir(), Policy{})

		if _, err := mover.Path("nonexistent"); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("rejects names outside the directory", func(t *testing.T) {
		mover := NewFileSystemMover(t.TempDir(), Policy{})

		if _, err := mover.Path("../etc/passwd"); err == nil {
			t.Fatal("expected error for escaping name")
		}
	})
}

func TestFileSystemMover_Remove(t *testing.T) {
	t.Run("deletes existing file", func(t *testing.T) {
		dir := t.TempDir()
		mover := NewFileSystemMover(dir, Policy{})

		filePath := filepath.Join(dir, "del123.txt")
		os.WriteFile(filePath, []byte("data"), 0644)

		if err := mover.Remove(context.Background(), "del123.txt"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := os.Stat(filePath); !os.IsNotExist(err) {
			t.Error("expected file to be deleted")
		}
	})

	t.Run("missing file is an error", func(t *testing.T) {
		mover := NewFileSystemMover(t.TempDir(), Policy{})

		if err := mover.Remove(context.Background(), "nonexistent"); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

func TestFileSystemMover_EnsureDir(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "storage")
		mover := NewFileSystemMover(dir, Policy{})

		if err := mover.EnsureDir(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected a directory")
		}
	})

	t.Run("succeeds if directory already exists", func(t *testing.T) {
		mover := NewFileSystemMover(t.TempDir(), Policy{})

		if err := mover.EnsureDir(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestFileSystemMovers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "files")

	m, err := FileSystemMovers(0)(dir, []string{"png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fsm, ok := m.(*FileSystemMover)
	if !ok {
		t.Fatalf("expected *FileSystemMover, got %T", m)
	}
	if fsm.Dir() != dir {
		t.Errorf("expected dir %s, got %s", dir, fsm.Dir())
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected factory to create %s: %v", dir, err)
	}
}
