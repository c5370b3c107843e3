package upload_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileupload/internal/storage"
	"fileupload/internal/upload"
)

const pngMagic = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89"

func spoolFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), storage.SpoolPrefix+"test")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestPipeline_StoresIntoFileSystem(t *testing.T) {
	ctx := context.Background()

	t.Run("single avatar", func(t *testing.T) {
		root := t.TempDir()
		opts := upload.DefaultOptions()
		opts.WebRoot = root
		opts.FileFieldName = "avatar"
		opts.AllowedTypes = []string{"image/png"}

		tmp := spoolFile(t, pngMagic)
		req := upload.Request(upload.Mapping{
			"avatar": upload.FileEntry(upload.Descriptor{
				OriginalName: "a.png",
				MimeType:     "image/png",
				TempPath:     tmp,
				Size:         int64(len(pngMagic)),
			}),
		}, nil)

		p, err := upload.New(opts, req, upload.Deps{Movers: storage.FileSystemMovers(0)})
		require.NoError(t, err)
		require.NoError(t, p.DetectUpload(ctx))

		res := p.Result()
		require.True(t, res.Succeeded, "errors: %v", res.Errors)
		require.Len(t, res.StoredFiles, 1)

		name := res.StoredFiles[0]
		assert.True(t, strings.HasPrefix(name, "a_"), name)
		assert.True(t, strings.HasSuffix(name, ".png"), name)

		content, err := os.ReadFile(filepath.Join(root, "files", name))
		require.NoError(t, err)
		assert.Equal(t, pngMagic, string(content))
		assert.NoFileExists(t, tmp)

		assert.True(t, p.RemoveFile(ctx, name))
		assert.NoFileExists(t, filepath.Join(root, "files", name))
		assert.False(t, p.RemoveFile(ctx, name), "second removal finds nothing")
	})

	t.Run("mixed batch", func(t *testing.T) {
		dir := t.TempDir()
		opts := upload.DefaultOptions()
		opts.UploadDirectory = dir
		opts.ForceWebroot = false
		opts.AllowedTypes = []string{"image/png"}

		good := upload.Descriptor{OriginalName: "ok.png", MimeType: "image/png", TempPath: spoolFile(t, pngMagic)}
		fake := upload.Descriptor{OriginalName: "fake.png", MimeType: "image/png", TempPath: spoolFile(t, "plain text")}
		partial := upload.Descriptor{OriginalName: "cut.png", MimeType: "image/png", Code: upload.CodePartial}

		req := upload.Request(upload.Mapping{"file": upload.Sequence{
			upload.FileEntry(good), upload.FileEntry(fake), upload.FileEntry(partial),
		}}, nil)

		p, err := upload.New(opts, req, upload.Deps{Movers: storage.FileSystemMovers(0)})
		require.NoError(t, err)
		require.NoError(t, p.DetectUpload(ctx))

		res := p.Result()
		assert.Len(t, res.StoredFiles, 1)
		assert.False(t, res.Succeeded)
		// fake: content mismatch; partial: transport warning, mover rejection for the code and missing temp file.
		assert.Len(t, res.Errors, 4)
		assert.Equal(t, upload.CodePartial.Message(), res.Errors[1])

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}
