package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileupload/internal/database"
	"fileupload/internal/storage"
	"fileupload/internal/upload"
)

// memRepo keeps records in memory, keyed the way they were saved.
type memRepo struct {
	mu      sync.Mutex
	records map[string]upload.Record
	next    int
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[string]upload.Record{}}
}

func (r *memRepo) Save(_ context.Context, rec upload.Record) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := "id-" + strconv.Itoa(r.next)
	r.records[id] = copyRecord(rec)
	return id, nil
}

func (r *memRepo) Find(_ context.Context, id string) (upload.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, database.ErrUploadNotFound
	}
	return copyRecord(rec), nil
}

func (r *memRepo) FindGroup(_ context.Context, groupID string) ([]upload.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var recs []upload.Record
	for i := 1; i <= r.next; i++ {
		rec, ok := r.records["id-"+strconv.Itoa(i)]
		if ok && rec[upload.GroupField] == groupID {
			recs = append(recs, copyRecord(rec))
		}
	}
	return recs, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return database.ErrUploadNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *memRepo) GetStats(context.Context) (*database.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &database.Stats{TotalUploads: int64(len(r.records))}, nil
}

func copyRecord(rec upload.Record) upload.Record {
	out := make(upload.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// --- Helpers ---

func testOptions(dir string) upload.Options {
	opts := upload.DefaultOptions()
	opts.UploadDirectory = dir
	opts.ForceWebroot = false
	return opts
}

func persistingOptions(dir string) upload.Options {
	opts := testOptions(dir)
	opts.ModelClass = "Photo"
	opts.ModelFieldName = "Photo"
	return opts
}

func spooled(t *testing.T, name, content string) upload.Descriptor {
	t.Helper()
	path := filepath.Join(t.TempDir(), storage.SpoolPrefix+name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return upload.Descriptor{
		OriginalName: name,
		MimeType:     "text/plain",
		TempPath:     path,
		Size:         int64(len(content)),
	}
}

func fileRequest(data upload.Mapping, ds ...upload.Descriptor) upload.Mapping {
	entries := make(upload.Sequence, 0, len(ds))
	for _, d := range ds {
		entries = append(entries, upload.FileEntry(d))
	}
	return upload.Request(upload.Mapping{"file": entries}, data)
}

// --- Token generation ---

func TestGenerateSecureToken(t *testing.T) {
	t.Run("generates correct length", func(t *testing.T) {
		for _, length := range []int{8, 16, 24, 32} {
			token, err := generateSecureToken(length)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(token) != length {
				t.Errorf("expected length %d, got %d", length, len(token))
			}
		}
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			token, err := generateSecureToken(16)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seen[token] {
				t.Fatalf("duplicate token generated: %s", token)
			}
			seen[token] = true
		}
	})

	t.Run("only contains URL-safe characters", func(t *testing.T) {
		token, err := generateSecureToken(100)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
		for _, c := range token {
			if !strings.ContainsRune(charset, c) {
				t.Errorf("token contains invalid character: %c", c)
			}
		}
	})
}

// --- Processing ---

func TestUploadService_ProcessWithoutPersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("no upload", func(t *testing.T) {
		svc := NewUploadService(testOptions(t.TempDir()), storage.FileSystemMovers(0), nil, t.TempDir(), 0)

		_, err := svc.Process(ctx, upload.Request(nil, upload.Mapping{"title": upload.Scalar("x")}))
		assert.ErrorIs(t, err, ErrNoUpload)
	})

	t.Run("malformed payload", func(t *testing.T) {
		svc := NewUploadService(testOptions(t.TempDir()), storage.FileSystemMovers(0), nil, t.TempDir(), 0)

		req := upload.Request(upload.Mapping{"file": upload.Mapping{
			upload.AttrName:    upload.Scalar("a.txt"),
			upload.AttrTmpName: upload.Scalar("/tmp/x"),
			upload.AttrError:   upload.Scalar("nope"),
		}}, nil)
		_, err := svc.Process(ctx, req)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("stray tmp_name in form data", func(t *testing.T) {
		opts := testOptions(t.TempDir())
		opts.ModelFieldName = "Photo"
		svc := NewUploadService(opts, storage.FileSystemMovers(0), nil, t.TempDir(), 0)

		req := upload.Request(upload.Mapping{}, upload.Mapping{upload.AttrTmpName: upload.Scalar("/tmp/x")})
		_, err := svc.Process(ctx, req)
		assert.ErrorIs(t, err, ErrUnresolved)
		assert.ErrorContains(t, err, "expected field Photo[file]")
	})

	t.Run("stores files without a token", func(t *testing.T) {
		dir := t.TempDir()
		svc := NewUploadService(persistingOptions(dir), storage.FileSystemMovers(0), nil, t.TempDir(), 0)
		assert.False(t, svc.Persisting(), "nil repository disables records")

		res, err := svc.Process(ctx, fileRequest(nil, spooled(t, "a.txt", "a"), spooled(t, "b.txt", "b")))
		require.NoError(t, err)
		assert.Len(t, res.StoredFiles, 2)
		assert.Empty(t, res.PersistedIDs)
		assert.Empty(t, res.DeletionToken)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 2)

		_, err = svc.GetStats(ctx)
		assert.ErrorIs(t, err, ErrNoPersistence)
		_, err = svc.GetInfo(ctx, "id-1")
		assert.ErrorIs(t, err, ErrNoPersistence)
		_, err = svc.GetGroup(ctx, "g-1")
		assert.ErrorIs(t, err, ErrNoPersistence)
	})
}

func TestUploadService_Persisting(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := newMemRepo()
	opts := persistingOptions(dir)
	opts.MassSave = true
	svc := NewUploadService(opts, storage.FileSystemMovers(0), repo, t.TempDir(), 0)
	require.True(t, svc.Persisting())

	data := upload.Mapping{
		"Photo":          upload.Mapping{"caption": upload.Scalar("beach")},
		TokenHashField:   upload.Scalar("forged"),
		"unrelated_note": upload.Scalar("kept"),
	}
	res, err := svc.Process(ctx, fileRequest(data, spooled(t, "a.txt", "aaa"), spooled(t, "b.txt", "bb")))
	require.NoError(t, err)
	require.Len(t, res.PersistedIDs, 2)
	assert.True(t, strings.HasPrefix(res.DeletionToken, "del_"), res.DeletionToken)
	assert.NotEmpty(t, res.GroupID)

	t.Run("records share the group and the token hash", func(t *testing.T) {
		first := repo.records[res.PersistedIDs[0]]
		second := repo.records[res.PersistedIDs[1]]
		assert.Equal(t, res.GroupID, first[upload.GroupField])
		assert.Equal(t, res.GroupID, second[upload.GroupField])
		assert.Equal(t, first[TokenHashField], second[TokenHashField])
		assert.NotEqual(t, "forged", first[TokenHashField])
		assert.Equal(t, "beach", first["caption"])
		assert.Equal(t, "kept", first["unrelated_note"])
	})

	t.Run("info strips the token hash", func(t *testing.T) {
		rec, err := svc.GetInfo(ctx, res.PersistedIDs[0])
		require.NoError(t, err)
		assert.NotContains(t, rec, TokenHashField)
		assert.Equal(t, res.StoredFiles[0], rec["name"])

		_, err = svc.GetInfo(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("group lists the batch", func(t *testing.T) {
		recs, err := svc.GetGroup(ctx, res.GroupID)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		for _, rec := range recs {
			assert.NotContains(t, rec, TokenHashField)
		}

		_, err = svc.GetGroup(ctx, "unknown")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := svc.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalUploads)
	})

	t.Run("wrong token is refused", func(t *testing.T) {
		err := svc.DeleteUpload(ctx, res.PersistedIDs[0], "del_wrong")
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.FileExists(t, filepath.Join(dir, res.StoredFiles[0]))
	})

	t.Run("right token deletes file and record", func(t *testing.T) {
		require.NoError(t, svc.DeleteUpload(ctx, res.PersistedIDs[0], res.DeletionToken))
		assert.NoFileExists(t, filepath.Join(dir, res.StoredFiles[0]))
		assert.NotContains(t, repo.records, res.PersistedIDs[0])

		err := svc.DeleteUpload(ctx, res.PersistedIDs[0], res.DeletionToken)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("record without a hash cannot be deleted", func(t *testing.T) {
		id, err := repo.Save(ctx, upload.Record{"name": "legacy.txt"})
		require.NoError(t, err)
		assert.ErrorIs(t, svc.DeleteUpload(ctx, id, ""), ErrInvalidToken)
	})
}

func TestUploadService_RemoveFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	svc := NewUploadService(testOptions(dir), storage.FileSystemMovers(0), nil, t.TempDir(), 0)

	res, err := svc.Process(ctx, fileRequest(nil, spooled(t, "a.txt", "a")))
	require.NoError(t, err)
	require.Len(t, res.StoredFiles, 1)

	for _, name := range []string{"", "../etc/passwd", "/abs/path", "s3://bucket/x"} {
		assert.ErrorIs(t, svc.RemoveFile(ctx, name), ErrInvalidName, name)
	}

	require.NoError(t, svc.RemoveFile(ctx, res.StoredFiles[0]))
	assert.NoFileExists(t, filepath.Join(dir, res.StoredFiles[0]))

	err = svc.RemoveFile(ctx, res.StoredFiles[0])
	assert.True(t, errors.Is(err, ErrRemoveFailed), "got %v", err)
}
