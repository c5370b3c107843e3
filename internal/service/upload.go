package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"mime/multipart"

	"golang.org/x/crypto/bcrypt"

	"fileupload/internal/database"
	"fileupload/internal/transport"
	"fileupload/internal/upload"
)

// TokenHashField is the record attribute holding the bcrypt hash of a
// batch's deletion token. It is never returned to clients.
const TokenHashField = "deletion_token_hash"

// Sentinel errors for the service layer.
var (
	ErrNoUpload       = errors.New("request carries no uploaded file")
	ErrNotFound       = errors.New("upload not found")
	ErrInvalidToken   = errors.New("invalid deletion token")
	ErrNoPersistence  = errors.New("persistence is not configured")
	ErrInvalidName    = errors.New("invalid stored file name")
	ErrRemoveFailed   = errors.New("stored file could not be removed")
	ErrMalformedInput = errors.New("malformed upload payload")
	ErrUnresolved     = errors.New("uploaded files do not match the expected field names")
)

// RecordRepository is the persistence the service needs beyond the
// pipeline's RecordStore.
type RecordRepository interface {
	upload.RecordStore
	FindGroup(ctx context.Context, groupID string) ([]upload.Record, error)
	Delete(ctx context.Context, id string) error
	GetStats(ctx context.Context) (*database.Stats, error)
}

// UploadResult is returned after an upload request was processed.
type UploadResult struct {
	upload.Result
	GroupID       string `json:"group_id,omitempty"`
	DeletionToken string `json:"deletion_token,omitempty"`
}

// UploadService runs the upload pipeline for inbound requests.
type UploadService struct {
	opts     upload.Options
	deps     upload.Deps
	repo     RecordRepository
	spoolDir string
	maxSize  int64
}

// NewUploadService creates a new upload service. repo may be nil, in which
// case files are stored without records no matter what opts.ModelClass
// says.
func NewUploadService(opts upload.Options, movers upload.MoverFactory, repo RecordRepository, spoolDir string, maxSize int64) *UploadService {
	deps := upload.Deps{Movers: movers}
	if repo != nil && opts.ModelClass != "" {
		deps.Models = map[string]upload.RecordStore{opts.ModelClass: repo}
	} else {
		opts.ModelClass = ""
	}

	return &UploadService{
		opts:     opts,
		deps:     deps,
		repo:     repo,
		spoolDir: spoolDir,
		maxSize:  maxSize,
	}
}

// Persisting reports whether uploads get records and deletion tokens.
func (s *UploadService) Persisting() bool {
	return s.opts.ModelClass != ""
}

// ProcessUpload spools the files of a multipart form and runs them through
// the pipeline. Spooled files that were not stored are removed before it
// returns.
func (s *UploadService) ProcessUpload(ctx context.Context, form *multipart.Form) (*UploadResult, error) {
	spool := transport.NewSpool(s.spoolDir)
	defer func() {
		if n := spool.Cleanup(); n > 0 {
			slog.Info("removed unstored spool files", "count", n)
		}
	}()

	req := transport.FromMultipart(form, spool, s.maxSize)
	return s.Process(ctx, req)
}

// Process runs the pipeline over an already built request payload. When
// persisting, one deletion token is issued per request and its hash is
// saved with every record of the batch.
func (s *UploadService) Process(ctx context.Context, req upload.Mapping) (*UploadResult, error) {
	// The service always drives processing itself so every file gets the
	// same extra attributes.
	opts := s.opts
	opts.Automatic = false

	p, err := upload.New(opts, req, s.deps)
	if err != nil {
		return nil, err
	}

	if err := p.DetectUpload(ctx); err != nil {
		switch {
		case errors.Is(err, upload.ErrMalformedPayload):
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		case errors.Is(err, upload.ErrMisconfigured):
			// A stray tmp_name anywhere in the request is enough to get here.
			slog.Warn("upload could not be resolved", "error", err)
			return nil, fmt.Errorf("%w: expected field %s", ErrUnresolved, s.expectedField())
		}
		return nil, err
	}
	if !p.Result().Detected {
		return nil, ErrNoUpload
	}

	var token string
	var extra upload.Record
	if s.Persisting() {
		token, err = generateSecureToken(24)
		if err != nil {
			return nil, fmt.Errorf("failed to generate deletion token: %w", err)
		}
		token = "del_" + token

		hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash deletion token: %w", err)
		}
		extra = upload.Record{TokenHashField: string(hash)}
	}

	if p.Result().HasPendingFile {
		if err := p.ProcessAllFiles(ctx, extra); err != nil {
			return nil, err
		}
	}

	res := &UploadResult{Result: p.Result(), GroupID: p.GroupID()}
	if len(res.PersistedIDs) > 0 {
		res.DeletionToken = token
	}

	slog.Info("upload request processed",
		"files", len(p.Files()),
		"stored", len(res.StoredFiles),
		"persisted", len(res.PersistedIDs),
		"errors", len(res.Errors),
	)
	return res, nil
}

func (s *UploadService) expectedField() string {
	if s.opts.ModelFieldName != "" {
		return s.opts.ModelFieldName + "[" + s.opts.FileFieldName + "]"
	}
	return s.opts.FileFieldName
}

// GetInfo returns the persisted record of an upload without its token hash.
func (s *UploadService) GetInfo(ctx context.Context, id string) (upload.Record, error) {
	rec, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	delete(rec, TokenHashField)
	return rec, nil
}

// GetGroup returns the records of one mass-saved batch, without token
// hashes.
func (s *UploadService) GetGroup(ctx context.Context, groupID string) ([]upload.Record, error) {
	if !s.Persisting() {
		return nil, ErrNoPersistence
	}
	recs, err := s.repo.FindGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	for _, rec := range recs {
		delete(rec, TokenHashField)
	}
	return recs, nil
}

// DeleteUpload validates the deletion token and removes both the stored file
// and its record.
func (s *UploadService) DeleteUpload(ctx context.Context, id, token string) error {
	rec, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	hash, _ := rec[TokenHashField].(string)
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
		return ErrInvalidToken
	}

	p, err := upload.New(s.opts, nil, s.deps)
	if err != nil {
		return err
	}

	removed, err := p.RemoveFileByID(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		// Continue with record deletion even if the file is already gone.
		slog.Error("failed to delete file from storage", "id", id)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, database.ErrUploadNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete upload record: %w", err)
	}

	slog.Info("upload deleted", "id", id, "file_removed", removed)
	return nil
}

// RemoveFile deletes a stored file by name, without touching records.
func (s *UploadService) RemoveFile(ctx context.Context, name string) error {
	p, err := upload.New(s.opts, nil, s.deps)
	if err != nil {
		return err
	}
	if !upload.IsStorableName(name) {
		return ErrInvalidName
	}
	if !p.RemoveFile(ctx, name) {
		return ErrRemoveFailed
	}
	return nil
}

// GetStats returns aggregate statistics for the configured model.
func (s *UploadService) GetStats(ctx context.Context) (*database.Stats, error) {
	if !s.Persisting() {
		return nil, ErrNoPersistence
	}
	return s.repo.GetStats(ctx)
}

func (s *UploadService) find(ctx context.Context, id string) (upload.Record, error) {
	if !s.Persisting() {
		return nil, ErrNoPersistence
	}
	rec, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrUploadNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// --- Helpers ---

// generateSecureToken produces a cryptographically secure, URL-safe random string.
func generateSecureToken(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("crypto/rand failure: %w", err)
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
