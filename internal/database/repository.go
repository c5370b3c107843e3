package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"fileupload/internal/upload"
)

var (
	ErrUploadNotFound = errors.New("upload not found")
	ErrInvalidRecord  = errors.New("invalid upload record")
)

const selectColumns = `
	SELECT id, model, stored_name, mime_type, size_bytes, group_id, attributes, created_at
	FROM uploads`

// Repository persists upload records for one model. It implements
// upload.RecordStore.
type Repository struct {
	db     *DB
	model  string
	fields upload.Fields
}

// NewRepository creates a Repository for model. Empty fields fall back to
// upload.DefaultFields.
func NewRepository(db *DB, model string, fields upload.Fields) *Repository {
	if fields == (upload.Fields{}) {
		fields = upload.DefaultFields
	}
	return &Repository{db: db, model: model, fields: fields}
}

// Save validates rec and inserts it, returning the new id.
func (r *Repository) Save(ctx context.Context, rec upload.Record) (string, error) {
	u, err := fromRecord(r.model, r.fields, rec)
	if err != nil {
		return "", err
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()

	if err := r.Create(ctx, u); err != nil {
		return "", err
	}
	return u.ID, nil
}

// Find loads a record by id.
func (r *Repository) Find(ctx context.Context, id string) (upload.Record, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.toRecord(r.fields), nil
}

// FindGroup loads the records of one mass-saved batch.
func (r *Repository) FindGroup(ctx context.Context, groupID string) ([]upload.Record, error) {
	uploads, err := r.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	recs := make([]upload.Record, 0, len(uploads))
	for _, u := range uploads {
		recs = append(recs, u.toRecord(r.fields))
	}
	return recs, nil
}

// Create inserts a new upload row.
func (r *Repository) Create(ctx context.Context, u *Upload) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO uploads (
			id, model, stored_name, mime_type, size_bytes, group_id, attributes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		u.ID,
		u.Model,
		u.StoredName,
		u.MimeType,
		u.Size,
		u.GroupID,
		u.Attributes,
		u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

// GetByID retrieves an upload of this repository's model by its ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Upload, error) {
	row := r.db.Pool.QueryRow(ctx, selectColumns+` WHERE id = $1 AND model = $2`, id, r.model)
	u, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUploadNotFound
		}
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return u, nil
}

// ListByGroup returns the records of one mass-saved batch in insertion order.
func (r *Repository) ListByGroup(ctx context.Context, groupID string) ([]*Upload, error) {
	rows, err := r.db.Pool.Query(ctx,
		selectColumns+` WHERE group_id = $1 AND model = $2 ORDER BY created_at, id`,
		groupID, r.model,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query group uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// Delete removes an upload row by ID.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM uploads WHERE id = $1 AND model = $2", id, r.model)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUploadNotFound
	}
	return nil
}

// GetStats returns aggregate statistics for this model.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM uploads WHERE model = $1
	`, r.model).Scan(&stats.TotalUploads, &stats.StorageUsed)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func scanUpload(row pgx.Row) (*Upload, error) {
	u := &Upload{}
	if err := row.Scan(
		&u.ID,
		&u.Model,
		&u.StoredName,
		&u.MimeType,
		&u.Size,
		&u.GroupID,
		&u.Attributes,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	if u.Attributes == nil {
		u.Attributes = map[string]any{}
	}
	return u, nil
}
