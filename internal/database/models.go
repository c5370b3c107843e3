package database

import (
	"fmt"
	"strconv"
	"time"

	"fileupload/internal/upload"
)

// Upload is one persisted upload record.
type Upload struct {
	ID         string
	Model      string
	StoredName string
	MimeType   string
	Size       int64
	GroupID    *string // nil unless the batch was mass-saved
	Attributes map[string]any
	CreatedAt  time.Time
}

// Stats holds aggregate statistics for one model.
type Stats struct {
	TotalUploads int64
	StorageUsed  int64
}

// fromRecord maps a pipeline record onto the table columns. The configured
// name/type/size attributes and the group id get their own columns,
// everything else goes to the attributes document.
func fromRecord(model string, fields upload.Fields, rec upload.Record) (*Upload, error) {
	u := &Upload{Model: model, Attributes: map[string]any{}}

	for k, v := range rec {
		switch k {
		case fields.Name:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidRecord, k)
			}
			u.StoredName = s
		case fields.Type:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidRecord, k)
			}
			u.MimeType = s
		case fields.Size:
			n, err := toInt64(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, k, err)
			}
			u.Size = n
		case upload.GroupField:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidRecord, k)
			}
			if s != "" {
				u.GroupID = &s
			}
		default:
			u.Attributes[k] = v
		}
	}

	if u.StoredName == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidRecord, fields.Name)
	}
	if u.Size < 0 {
		return nil, fmt.Errorf("%w: %s must not be negative", ErrInvalidRecord, fields.Size)
	}
	return u, nil
}

// toRecord is the inverse of fromRecord; it also exposes id and created_at.
func (u *Upload) toRecord(fields upload.Fields) upload.Record {
	rec := upload.Record{}
	for k, v := range u.Attributes {
		rec[k] = v
	}
	rec["id"] = u.ID
	rec["created_at"] = u.CreatedAt
	rec[fields.Name] = u.StoredName
	rec[fields.Type] = u.MimeType
	rec[fields.Size] = u.Size
	if u.GroupID != nil {
		rec[upload.GroupField] = *u.GroupID
	}
	return rec
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("unsupported size type %T", v)
}
