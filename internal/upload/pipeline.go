package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// GroupField is the record attribute that ties together the records of one
// mass-saved batch.
const GroupField = "group_id"

// Record is the attribute set persisted for one stored file.
type Record map[string]any

// Mover moves a temp file into permanent storage and removes stored files.
// Move returns the stored name relative to the mover's directory, or an
// error; a *RejectError carries one message per reason.
type Mover interface {
	Move(ctx context.Context, d Descriptor) (string, error)
	Remove(ctx context.Context, name string) error
}

// MoverFactory builds the Mover for a resolved directory and type policy.
type MoverFactory func(dir string, allowedTypes []string) (Mover, error)

// RecordStore persists upload records. Find returns the attributes of a
// saved record keyed the way they were saved.
type RecordStore interface {
	Save(ctx context.Context, rec Record) (string, error)
	Find(ctx context.Context, id string) (Record, error)
}

// Deps are the collaborators a Pipeline needs. Models maps a ModelClass name
// to its store.
type Deps struct {
	Movers MoverFactory
	Models map[string]RecordStore
}

// Result is the outcome of a pipeline, read by the caller after processing.
type Result struct {
	Detected       bool     `json:"detected"`
	HasPendingFile bool     `json:"has_pending_file"`
	StoredFiles    []string `json:"stored_files"`
	PersistedIDs   []string `json:"persisted_ids"`
	Succeeded      bool     `json:"succeeded"`
	Errors         []string `json:"errors"`
}

// Pipeline detects, normalizes, stores and optionally persists the uploads of
// one request. It is not safe for concurrent use; build one per request.
type Pipeline struct {
	opts    Options
	req     Mapping
	norm    Normalizer
	mover   Mover
	store   RecordStore
	groupID string

	files    []Descriptor
	detected bool

	result Result
	errs   Collector
}

// New validates opts, resolves the record store named by opts.ModelClass and
// builds the mover for the resolved upload directory.
func New(opts Options, req Mapping, deps Deps) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Movers == nil {
		return nil, configError("new pipeline", ErrNoMover)
	}

	var store RecordStore
	if opts.ModelClass != "" {
		store = deps.Models[opts.ModelClass]
		if store == nil {
			return nil, configError("new pipeline", fmt.Errorf("%w: %q", ErrUnknownModel, opts.ModelClass))
		}
	}

	mover, err := deps.Movers(opts.Dir(), opts.AllowedTypes)
	if err != nil {
		return nil, configError("new pipeline", fmt.Errorf("build mover for %s: %w", opts.Dir(), err))
	}

	if req == nil {
		req = Mapping{}
	}

	p := &Pipeline{
		opts:  opts,
		req:   req,
		norm:  Normalizer{FileField: opts.FileFieldName, ModelField: opts.ModelFieldName},
		mover: mover,
		store: store,
	}
	if opts.MassSave && store != nil {
		p.groupID = uuid.NewString()
	}
	return p, nil
}

// DetectUpload looks for uploaded files and normalizes them. With Automatic
// set, the first detection that finds a pending file processes the batch.
func (p *Pipeline) DetectUpload(ctx context.Context) error {
	first := !p.detected
	p.detected = true

	p.result.Detected = p.norm.HasUpload(p.req)

	files, err := p.norm.Normalize(p.req[KeyFiles])
	switch {
	case errors.Is(err, ErrNoFiles):
		if p.result.Detected {
			return configError("detect upload", fmt.Errorf("%w: current config modelFieldName=%q fileFieldName=%q",
				ErrMisconfigured, p.opts.ModelFieldName, p.opts.FileFieldName))
		}
		files = nil
	case err != nil:
		return err
	}

	p.files = files
	p.result.HasPendingFile = p.result.Detected && len(files) > 0

	if first && p.result.HasPendingFile && p.opts.Automatic {
		return p.ProcessAllFiles(ctx, nil)
	}
	return nil
}

// ProcessAllFiles runs ProcessFile for every normalized descriptor in order.
// A storage failure on one file is recorded and the batch moves on; only a
// cancelled context stops it early.
func (p *Pipeline) ProcessAllFiles(ctx context.Context, extra Record) error {
	for _, d := range p.files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.ProcessFile(ctx, d, extra); err != nil {
			slog.Error("upload failed", "file", d.OriginalName, "error", err)
		}
	}
	return nil
}

// ProcessFile stores one file and, when a model is configured, saves its
// record. Succeeded reflects the most recent call only.
func (p *Pipeline) ProcessFile(ctx context.Context, d Descriptor, extra Record) error {
	p.result.Succeeded = false

	// A non-OK code is only a warning here; the mover has the final say.
	if d.Code != CodeOK {
		p.errs.Add(d.Code.Message())
		slog.Warn("upload transport error",
			"file", d.OriginalName,
			"code", int(d.Code),
			"message", d.Code.Message(),
		)
	}

	rec := p.saveData(extra)

	stored, err := p.mover.Move(ctx, d)
	if err != nil {
		msgs := rejectMessages(err)
		for _, msg := range msgs {
			p.errs.Add(msg)
		}
		return &StorageError{File: d.OriginalName, Messages: msgs, Err: err}
	}

	p.result.StoredFiles = append(p.result.StoredFiles, stored)

	if p.store == nil {
		p.result.Succeeded = true
		slog.Info("upload stored", "file", d.OriginalName, "stored_as", stored, "size", d.Size)
		return nil
	}

	f := p.opts.fields()
	rec[f.Name] = stored
	rec[f.Type] = d.MimeType
	rec[f.Size] = d.Size

	id, err := p.store.Save(ctx, rec)
	if err != nil {
		// Record validation is the caller's concern; no error string is added.
		slog.Warn("upload record not saved",
			"model", p.opts.ModelClass,
			"stored_as", stored,
			"error", err,
		)
		return nil
	}

	p.result.PersistedIDs = append(p.result.PersistedIDs, id)
	p.result.Succeeded = true
	slog.Info("upload stored",
		"file", d.OriginalName,
		"stored_as", stored,
		"size", d.Size,
		"model", p.opts.ModelClass,
		"id", id,
	)
	return nil
}

// saveData builds the record skeleton for one file: extra first, then caller
// data for keys not already present. The name/type/size attributes are left
// to ProcessFile; the group attribute is only ever the pipeline's own.
func (p *Pipeline) saveData(extra Record) Record {
	rec := Record{}
	if p.store == nil {
		return rec
	}

	f := p.opts.fields()
	reserved := map[string]bool{f.Name: true, f.Type: true, f.Size: true, GroupField: true}

	for k, v := range extra {
		if !reserved[k] {
			rec[k] = v
		}
	}
	for k, v := range p.callerData() {
		if _, taken := rec[k]; !taken && !reserved[k] {
			rec[k] = v
		}
	}
	if p.groupID != "" {
		rec[GroupField] = p.groupID
	}
	return rec
}

// callerData collects the scalar form values submitted alongside the files:
// top-level data fields, then fields in the model's bucket. Numeric keys are
// per-file slots and are skipped.
func (p *Pipeline) callerData() map[string]string {
	out := map[string]string{}
	data, _ := p.req[KeyData].(Mapping)
	if data == nil {
		return out
	}

	collect := func(m Mapping) {
		for k, v := range m {
			s, ok := v.(Scalar)
			if !ok {
				continue
			}
			if _, err := strconv.Atoi(k); err == nil {
				continue
			}
			out[k] = string(s)
		}
	}

	collect(data)
	if p.opts.ModelFieldName != "" {
		if bucket, ok := data[p.opts.ModelFieldName].(Mapping); ok {
			collect(bucket)
		}
	}
	return out
}

// RemoveFile deletes a stored file from the upload directory. Empty names,
// names carrying a URI scheme and names escaping the directory are refused.
func (p *Pipeline) RemoveFile(ctx context.Context, name string) bool {
	if !IsStorableName(name) {
		return false
	}
	if err := p.mover.Remove(ctx, name); err != nil {
		slog.Warn("failed to remove stored file", "name", name, "error", err)
		return false
	}
	slog.Info("stored file removed", "name", name)
	return true
}

// IsStorableName reports whether name can refer to a file inside the upload
// directory: non-empty, no URI scheme, no escape after cleaning.
func IsStorableName(name string) bool {
	return name != "" && !strings.Contains(name, "://") && filepath.IsLocal(name)
}

// RemoveFileByID loads a persisted record and removes the file it names.
func (p *Pipeline) RemoveFileByID(ctx context.Context, id string) (bool, error) {
	if p.store == nil {
		return false, configError("remove file by id", ErrNoModel)
	}
	if id == "" {
		return false, nil
	}

	rec, err := p.store.Find(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to load upload record %s: %w", id, err)
	}

	name, _ := rec[p.opts.fields().Name].(string)
	return p.RemoveFile(ctx, name), nil
}

// Files returns the normalized descriptors of the last detection.
func (p *Pipeline) Files() []Descriptor {
	return append([]Descriptor(nil), p.files...)
}

// Options returns the options the pipeline was built with.
func (p *Pipeline) Options() Options {
	return p.opts
}

// GroupID is the batch key shared by mass-saved records, or "".
func (p *Pipeline) GroupID() string {
	return p.groupID
}

// Result returns a snapshot of the pipeline's outcome.
func (p *Pipeline) Result() Result {
	r := p.result
	r.StoredFiles = cloneStrings(p.result.StoredFiles)
	r.PersistedIDs = cloneStrings(p.result.PersistedIDs)
	r.Errors = p.errs.Messages()
	return r
}

// Succeeded reports the outcome of the most recent ProcessFile call.
func (p *Pipeline) Succeeded() bool {
	return p.result.Succeeded
}

// ShowErrors renders the recorded errors, each followed by sep.
func (p *Pipeline) ShowErrors(sep string) string {
	return p.errs.Join(sep)
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return []string{}
	}
	return append([]string(nil), s...)
}
