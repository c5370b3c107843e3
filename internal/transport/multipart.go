// Package transport turns inbound submissions into the raw payload tree the
// upload pipeline consumes, spooling file bodies to temp files on the way.
package transport

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"sort"
	"strconv"
	"strings"

	"fileupload/internal/storage"
	"fileupload/internal/upload"
)

// Spool tracks the temp files created for one request.
type Spool struct {
	dir   string
	paths []string
}

// NewSpool creates a spool writing into dir; dir must exist.
func NewSpool(dir string) *Spool {
	return &Spool{dir: dir}
}

// Paths returns the temp files created so far.
func (s *Spool) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Cleanup removes spooled files that were not moved into storage and
// returns how many it removed.
func (s *Spool) Cleanup() int {
	removed := 0
	for _, p := range s.paths {
		if err := os.Remove(p); err == nil {
			removed++
		} else if !os.IsNotExist(err) {
			slog.Warn("failed to remove spooled file", "path", p, "error", err)
		}
	}
	s.paths = nil
	return removed
}

// Write copies r into a new temp file and returns its path.
func (s *Spool) Write(r io.Reader) (string, error) {
	f, err := os.CreateTemp(s.dir, storage.SpoolPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create spool file: %w", err)
	}
	s.paths = append(s.paths, f.Name())

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to flush spool file: %w", err)
	}
	return f.Name(), nil
}

// FromMultipart builds a request payload from a parsed multipart form.
//
// File field names decide the shape of the files tree:
//
//	file          files.file = entry (repeated parts become a list)
//	file[]        files.file = [entry, ...]
//	Model[file]   files.Model.{name,type,tmp_name,error,size}.file
//	Model[file][] files.Model.{name,...}.file = [v, ...] (as do repeated parts)
//
// Value fields land under data using the same bracket rules. Files larger
// than maxSize (when positive) are not spooled and report CodeIniSize.
func FromMultipart(form *multipart.Form, spool *Spool, maxSize int64) upload.Mapping {
	files := upload.Mapping{}
	data := upload.Mapping{}
	if form == nil {
		return upload.Request(files, data)
	}

	for _, field := range sortedKeys(form.File) {
		segs := ParseFieldName(field)
		headers := form.File[field]
		for i, fh := range headers {
			d := spoolPart(fh, spool, maxSize)
			placeFile(files, segs, d, len(headers) > 1, i)
		}
	}

	for _, field := range sortedKeys(form.Value) {
		segs := ParseFieldName(field)
		for _, v := range form.Value[field] {
			placeValue(data, segs, upload.Scalar(v))
		}
	}

	return upload.Request(files, data)
}

func spoolPart(fh *multipart.FileHeader, spool *Spool, maxSize int64) upload.Descriptor {
	d := upload.Descriptor{
		OriginalName: fh.Filename,
		MimeType:     fh.Header.Get("Content-Type"),
		Size:         fh.Size,
	}

	switch {
	case fh.Filename == "" && fh.Size == 0:
		d.Code = upload.CodeNoFile
		return d
	case maxSize > 0 && fh.Size > maxSize:
		d.Code = upload.CodeIniSize
		return d
	}

	src, err := fh.Open()
	if err != nil {
		slog.Warn("failed to open multipart file", "file", fh.Filename, "error", err)
		d.Code = upload.CodePartial
		return d
	}
	defer src.Close()

	if _, err := os.Stat(spool.dir); err != nil {
		d.Code = upload.CodeNoTmpDir
		return d
	}

	path, err := spool.Write(src)
	if err != nil {
		slog.Warn("failed to spool multipart file", "file", fh.Filename, "error", err)
		d.Code = upload.CodeCantWrite
		return d
	}
	d.TempPath = path
	d.Code = upload.CodeOK
	return d
}

// placeFile writes d into the files tree at the position implied by segs.
// index is the position of d among parts sharing the same field name.
func placeFile(files upload.Mapping, segs []string, d upload.Descriptor, repeated bool, index int) {
	switch {
	case len(segs) == 1 && !repeated:
		files.Set(upload.FileEntry(d), segs[0])
	case len(segs) == 1 || (len(segs) == 2 && segs[1] == ""):
		files.Append(upload.FileEntry(d), segs[0])
	default:
		// Columnar: the attribute is inserted right after the root segment.
		rest := append([]string(nil), segs[1:]...)
		list := repeated
		if rest[len(rest)-1] == "" {
			rest = rest[:len(rest)-1]
			list = true
		}
		for i, seg := range rest {
			if seg == "" {
				rest[i] = strconv.Itoa(index)
			}
		}
		for attr, val := range upload.FileEntry(d) {
			path := append([]string{segs[0], attr}, rest...)
			if list {
				files.Append(val, path...)
			} else {
				files.Set(val, path...)
			}
		}
	}
}

func placeValue(data upload.Mapping, segs []string, v upload.Value) {
	if segs[len(segs)-1] == "" {
		data.Append(v, segs[:len(segs)-1]...)
		return
	}
	data.Set(v, segs...)
}

// ParseFieldName splits a bracketed form field name: "a[b][]" yields
// ["a", "b", ""]. Names without brackets yield a single segment.
func ParseFieldName(name string) []string {
	open := strings.IndexByte(name, '[')
	if open <= 0 || !strings.HasSuffix(name, "]") {
		return []string{name}
	}

	segs := []string{name[:open]}
	rest := name[open:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			return []string{name}
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return []string{name}
		}
		segs = append(segs, rest[1:end])
		rest = rest[end+1:]
	}
	return segs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
