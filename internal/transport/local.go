package transport

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gabriel-vasile/mimetype"

	"fileupload/internal/upload"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// ParseArgs resolves command line arguments to regular files. Directories
// are walked and contribute every regular file below them, in lexical
// order.
func ParseArgs(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}

		if !info.IsDir() {
			if !info.Mode().IsRegular() {
				return nil, &ValidationError{Arg: raw, Cause: "not a regular file"}
			}
			add(p)
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "directory not readable"}
		}
		if len(found) == 0 {
			return nil, &ValidationError{Arg: raw, Cause: "directory contains no files"}
		}
		sort.Strings(found)
		for _, f := range found {
			add(f)
		}
	}

	return out, nil
}

// FromPaths copies each local file into the spool and builds a request
// payload listing them under field. The source files are left untouched.
// Files larger than maxSize (when positive) are listed with CodeIniSize.
func FromPaths(paths []string, field string, spool *Spool, maxSize int64) (upload.Mapping, error) {
	files := upload.Mapping{}
	for _, p := range paths {
		d, err := spoolLocal(p, spool, maxSize)
		if err != nil {
			return nil, err
		}
		files.Append(upload.FileEntry(d), field)
	}
	return upload.Request(files, upload.Mapping{}), nil
}

func spoolLocal(path string, spool *Spool, maxSize int64) (upload.Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return upload.Descriptor{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	d := upload.Descriptor{
		OriginalName: filepath.Base(path),
		MimeType:     "application/octet-stream",
		Size:         info.Size(),
	}
	if mt, err := mimetype.DetectFile(path); err == nil {
		d.MimeType = mt.String()
	}

	if maxSize > 0 && info.Size() > maxSize {
		d.Code = upload.CodeIniSize
		return d, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return upload.Descriptor{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer src.Close()

	tmp, err := spool.Write(src)
	if err != nil {
		d.Code = upload.CodeCantWrite
		return d, nil
	}
	d.TempPath = tmp
	return d, nil
}
