package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"fileupload/internal/upload"
)

// Policy decides whether a temp file may be stored.
//
// AllowedTypes entries are MIME types ("image/png"), MIME wildcards
// ("image/*") or extensions ("png", ".png"). An empty list allows anything.
// When at least one MIME entry is configured the file contents are sniffed
// as well, so a renamed executable does not pass as an image.
type Policy struct {
	AllowedTypes []string
	MaxSize      int64
}

// Check returns every reason d is refused, or nil.
func (p Policy) Check(d upload.Descriptor) []string {
	var reasons []string

	if d.Code != upload.CodeOK {
		reasons = append(reasons, fmt.Sprintf("%s was not uploaded successfully.", quoteName(d)))
	}

	if d.TempPath == "" {
		return append(reasons, fmt.Sprintf("No temporary file was received for %s.", quoteName(d)))
	}
	info, err := os.Stat(d.TempPath)
	if err != nil || !info.Mode().IsRegular() {
		return append(reasons, fmt.Sprintf("The temporary file for %s is missing.", quoteName(d)))
	}

	if p.MaxSize > 0 && info.Size() > p.MaxSize {
		reasons = append(reasons, fmt.Sprintf("%s exceeds the maximum allowed size of %d bytes.", quoteName(d), p.MaxSize))
	}

	if len(p.AllowedTypes) == 0 {
		return reasons
	}

	if !p.allowsDeclared(d) {
		return append(reasons, fmt.Sprintf("%s is not an allowed file type (%s).", quoteName(d), d.MimeType))
	}

	if p.hasMIMEEntries() {
		mtype, err := mimetype.DetectFile(d.TempPath)
		if err != nil {
			return append(reasons, fmt.Sprintf("Unable to read %s to detect its type.", quoteName(d)))
		}
		if !p.allowsMIME(mtype) {
			reasons = append(reasons, fmt.Sprintf("The contents of %s do not match an allowed type (detected %s).", quoteName(d), mtype.String()))
		}
	}

	return reasons
}

func (p Policy) allowsDeclared(d upload.Descriptor) bool {
	declared := strings.ToLower(strings.TrimSpace(strings.Split(d.MimeType, ";")[0]))
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(d.OriginalName)), ".")

	for _, entry := range p.AllowedTypes {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case strings.HasSuffix(entry, "/*"):
			if strings.HasPrefix(declared, strings.TrimSuffix(entry, "*")) {
				return true
			}
		case strings.Contains(entry, "/"):
			if declared == entry {
				return true
			}
		default:
			if ext != "" && strings.TrimPrefix(entry, ".") == ext {
				return true
			}
		}
	}
	return false
}

func (p Policy) hasMIMEEntries() bool {
	for _, entry := range p.AllowedTypes {
		if strings.Contains(entry, "/") {
			return true
		}
	}
	return false
}

func (p Policy) allowsMIME(mtype *mimetype.MIME) bool {
	for _, entry := range p.AllowedTypes {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if !strings.Contains(entry, "/") {
			continue
		}
		if strings.HasSuffix(entry, "/*") {
			if strings.HasPrefix(mtype.String(), strings.TrimSuffix(entry, "*")) {
				return true
			}
			continue
		}
		for m := mtype; m != nil; m = m.Parent() {
			if m.Is(entry) {
				return true
			}
		}
	}
	return false
}

func quoteName(d upload.Descriptor) string {
	if d.OriginalName == "" {
		return "the uploaded file"
	}
	return fmt.Sprintf("%q", d.OriginalName)
}

// storedName derives a collision-resistant name from the client's filename:
// "My Photo.PNG" becomes "My_Photo_1a2b3c4d.png".
func storedName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	stem := sanitize(strings.TrimSuffix(base, filepath.Ext(base)), 40)
	if stem == "" || stem == "_" {
		stem = "file"
	}
	if ext = sanitize(strings.TrimPrefix(ext, "."), 10); ext != "" {
		ext = "." + ext
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return stem + "_" + suffix + ext
}

func sanitize(s string, limit int) string {
	s = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}
