package upload

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Fields names the record attributes that receive the stored file's name,
// MIME type and size.
type Fields struct {
	Name string
	Type string
	Size string
}

// DefaultFields is used when Options.Fields is left empty.
var DefaultFields = Fields{Name: "name", Type: "type", Size: "size"}

// Options configures one Pipeline. It is read-only once the pipeline is built.
type Options struct {
	UploadDirectory string
	AllowedTypes    []string
	FileFieldName   string
	ModelFieldName  string
	ModelClass      string
	Fields          Fields
	MassSave        bool
	Automatic       bool
	ForceWebroot    bool

	// WebRoot is the fixed root UploadDirectory is joined to when
	// ForceWebroot is set. It is process configuration, not a named option.
	WebRoot string
}

// Recognized option names.
const (
	OptUploadDirectory = "uploadDirectory"
	OptAllowedTypes    = "allowedTypes"
	OptFileFieldName   = "fileFieldName"
	OptModelFieldName  = "modelFieldName"
	OptModelClass      = "modelClass"
	OptFields          = "fields"
	OptMassSave        = "massSave"
	OptAutomatic       = "automatic"
	OptForceWebroot    = "forceWebroot"
)

// DefaultOptions mirrors the stock settings: files land in "files" under
// the web root, the form field is "file", processing is automatic.
func DefaultOptions() Options {
	return Options{
		UploadDirectory: "files",
		FileFieldName:   "file",
		Fields:          DefaultFields,
		Automatic:       true,
		ForceWebroot:    true,
	}
}

// OptionNames returns every recognized option name, sorted.
func OptionNames() []string {
	names := []string{
		OptUploadDirectory, OptAllowedTypes, OptFileFieldName, OptModelFieldName,
		OptModelClass, OptFields, OptMassSave, OptAutomatic, OptForceWebroot,
	}
	sort.Strings(names)
	return names
}

// Get returns the value of a named option.
func (o Options) Get(name string) (any, error) {
	switch name {
	case OptUploadDirectory:
		return o.UploadDirectory, nil
	case OptAllowedTypes:
		return append([]string(nil), o.AllowedTypes...), nil
	case OptFileFieldName:
		return o.FileFieldName, nil
	case OptModelFieldName:
		return o.ModelFieldName, nil
	case OptModelClass:
		return o.ModelClass, nil
	case OptFields:
		return o.fields(), nil
	case OptMassSave:
		return o.MassSave, nil
	case OptAutomatic:
		return o.Automatic, nil
	case OptForceWebroot:
		return o.ForceWebroot, nil
	}
	return nil, configError("get option", fmt.Errorf("%w: %q", ErrUnknownOption, name))
}

// With returns a copy of o with one named option replaced. String values are
// coerced for boolean and list options so command-line input can be applied
// directly; allowedTypes is comma separated, fields is "name,type,size".
func (o Options) With(name string, value any) (Options, error) {
	fail := func(err error) (Options, error) {
		return o, configError("set option "+name, err)
	}

	switch name {
	case OptUploadDirectory, OptFileFieldName, OptModelFieldName, OptModelClass:
		s, ok := value.(string)
		if !ok {
			return fail(fmt.Errorf("%w: want string, got %T", ErrInvalidOption, value))
		}
		switch name {
		case OptUploadDirectory:
			o.UploadDirectory = s
		case OptFileFieldName:
			o.FileFieldName = s
		case OptModelFieldName:
			o.ModelFieldName = s
		case OptModelClass:
			o.ModelClass = s
		}
	case OptAllowedTypes:
		switch v := value.(type) {
		case []string:
			o.AllowedTypes = append([]string(nil), v...)
		case string:
			o.AllowedTypes = splitList(v)
		default:
			return fail(fmt.Errorf("%w: want list, got %T", ErrInvalidOption, value))
		}
	case OptFields:
		switch v := value.(type) {
		case Fields:
			o.Fields = v
		case string:
			parts := splitList(v)
			if len(parts) != 3 {
				return fail(fmt.Errorf("%w: fields needs name,type,size", ErrInvalidOption))
			}
			o.Fields = Fields{Name: parts[0], Type: parts[1], Size: parts[2]}
		default:
			return fail(fmt.Errorf("%w: want fields, got %T", ErrInvalidOption, value))
		}
	case OptMassSave, OptAutomatic, OptForceWebroot:
		b, err := toBool(value)
		if err != nil {
			return fail(err)
		}
		switch name {
		case OptMassSave:
			o.MassSave = b
		case OptAutomatic:
			o.Automatic = b
		case OptForceWebroot:
			o.ForceWebroot = b
		}
	default:
		return fail(fmt.Errorf("%w: %q", ErrUnknownOption, name))
	}
	return o, nil
}

// Apply sets several named options at once, failing on the first bad one.
func (o Options) Apply(values map[string]any) (Options, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var err error
	for _, name := range names {
		if o, err = o.With(name, values[name]); err != nil {
			return o, err
		}
	}
	return o, nil
}

// Validate checks option invariants.
func (o Options) Validate() error {
	if o.FileFieldName == "" {
		return configError("validate options", fmt.Errorf("%w: %s is required", ErrInvalidOption, OptFileFieldName))
	}
	if o.ModelClass != "" && o.ModelFieldName == "" {
		return configError("validate options", fmt.Errorf("%w: %s requires %s", ErrInvalidOption, OptModelClass, OptModelFieldName))
	}
	f := o.fields()
	if f.Name == "" || f.Type == "" || f.Size == "" {
		return configError("validate options", fmt.Errorf("%w: %s must name all three attributes", ErrInvalidOption, OptFields))
	}
	return nil
}

// Dir resolves the upload directory, joining it to WebRoot when
// ForceWebroot is set.
func (o Options) Dir() string {
	if o.ForceWebroot {
		return filepath.Join(o.WebRoot, o.UploadDirectory)
	}
	return o.UploadDirectory
}

func (o Options) fields() Fields {
	if o.Fields == (Fields{}) {
		return DefaultFields
	}
	return o.Fields
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidOption, v)
		}
		return b, nil
	}
	return false, fmt.Errorf("%w: want bool, got %T", ErrInvalidOption, value)
}
