package upload

import (
	"fmt"
	"strconv"
)

// DefaultMaxDepth bounds the recursive search over a request payload.
const DefaultMaxDepth = 32

var columnarAttrs = []string{AttrName, AttrType, AttrTmpName, AttrError, AttrSize}

// Normalizer detects uploads in a raw payload and flattens the accepted
// shapes into an ordered list of descriptors.
//
// Accepted shapes, relative to the files tree:
//
//	<model>.{name,type,tmp_name,error,size}.<field>   columnar, model scoped
//	<model>.{name,...}.<field> = [v, v, ...]          columnar, several files
//	<model>.<field> or <field> = entry                flat, model scoped
//	<field> = entry                                   single, no model
//	<field> = [entry, entry, ...]                     multiple, no model
type Normalizer struct {
	FileField  string
	ModelField string
	MaxDepth   int
}

// HasUpload reports whether any tmp_name key at any depth of v carries a
// truthy value.
func (n Normalizer) HasUpload(v Value) bool {
	limit := n.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	return containsKey(v, AttrTmpName, 0, limit)
}

func containsKey(v Value, key string, depth, limit int) bool {
	if depth > limit {
		return false
	}
	switch node := v.(type) {
	case Mapping:
		for k, child := range node {
			if k == key && child != nil && child.truthy() {
				return true
			}
			if containsKey(child, key, depth+1, limit) {
				return true
			}
		}
	case Sequence:
		for _, child := range node {
			if containsKey(child, key, depth+1, limit) {
				return true
			}
		}
	}
	return false
}

// Normalize flattens files into descriptors. It returns ErrNoFiles when none
// of the accepted shapes is present. Entries reporting CodeNoFile are
// dropped, so a present but fully empty submission yields an empty slice.
func (n Normalizer) Normalize(files Value) ([]Descriptor, error) {
	entries, err := n.entries(files)
	if err != nil {
		return nil, err
	}

	out := make([]Descriptor, 0, len(entries))
	for i, entry := range entries {
		d, ok, err := n.descriptor(entry)
		if err != nil {
			return nil, configError(fmt.Sprintf("normalize entry %d", i), err)
		}
		if !ok || d.Code == CodeNoFile {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (n Normalizer) entries(files Value) ([]Value, error) {
	if files == nil || n.FileField == "" {
		return nil, ErrNoFiles
	}

	if n.ModelField != "" {
		if names, ok := Lookup(files, n.ModelField, AttrName, n.FileField); ok {
			return n.columnar(files, names), nil
		}
		if v, ok := Lookup(files, n.ModelField, n.FileField); ok {
			return []Value{v}, nil
		}
		if v, ok := Lookup(files, n.FileField); ok {
			return []Value{v}, nil
		}
		return nil, ErrNoFiles
	}

	v, ok := Lookup(files, n.FileField)
	if !ok {
		return nil, ErrNoFiles
	}
	if seq, ok := v.(Sequence); ok {
		return seq, nil
	}
	return []Value{v}, nil
}

// columnar reassembles entries from the parallel attribute arrays. When the
// names are a list, each position is one file.
func (n Normalizer) columnar(files, names Value) []Value {
	seq, ok := names.(Sequence)
	if !ok {
		return []Value{n.columnarEntry(files)}
	}
	out := make([]Value, 0, len(seq))
	for i := range seq {
		out = append(out, n.columnarEntry(files, strconv.Itoa(i)))
	}
	return out
}

func (n Normalizer) columnarEntry(files Value, index ...string) Mapping {
	entry := Mapping{}
	for _, attr := range columnarAttrs {
		path := append([]string{n.ModelField, attr, n.FileField}, index...)
		if v, ok := Lookup(files, path...); ok {
			entry[attr] = v
		}
	}
	return entry
}

// descriptor converts one raw entry. ok is false for entries that carry no
// file at all (an empty scalar or an empty mapping).
func (n Normalizer) descriptor(v Value) (Descriptor, bool, error) {
	switch entry := v.(type) {
	case Scalar:
		if entry == "" {
			return Descriptor{}, false, nil
		}
		return Descriptor{}, false, filenameOnly()
	case Mapping:
		if len(entry) == 0 {
			return Descriptor{}, false, nil
		}
		if _, ok := entry[AttrError]; !ok {
			if name, _ := entry[AttrName].(Scalar); name != "" {
				return Descriptor{}, false, filenameOnly()
			}
			return Descriptor{}, false, fmt.Errorf("%w: entry has no %q attribute", ErrMalformedPayload, AttrError)
		}
		return parseEntry(entry)
	default:
		return Descriptor{}, false, fmt.Errorf("%w: unexpected %T entry", ErrMalformedPayload, v)
	}
}

func filenameOnly() error {
	return fmt.Errorf("%w: only a filename was detected, not the actual file; make sure the form uses enctype=\"multipart/form-data\"", ErrMalformedPayload)
}

func parseEntry(entry Mapping) (Descriptor, bool, error) {
	var d Descriptor
	var err error

	if d.OriginalName, err = scalarAttr(entry, AttrName); err != nil {
		return d, false, err
	}
	if d.MimeType, err = scalarAttr(entry, AttrType); err != nil {
		return d, false, err
	}
	if d.TempPath, err = scalarAttr(entry, AttrTmpName); err != nil {
		return d, false, err
	}

	code, err := scalarAttr(entry, AttrError)
	if err != nil {
		return d, false, err
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return d, false, fmt.Errorf("%w: %s %q is not a number", ErrMalformedPayload, AttrError, code)
	}
	d.Code = TransportCode(n)

	size, err := scalarAttr(entry, AttrSize)
	if err != nil {
		return d, false, err
	}
	if size != "" {
		if d.Size, err = strconv.ParseInt(size, 10, 64); err != nil || d.Size < 0 {
			return d, false, fmt.Errorf("%w: %s %q is not a valid byte count", ErrMalformedPayload, AttrSize, size)
		}
	}

	return d, true, nil
}

func scalarAttr(entry Mapping, key string) (string, error) {
	v, ok := entry[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(Scalar)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a scalar, got %T", ErrMalformedPayload, key, v)
	}
	return string(s), nil
}
