package upload

import (
	"strconv"
	"strings"
)

// Value is a node of a raw request payload: a Scalar, a Sequence or a
// Mapping.
type Value interface {
	truthy() bool
}

// Scalar is a leaf value as submitted by the client.
type Scalar string

// Sequence is an ordered list of values, e.g. the entries of `file[]`.
type Sequence []Value

// Mapping is a keyed node, e.g. the attributes of one file.
type Mapping map[string]Value

func (s Scalar) truthy() bool   { return s != "" && s != "0" }
func (s Sequence) truthy() bool { return len(s) > 0 }
func (m Mapping) truthy() bool  { return len(m) > 0 }

// Well-known top-level keys of a request payload.
const (
	KeyFiles = "files"
	KeyData  = "data"
)

// Attribute keys of one file entry.
const (
	AttrName    = "name"
	AttrType    = "type"
	AttrTmpName = "tmp_name"
	AttrError   = "error"
	AttrSize    = "size"
)

// Lookup walks path from v. Sequence elements are addressed by their decimal
// index. It returns false if any segment is missing.
func Lookup(v Value, path ...string) (Value, bool) {
	cur := v
	for _, seg := range path {
		switch node := cur.(type) {
		case Mapping:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case Sequence:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// LookupPath is Lookup with a dotted path such as "files.avatar.name".
func LookupPath(v Value, dotted string) (Value, bool) {
	if dotted == "" {
		return v, v != nil
	}
	return Lookup(v, strings.Split(dotted, ".")...)
}

// Set stores val at path inside m, creating intermediate mappings. An
// intermediate node that is not a Mapping is replaced.
func (m Mapping) Set(val Value, path ...string) {
	if len(path) == 0 {
		return
	}
	cur := m
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg].(Mapping)
		if !ok {
			next = Mapping{}
			cur[seg] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = val
}

// Append adds val to the Sequence at path inside m, creating it if needed.
func (m Mapping) Append(val Value, path ...string) {
	if len(path) == 0 {
		return
	}
	existing, _ := Lookup(m, path...)
	seq, _ := existing.(Sequence)
	m.Set(append(seq, val), path...)
}

// Request is a convenience constructor for a payload with files and data.
func Request(files, data Mapping) Mapping {
	req := Mapping{}
	if files != nil {
		req[KeyFiles] = files
	}
	if data != nil {
		req[KeyData] = data
	}
	return req
}

// FileEntry builds the attribute mapping of a single descriptor.
func FileEntry(d Descriptor) Mapping {
	return Mapping{
		AttrName:    Scalar(d.OriginalName),
		AttrType:    Scalar(d.MimeType),
		AttrTmpName: Scalar(d.TempPath),
		AttrError:   Scalar(strconv.Itoa(int(d.Code))),
		AttrSize:    Scalar(strconv.FormatInt(d.Size, 10)),
	}
}
