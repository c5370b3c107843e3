package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyPrefix(t *testing.T) {
	tests := map[string]string{
		"":              "",
		".":             "",
		"files":         "files",
		"/files/":       "files",
		"./public/img":  "public/img",
		"a/../b":        "b",
		"//double//sep": "double/sep",
	}
	for dir, want := range tests {
		t.Run(dir, func(t *testing.T) {
			assert.Equal(t, want, keyPrefix(dir))
		})
	}
}

func TestObjectMover_Key(t *testing.T) {
	m := NewObjectMover(nil, "uploads", "public/files", Policy{})
	assert.Equal(t, "public/files/a_1234abcd.png", m.key("a_1234abcd.png"))

	root := NewObjectMover(nil, "uploads", "", Policy{})
	assert.Equal(t, "a.png", root.key("a.png"))
}
