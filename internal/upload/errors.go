package upload

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for configuration failures. They are always wrapped in a
// *ConfigurationError so callers can match either the class or the cause.
var (
	ErrUnknownOption    = errors.New("unknown option")
	ErrNoModel          = errors.New("no model configured")
	ErrUnknownModel     = errors.New("model is not registered")
	ErrMisconfigured    = errors.New("upload detected but could not be resolved")
	ErrMalformedPayload = errors.New("malformed upload payload")
	ErrInvalidOption    = errors.New("invalid option value")
	ErrNoMover          = errors.New("no storage mover configured")
)

// ErrNoFiles reports that no upload structure was present at all. It is
// distinct from an empty descriptor list, which means files were submitted
// but every entry was filtered out.
var ErrNoFiles = errors.New("no upload structure present")

// ErrStorage is wrapped by every *StorageError.
var ErrStorage = errors.New("unable to save temp file to storage")

// ConfigurationError is a hard failure caused by how the pipeline was set up
// or by a payload that does not match the configured field names.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("fileupload: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configError(op string, err error) error {
	return &ConfigurationError{Op: op, Err: err}
}

// StorageError is returned by ProcessFile when the mover rejected a file.
// Messages holds every reason the mover reported; Err is the mover's error.
type StorageError struct {
	File     string
	Messages []string
	Err      error
}

func (e *StorageError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("%v: %s", ErrStorage, e.File)
	}
	return fmt.Sprintf("%v: %s: %s", ErrStorage, e.File, strings.Join(e.Messages, "; "))
}

func (e *StorageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStorage}
	}
	return []error{ErrStorage, e.Err}
}

// RejectError is what a Mover returns when it refuses or fails to store a
// file. Each message is copied verbatim into the pipeline's error list.
type RejectError struct {
	Messages []string
}

func (e *RejectError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// Reject builds a *RejectError from one or more messages.
func Reject(messages ...string) error {
	return &RejectError{Messages: messages}
}

// rejectMessages extracts the individual reasons carried by err.
func rejectMessages(err error) []string {
	var rej *RejectError
	if errors.As(err, &rej) && len(rej.Messages) > 0 {
		return append([]string(nil), rej.Messages...)
	}
	return []string{err.Error()}
}

// Collector accumulates human-readable error strings. It is append-only.
type Collector struct {
	messages []string
}

// Add records one message.
func (c *Collector) Add(msg string) {
	c.messages = append(c.messages, msg)
}

// Len returns the number of recorded messages.
func (c *Collector) Len() int {
	return len(c.messages)
}

// Messages returns a copy of the recorded messages in insertion order.
func (c *Collector) Messages() []string {
	if len(c.messages) == 0 {
		return []string{}
	}
	return append([]string(nil), c.messages...)
}

// Join renders every message followed by sep, e.g. "a <br />b <br />".
func (c *Collector) Join(sep string) string {
	var b strings.Builder
	for _, msg := range c.messages {
		b.WriteString(msg)
		b.WriteString(" ")
		b.WriteString(sep)
	}
	return b.String()
}
