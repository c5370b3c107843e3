package upload

import "fmt"

// TransportCode is the status reported by the multipart parser for one file.
type TransportCode int

const (
	CodeOK TransportCode = iota
	CodeIniSize
	CodeFormSize
	CodePartial
	CodeNoFile
	CodeNoTmpDir
	CodeCantWrite
	CodeExtension
)

var transportMessages = [...]string{
	CodeOK:        "Ok",
	CodeIniSize:   "The uploaded file exceeds the maximum size allowed by the server.",
	CodeFormSize:  "The uploaded file exceeds the MAX_FILE_SIZE directive that was specified in the HTML form.",
	CodePartial:   "The uploaded file was only partially uploaded.",
	CodeNoFile:    "No file was uploaded.",
	CodeNoTmpDir:  "Missing a temporary folder.",
	CodeCantWrite: "Failed to write file to disk.",
	CodeExtension: "A server extension stopped the file upload.",
}

// Valid reports whether c is one of the known codes.
func (c TransportCode) Valid() bool {
	return c >= CodeOK && int(c) < len(transportMessages)
}

// Message returns the fixed human-readable text for c.
func (c TransportCode) Message() string {
	if !c.Valid() {
		return fmt.Sprintf("Unknown upload error (code %d).", int(c))
	}
	return transportMessages[c]
}

func (c TransportCode) String() string {
	return c.Message()
}

// Descriptor is the transport metadata of one uploaded file before storage.
type Descriptor struct {
	OriginalName string
	MimeType     string
	TempPath     string
	Code         TransportCode
	Size         int64
}
