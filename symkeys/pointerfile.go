// Package symkeys provides the external collaborators the core store
// package delegates to: key construction for particular binary formats,
// the pointer-file grammar used by the Microsoft redirect probe, and the
// .cab decompression adapter for the compressed-blob probe. None of these
// are redesigned here beyond the interfaces and defaults spec.md calls for;
// they exist so the module compiles and is testable standalone.
package symkeys

import (
	"errors"
	"strings"
)

// PointerFile is the parsed body of a "file.ptr" redirect probe response.
// Exactly one of Message or Path is set, per the sentinel that introduced
// the line.
type PointerFile struct {
	// Message holds the text after "MSG: " when the file is informational.
	Message string
	// Path holds the text after "PATH: " when the file redirects to a
	// local filesystem path.
	Path string
}

// ErrMalformedPointerFile is returned when body does not start with a
// recognized sentinel.
var ErrMalformedPointerFile = errors.New("symkeys: malformed pointer file")

// ParsePointerFile parses the single-line body of a file.ptr response.
// The leading sentinel alone decides the kind; an empty body or any other
// prefix fails to parse.
func ParsePointerFile(body []byte) (PointerFile, error) {
	line := strings.TrimRight(string(body), "\r\n")
	switch {
	case strings.HasPrefix(line, "MSG:"):
		return PointerFile{Message: strings.TrimSpace(strings.TrimPrefix(line, "MSG:"))}, nil
	case strings.HasPrefix(line, "PATH:"):
		return PointerFile{Path: strings.TrimSpace(strings.TrimPrefix(line, "PATH:"))}, nil
	default:
		return PointerFile{}, ErrMalformedPointerFile
	}
}
