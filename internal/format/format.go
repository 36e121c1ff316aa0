// Package format names the output formats and their file extensions.
package format

import (
	"strings"

	"github.com/local/imgconvert/internal/converr"
)

// Format is an output format tag.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	ICO  Format = "ico"
	AVIF Format = "avif"
	PDF  Format = "pdf"
)

var extensions = map[Format]string{
	JPEG: ".jpg",
	PNG:  ".png",
	ICO:  ".ico",
	AVIF: ".avif",
	PDF:  ".pdf",
}

// All returns the supported formats in a stable order.
func All() []Format {
	return []Format{JPEG, PNG, ICO, AVIF, PDF}
}

// Parse maps a user supplied name to a Format. "jpg" is accepted for JPEG.
func Parse(s string) (Format, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "jpg" {
		v = string(JPEG)
	}
	f := Format(v)
	if !f.Valid() {
		return "", &converr.UnsupportedFormatError{Kind: "image format", Value: s}
	}
	return f, nil
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	_, ok := extensions[f]
	return ok
}

// Extension returns the output file extension including the dot.
func (f Format) Extension() string { return extensions[f] }

// IsLossy reports whether the encoder takes a variable quality level.
func (f Format) IsLossy() bool { return f == JPEG || f == AVIF }

func (f Format) String() string { return string(f) }
