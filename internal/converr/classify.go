package converr

import (
	"errors"
	"os"
)

// Kind labels used in metrics and JSON output.
const (
	KindDecode                = "decode"
	KindUnsupportedFormat     = "unsupported_format"
	KindGeometry              = "geometry"
	KindIO                    = "io"
	KindCapabilityUnavailable = "capability_unavailable"
	KindUnknown               = "unknown"
)

// Classify maps err to one of the Kind labels. nil maps to "".
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return KindDecode
	}

	var formatErr *UnsupportedFormatError
	if errors.As(err, &formatErr) {
		return KindUnsupportedFormat
	}

	var geomErr *GeometryError
	if errors.As(err, &geomErr) {
		return KindGeometry
	}

	// Checked before IOError: a capability wraps the exec or lookup failure.
	var capErr *CapabilityUnavailableError
	if errors.As(err, &capErr) {
		return KindCapabilityUnavailable
	}

	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return KindIO
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return KindIO
	}

	return KindUnknown
}
