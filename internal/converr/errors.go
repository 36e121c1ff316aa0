package converr

import "fmt"

// DecodeError represents malformed or undecodable input bytes.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Source == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnsupportedFormatError represents an output format, preset or scale mode
// that is not recognized. Kind names the vocabulary, e.g. "PDF preset".
type UnsupportedFormatError struct {
	Kind  string
	Value string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported %s: '%s'", e.Kind, e.Value)
}

// GeometryError represents impossible page geometry.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string { return e.Reason }

// IOError represents a storage read or write failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CapabilityUnavailableError represents an optional dependency that is not
// installed or could not be initialized.
type CapabilityUnavailableError struct {
	Capability string
	Err        error
}

func (e *CapabilityUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s is not available", e.Capability)
	}
	return fmt.Sprintf("%s is not available: %v", e.Capability, e.Err)
}

func (e *CapabilityUnavailableError) Unwrap() error { return e.Err }
