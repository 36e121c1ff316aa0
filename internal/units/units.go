// Package units converts human size strings into byte budgets.
package units

import (
	"fmt"
	"math"
	"strings"

	goUnits "github.com/docker/go-units"
)

// System selects the multiplier base for KB/MB/GB.
type System string

const (
	IEC System = "IEC" // 1024
	SI  System = "SI"  // 1000
)

// SizeUnit is a byte multiple accepted by ToBytes.
type SizeUnit string

const (
	KB SizeUnit = "KB"
	MB SizeUnit = "MB"
	GB SizeUnit = "GB"
)

const (
	DefaultTolerance = 0.02
	DefaultMargin    = 0.98
)

// TargetSize is a byte budget for size-targeted encoding.
type TargetSize struct {
	Bytes     int64
	Tolerance float64
	Margin    float64
}

// NewTargetSize returns a budget with the default tolerance and margin.
func NewTargetSize(bytes int64) (TargetSize, error) {
	if bytes <= 0 {
		return TargetSize{}, fmt.Errorf("target size must be positive, got %d", bytes)
	}
	return TargetSize{Bytes: bytes, Tolerance: DefaultTolerance, Margin: DefaultMargin}, nil
}

// SoftLimit is the search ceiling, leaving headroom below Bytes.
func (t TargetSize) SoftLimit() int64 {
	return int64(float64(t.Bytes) * t.Margin)
}

// WithinTolerance reports whether actual is acceptable for the budget.
func (t TargetSize) WithinTolerance(actual int64) bool {
	return actual <= int64(float64(t.Bytes)*(1+t.Tolerance))
}

func (t TargetSize) String() string {
	return goUnits.BytesSize(float64(t.Bytes))
}

// ToBytes converts value expressed in unit to bytes, rounded to the nearest byte.
func ToBytes(value float64, unit SizeUnit, system System) (int64, error) {
	factor, err := multiplier(unit, system)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(value * factor)), nil
}

func multiplier(unit SizeUnit, system System) (float64, error) {
	iec := true
	switch System(strings.ToUpper(string(system))) {
	case IEC, "":
	case SI:
		iec = false
	default:
		return 0, fmt.Errorf("unknown unit system %q", system)
	}

	switch SizeUnit(strings.ToUpper(string(unit))) {
	case KB:
		if iec {
			return goUnits.KiB, nil
		}
		return goUnits.KB, nil
	case MB:
		if iec {
			return goUnits.MiB, nil
		}
		return goUnits.MB, nil
	case GB:
		if iec {
			return goUnits.GiB, nil
		}
		return goUnits.GB, nil
	}
	return 0, fmt.Errorf("unknown size unit %q", unit)
}

// ParseSize parses strings such as "50KB", "1.5m" or "2048". IEC treats KB as
// 1024 bytes, SI as 1000.
func ParseSize(s string, system System) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	var (
		n   int64
		err error
	)
	if system == SI {
		n, err = goUnits.FromHumanSize(s)
	} else {
		n, err = goUnits.RAMInBytes(s)
	}
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return n, nil
}
