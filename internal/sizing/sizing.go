// Package sizing finds the highest encoder quality whose output fits a byte budget.
package sizing

import (
	"fmt"
)

// Encoder encodes data at quality q.
type Encoder func(q int, data []byte) ([]byte, error)

// Options bounds the search.
type Options struct {
	QMin        int
	QMax        int
	MaxAttempts int
}

// DefaultOptions returns the search bounds used by the pipeline.
func DefaultOptions() Options {
	return Options{QMin: 10, QMax: 95, MaxAttempts: 10}
}

// Outcome is the chosen encoding.
type Outcome struct {
	Quality   int
	Data      []byte
	Size      int
	Attempted []int
	// Fallback is set when no quality fit and the result was encoded at QMin.
	Fallback bool
}

// FindBestQuality binary searches [QMin, QMax] for the largest quality whose
// output is at most targetBytes. If nothing fits, the QMin encoding is returned
// with Fallback set. An encoder error aborts the search.
func FindBestQuality(enc Encoder, data []byte, targetBytes int64, opts Options) (Outcome, error) {
	low, high := opts.QMin, opts.QMax
	var (
		best      *Outcome
		attempted []int
	)

	for attempt := 0; attempt < opts.MaxAttempts && low <= high; attempt++ {
		q := (low + high) / 2
		attempted = append(attempted, q)

		out, err := enc(q, data)
		if err != nil {
			return Outcome{Attempted: attempted}, fmt.Errorf("encode at quality %d: %w", q, err)
		}
		if int64(len(out)) <= targetBytes {
			best = &Outcome{Quality: q, Data: out, Size: len(out)}
			low = q + 1
		} else {
			high = q - 1
		}
	}

	if best != nil {
		best.Attempted = attempted
		return *best, nil
	}

	out, err := enc(opts.QMin, data)
	if err != nil {
		return Outcome{Attempted: attempted}, fmt.Errorf("encode fallback at quality %d: %w", opts.QMin, err)
	}
	return Outcome{
		Quality:   opts.QMin,
		Data:      out,
		Size:      len(out),
		Attempted: attempted,
		Fallback:  true,
	}, nil
}
