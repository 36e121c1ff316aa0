// Package converter encodes flat raster pages into the output formats and
// persists the result.
package converter

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/format"
	"github.com/local/imgconvert/internal/imagerender"
	"github.com/local/imgconvert/internal/result"
)

// Details describes a written output.
type Details struct {
	Source       string
	Destination  string
	BytesWritten int
}

// Sink persists encoded output.
type Sink interface {
	WriteBytes(ctx context.Context, path string, data []byte) result.Result[struct{}]
}

// Converter encodes one raster page into a single output format.
type Converter interface {
	Format() format.Format
	EncodeToBytes(data []byte) ([]byte, error)
	Convert(ctx context.Context, data []byte, source, dest string) result.Result[Details]
}

// Quality clamps q into [1, 100].
func Quality(q int) int {
	return min(100, max(1, q))
}

// write encodes data with enc and persists it through sink.
func write(ctx context.Context, sink Sink, enc func([]byte) ([]byte, error), data []byte, source, dest string) result.Result[Details] {
	out, err := enc(data)
	if err != nil {
		var de *converr.DecodeError
		if errors.As(err, &de) && de.Source == "" {
			de.Source = source
		}
		return result.Failure[Details](err)
	}
	return persist(ctx, sink, out, source, dest)
}

func persist(ctx context.Context, sink Sink, out []byte, source, dest string) result.Result[Details] {
	if sink == nil {
		return result.Failure[Details](&converr.IOError{Op: "write", Path: dest, Err: errors.New("no output sink configured")})
	}
	if res := sink.WriteBytes(ctx, dest, out); !res.IsSuccessful() {
		return result.Failure[Details](res.Err())
	}

	log.Debug().
		Str("source", source).
		Str("destination", dest).
		Int("bytes", len(out)).
		Msg("output written")

	return result.Success(Details{Source: source, Destination: dest, BytesWritten: len(out)})
}

// decode wraps imagerender.Decode failures as DecodeError.
func decode(data []byte) (image.Image, error) {
	img, err := imagerender.Decode(data)
	if err != nil {
		return nil, &converr.DecodeError{Err: err}
	}
	return img, nil
}

func encodeErr(f format.Format, err error) error {
	return fmt.Errorf("%s encode: %w", f, err)
}
