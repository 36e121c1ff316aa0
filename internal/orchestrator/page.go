package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/converter"
	"github.com/local/imgconvert/internal/imagerender"
	"github.com/local/imgconvert/internal/metrics"
	"github.com/local/imgconvert/internal/payload"
	"github.com/local/imgconvert/internal/sizing"
	"github.com/local/imgconvert/internal/storage"
)

// RembgOrder selects whether background removal runs on the full-resolution
// page or on the resized one.
type RembgOrder string

const (
	BeforeResize RembgOrder = "before_resize"
	AfterResize  RembgOrder = "after_resize"
)

// ParseRembgOrder accepts "before_resize" and "after_resize". Empty selects
// before_resize.
func ParseRembgOrder(s string) (RembgOrder, error) {
	switch RembgOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", BeforeResize:
		return BeforeResize, nil
	case AfterResize:
		return AfterResize, nil
	}
	return "", &converr.UnsupportedFormatError{Kind: "rembg order", Value: s}
}

// backgroundRemover is implemented by converters that strip the background
// before encoding with an inner converter.
type backgroundRemover interface {
	RemoveBackground(ctx context.Context, data []byte) ([]byte, error)
	Inner() converter.Converter
}

func (o *Orchestrator) convertPage(ctx context.Context, st *run, item storage.FileItem, page payload.PagePayload) PageResult {
	ext := st.format.Extension()
	destName := BuildDestName(item.Stem, ext, page.PageIndex)
	res := PageResult{
		File:        destName,
		Source:      item.Path,
		Destination: o.deps.Storage.BuildDestPath(st.req.Destination, destName),
	}

	fail := func(err error) PageResult {
		log.Error().Err(err).Str("page", page.Label).Msg("error converting page")
		kind := converr.Classify(err)
		res.Error = err.Error()
		res.ErrorKind = kind
		res.OriginalWidth, res.ResizedWidth = 0, 0
		metrics.ObservePage(st.format.String(), false, 0)
		metrics.IncFailure(kind)
		return res
	}

	width, _, err := imagerender.OrientedDimensions(page.Data)
	if err != nil {
		return fail(&converr.DecodeError{Source: page.Label, Err: err})
	}
	res.OriginalWidth = width
	res.ResizedWidth = width

	data := page.Data
	conv := st.converter
	remover, removing := conv.(backgroundRemover)
	if removing {
		conv = remover.Inner()
	}

	if removing && o.deps.RembgOrder == BeforeResize {
		if data, err = remover.RemoveBackground(ctx, data); err != nil {
			return fail(err)
		}
	}

	if st.req.Width > 0 {
		if data, _, err = imagerender.ResizeBytes(data, st.req.Width); err != nil {
			return fail(&converr.DecodeError{Source: page.Label, Err: err})
		}
		res.ResizedWidth = st.req.Width
	}

	if removing && o.deps.RembgOrder == AfterResize {
		if data, err = remover.RemoveBackground(ctx, data); err != nil {
			return fail(err)
		}
	}

	if st.req.TargetSize != nil && st.format.IsLossy() {
		written, quality, err := o.convertToSize(ctx, st, page, data, res.Destination)
		if err != nil {
			return fail(err)
		}
		res.BytesWritten, res.Quality = written, quality
	} else {
		out := conv.Convert(ctx, data, item.Path, res.Destination)
		if !out.IsSuccessful() {
			return fail(out.Err())
		}
		res.BytesWritten = out.Value().BytesWritten
		if st.format.IsLossy() {
			res.Quality = st.quality
		}
	}

	res.Successful = true
	metrics.ObservePage(st.format.String(), true, res.BytesWritten)
	log.Info().
		Str("page", page.Label).
		Str("destination", res.Destination).
		Int("bytes", res.BytesWritten).
		Msg("page converted")
	return res
}

// convertToSize searches for the highest quality under the soft limit and
// writes the chosen encoding.
func (o *Orchestrator) convertToSize(ctx context.Context, st *run, page payload.PagePayload, data []byte, dest string) (int, int, error) {
	target := *st.req.TargetSize
	encode := func(q int, d []byte) ([]byte, error) {
		c, err := o.deps.Factory.Create(converter.Spec{Format: st.format, Quality: q})
		if err != nil {
			return nil, err
		}
		return c.EncodeToBytes(d)
	}

	outcome, err := sizing.FindBestQuality(encode, data, target.SoftLimit(), o.deps.Search)
	if err != nil {
		return 0, 0, err
	}
	metrics.ObserveSearch(st.format.String(), len(outcome.Attempted), outcome.Fallback)

	log.Debug().
		Str("page", page.Label).
		Int64("soft_limit", target.SoftLimit()).
		Ints("attempted", outcome.Attempted).
		Int("quality", outcome.Quality).
		Int("size", outcome.Size).
		Msg("size search finished")

	if !target.WithinTolerance(int64(outcome.Size)) {
		log.Warn().
			Str("page", page.Label).
			Int64("target", target.Bytes).
			Int("size", outcome.Size).
			Int("quality", outcome.Quality).
			Msg("target size not reached")
		st.advise("target_size_missed", fmt.Sprintf(
			"%s: could not reach target size %s; smallest result is %d bytes at quality %d",
			page.Label, target, outcome.Size, outcome.Quality))
	}

	if w := o.deps.Storage.WriteBytes(ctx, dest, outcome.Data); !w.IsSuccessful() {
		return 0, 0, w.Err()
	}
	return outcome.Size, outcome.Quality, nil
}
