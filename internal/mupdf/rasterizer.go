package mupdf

import (
	"errors"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/imagerender"
	"github.com/local/imgconvert/internal/result"
)

// DefaultDPI renders pages at 300 DPI (scale factor dpi/72).
const DefaultDPI = 300

var errNoPages = errors.New("PDF contains no renderable pages")

// Doc abstracts an opened document so tests can replace MuPDF.
type Doc interface {
	NumPage() int
	ImageDPI(page int, dpi float64) (*image.RGBA, error)
	Close() error
}

// Opener opens document bytes into a Doc.
type Opener interface {
	Open(data []byte) (Doc, error)
}

type fitzOpener struct{}

func (fitzOpener) Open(data []byte) (Doc, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Rasterizer renders every page of a PDF to PNG using go-fitz.
type Rasterizer struct {
	opener   Opener
	dpi      float64
	maxPages int
}

// Option configures a Rasterizer.
type Option func(*Rasterizer)

// WithDPI sets the render resolution. Non-positive values keep the default.
func WithDPI(dpi float64) Option {
	return func(r *Rasterizer) {
		if dpi > 0 {
			r.dpi = dpi
		}
	}
}

// WithMaxPages rejects documents with more pages. Zero disables the check.
func WithMaxPages(n int) Option {
	return func(r *Rasterizer) { r.maxPages = n }
}

// WithOpener replaces the MuPDF backend.
func WithOpener(o Opener) Option {
	return func(r *Rasterizer) { r.opener = o }
}

// NewRasterizer creates a go-fitz backed rasterizer.
func NewRasterizer(opts ...Option) *Rasterizer {
	r := &Rasterizer{opener: fitzOpener{}, dpi: DefaultDPI}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DPI returns the configured render resolution.
func (r *Rasterizer) DPI() float64 { return r.dpi }

// RasterizePages renders each page of data and returns one PNG per page.
// hint names the source for error messages.
func (r *Rasterizer) RasterizePages(data []byte, hint string) result.Result[[][]byte] {
	if r.maxPages > 0 {
		if err := r.checkPageLimit(data, hint); err != nil {
			return result.Failure[[][]byte](err)
		}
	}

	doc, err := r.opener.Open(data)
	if err != nil {
		return result.Failure[[][]byte](&converr.DecodeError{Source: hint, Err: fmt.Errorf("failed to open PDF: %w", err)})
	}
	defer doc.Close()

	total := doc.NumPage()
	if total <= 0 {
		return result.Failure[[][]byte](&converr.DecodeError{Source: hint, Err: errNoPages})
	}

	pages := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		img, err := doc.ImageDPI(i, r.dpi)
		if err != nil {
			return result.Failure[[][]byte](&converr.DecodeError{Source: hint, Err: fmt.Errorf("failed to render page %d: %w", i+1, err)})
		}
		png, err := imagerender.EncodePNG(img)
		if err != nil {
			return result.Failure[[][]byte](fmt.Errorf("page %d: %w", i+1, err))
		}

		log.Debug().
			Str("source", hint).
			Int("page", i+1).
			Int("width", img.Bounds().Dx()).
			Int("height", img.Bounds().Dy()).
			Float64("dpi", r.dpi).
			Msg("rasterized page")

		pages = append(pages, png)
	}
	return result.Success(pages)
}

func (r *Rasterizer) checkPageLimit(data []byte, hint string) error {
	n, err := PageCount(data)
	if err != nil {
		// pdfcpu is stricter than MuPDF; let the renderer decide.
		log.Debug().Err(err).Str("source", hint).Msg("page count preflight skipped")
		return nil
	}
	if n > r.maxPages {
		return &converr.DecodeError{Source: hint, Err: fmt.Errorf("document has %d pages, limit is %d", n, r.maxPages)}
	}
	return nil
}
