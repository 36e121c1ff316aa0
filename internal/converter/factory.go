package converter

import (
	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/format"
	"github.com/local/imgconvert/internal/layout"
	"github.com/local/imgconvert/internal/rembg"
)

// Spec selects a converter.
type Spec struct {
	Format           format.Format
	Quality          int
	RemoveBackground bool
	PDF              layout.Options
}

// Factory builds converters that write through a shared Sink.
type Factory struct {
	sink        Sink
	remover     rembg.Remover
	model       string
	optimizePDF bool
	avifSpeed   int
}

type Option func(*Factory)

// WithRemover enables background removal with the given model.
func WithRemover(r rembg.Remover, model string) Option {
	return func(f *Factory) {
		f.remover = r
		f.model = model
	}
}

// WithPDFOptimize toggles the pdfcpu optimize pass on PDF output.
func WithPDFOptimize(on bool) Option {
	return func(f *Factory) { f.optimizePDF = on }
}

// WithAVIFSpeed sets the AVIF encoder speed (0 slowest, 10 fastest).
func WithAVIFSpeed(speed int) Option {
	return func(f *Factory) { f.avifSpeed = speed }
}

func NewFactory(sink Sink, opts ...Option) *Factory {
	f := &Factory{sink: sink}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns the converter for spec. Combinations without a converter are
// rejected rather than substituted.
func (f *Factory) Create(spec Spec) (Converter, error) {
	if spec.RemoveBackground {
		return f.createBackgroundRemoved(spec)
	}
	switch spec.Format {
	case format.JPEG:
		return NewJPEG(spec.Quality, f.sink), nil
	case format.PNG:
		return NewPNG(f.sink), nil
	case format.ICO:
		return NewICO(f.sink), nil
	case format.AVIF:
		return NewAVIF(spec.Quality, f.avifSpeed, f.sink), nil
	case format.PDF:
		return NewPDF(spec.PDF, f.optimizePDF, f.sink), nil
	}
	return nil, &converr.UnsupportedFormatError{Kind: "image format", Value: string(spec.Format)}
}

func (f *Factory) createBackgroundRemoved(spec Spec) (Converter, error) {
	var inner Converter
	switch spec.Format {
	case format.PNG:
		inner = NewPNG(f.sink)
	case format.AVIF:
		inner = NewAVIF(spec.Quality, f.avifSpeed, f.sink)
	default:
		return nil, &converr.UnsupportedFormatError{Kind: "format with background removal", Value: string(spec.Format)}
	}
	if f.remover == nil {
		return nil, &converr.CapabilityUnavailableError{Capability: "background removal (rembg)"}
	}
	model := f.model
	if model == "" {
		model = rembg.DefaultModel
	}
	return NewBackgroundRemoved(inner, f.remover, model), nil
}
