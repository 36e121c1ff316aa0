// Package orchestrator runs the conversion pipeline over every file of a
// source: load, sniff, expand into pages, resize, convert and aggregate.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/converter"
	"github.com/local/imgconvert/internal/filetype"
	"github.com/local/imgconvert/internal/format"
	"github.com/local/imgconvert/internal/layout"
	"github.com/local/imgconvert/internal/metrics"
	"github.com/local/imgconvert/internal/payload"
	"github.com/local/imgconvert/internal/result"
	"github.com/local/imgconvert/internal/sizing"
	"github.com/local/imgconvert/internal/storage"
	"github.com/local/imgconvert/internal/units"
)

// DefaultQuality is used when a request leaves Quality at zero.
const DefaultQuality = 85

// PDFOptions are the raw PDF layout settings of a request.
type PDFOptions struct {
	Preset   string
	Scale    string
	MarginMM *float64
	Paginate bool
}

// Request describes one conversion run.
type Request struct {
	Source           string
	Destination      string
	Format           string
	Quality          int
	Width            int
	TargetSize       *units.TargetSize
	RemoveBackground bool
	PDF              PDFOptions
}

// PageResult is the outcome for one output file, or for a source file that
// failed before it produced pages.
type PageResult struct {
	File          string `json:"file"`
	Source        string `json:"source"`
	Destination   string `json:"destination"`
	OriginalWidth int    `json:"original_width,omitempty"`
	ResizedWidth  int    `json:"resized_width,omitempty"`
	Successful    bool   `json:"is_successful"`
	Error         string `json:"error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	BytesWritten  int    `json:"bytes_written,omitempty"`
	Quality       int    `json:"quality,omitempty"`
}

// Summary aggregates every PageResult of a run.
type Summary struct {
	Results    []PageResult `json:"files"`
	Advisories []string     `json:"advisories,omitempty"`
	Total      int          `json:"total_files_count"`
	Successful int          `json:"successful_files_count"`
	Failed     int          `json:"failed_files_count"`
}

// Expander splits a source into flat raster pages.
type Expander interface {
	Expand(name string, data []byte) result.Result[[]payload.PagePayload]
}

// Detector sniffs source content.
type Detector interface {
	Detect(data []byte, name string) (*filetype.FileTypeInfo, error)
}

// ConverterFactory builds converters for a spec.
type ConverterFactory interface {
	Create(spec converter.Spec) (converter.Converter, error)
}

// ProgressFunc is called after each source file.
type ProgressFunc func(done, total int, file string)

type Dependencies struct {
	Storage  storage.Storage
	Expander Expander
	// Detector is optional. Without it sources are not sniffed.
	Detector   Detector
	Factory    ConverterFactory
	Search     sizing.Options
	RembgOrder RembgOrder
	Progress   ProgressFunc
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.Search == (sizing.Options{}) {
		deps.Search = sizing.DefaultOptions()
	}
	if deps.RembgOrder == "" {
		deps.RembgOrder = BeforeResize
	}
	return &Orchestrator{deps: deps}
}

// run carries the validated request through the pipeline.
type run struct {
	req       Request
	format    format.Format
	quality   int
	converter converter.Converter
	summary   Summary
}

// Run converts every file of req.Source. Request-level problems fail the
// whole run before any file is touched; file and page problems are recorded
// in the Summary.
func (o *Orchestrator) Run(ctx context.Context, req Request) (res result.Result[Summary]) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("conversion run panicked")
			res = result.Failure[Summary](fmt.Errorf("internal error: %v", r))
		}
	}()

	st, err := o.prepare(req)
	if err != nil {
		log.Error().Err(err).Str("format", req.Format).Msg("invalid conversion request")
		return result.Failure[Summary](err)
	}

	listed := o.deps.Storage.IterFiles(ctx, req.Source)
	if !listed.IsSuccessful() {
		return result.Failure[Summary](listed.Err())
	}
	files := listed.Value()

	log.Info().
		Str("source", req.Source).
		Str("destination", req.Destination).
		Str("format", st.format.String()).
		Int("quality", st.quality).
		Int("width", req.Width).
		Bool("remove_background", req.RemoveBackground).
		Int("files", len(files)).
		Msg("conversion started")

	if req.TargetSize != nil && !st.format.IsLossy() {
		st.advise("target_size_unsupported",
			fmt.Sprintf("target size is not supported for %s output; converted without size targeting", st.format))
	}

	for i, item := range files {
		if err := ctx.Err(); err != nil {
			return result.Failure[Summary](err)
		}
		start := time.Now()
		o.processFile(ctx, st, item)
		metrics.ObserveFile(st.format.String(), time.Since(start))
		if o.deps.Progress != nil {
			o.deps.Progress(i+1, len(files), item.Name)
		}
	}

	st.summary.Total = len(st.summary.Results)
	for _, r := range st.summary.Results {
		if r.Successful {
			st.summary.Successful++
		} else {
			st.summary.Failed++
		}
	}

	log.Info().
		Int("total", st.summary.Total).
		Int("successful", st.summary.Successful).
		Int("failed", st.summary.Failed).
		Msg("conversion finished")

	return result.Success(st.summary)
}

func (o *Orchestrator) prepare(req Request) (*run, error) {
	f, err := format.Parse(req.Format)
	if err != nil {
		return nil, err
	}
	quality := req.Quality
	if quality == 0 {
		quality = DefaultQuality
	}
	if quality < 1 || quality > 100 {
		return nil, &converr.GeometryError{Reason: fmt.Sprintf("quality must be between 1 and 100, got %d", quality)}
	}
	if req.Width < 0 {
		return nil, &converr.GeometryError{Reason: fmt.Sprintf("width must be positive, got %d", req.Width)}
	}

	spec := converter.Spec{Format: f, Quality: quality, RemoveBackground: req.RemoveBackground}
	if f == format.PDF {
		spec.PDF, err = layout.ResolveOptions(req.PDF.Preset, req.PDF.Scale, req.PDF.MarginMM, req.PDF.Paginate)
		if err != nil {
			return nil, err
		}
	}
	conv, err := o.deps.Factory.Create(spec)
	if err != nil {
		return nil, err
	}
	return &run{req: req, format: f, quality: quality, converter: conv}, nil
}

func (st *run) advise(kind, msg string) {
	st.summary.Advisories = append(st.summary.Advisories, msg)
	metrics.IncAdvisory(kind)
}

func (st *run) fail(file, source, dest string, err error) {
	kind := converr.Classify(err)
	st.summary.Results = append(st.summary.Results, PageResult{
		File:        file,
		Source:      source,
		Destination: dest,
		Error:       err.Error(),
		ErrorKind:   kind,
	})
	metrics.ObservePage(st.format.String(), false, 0)
	metrics.IncFailure(kind)
}

// processFile never panics; a panic becomes a failed result for the file.
func (o *Orchestrator) processFile(ctx context.Context, st *run, item storage.FileItem) {
	defaultDest := o.deps.Storage.BuildDestPath(st.req.Destination, item.Stem+st.format.Extension())
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("file", item.Path).Bytes("stack", debug.Stack()).Msg("file processing panicked")
			st.fail(item.Name, item.Path, defaultDest, fmt.Errorf("internal error: %v", r))
		}
	}()

	loaded := o.deps.Storage.ReadBytes(ctx, item.Path)
	if !loaded.IsSuccessful() {
		log.Error().Err(loaded.Err()).Str("file", item.Path).Msg("error preparing file")
		st.fail(item.Name, item.Path, defaultDest, loaded.Err())
		return
	}
	data := loaded.Value()

	if o.deps.Detector != nil {
		if _, err := o.deps.Detector.Detect(data, item.Name); err != nil {
			log.Error().Err(err).Str("file", item.Path).Msg("unsupported source content")
			st.fail(item.Name, item.Path, defaultDest, err)
			return
		}
	}

	expanded := o.deps.Expander.Expand(item.Name, data)
	if !expanded.IsSuccessful() {
		log.Error().Err(expanded.Err()).Str("file", item.Path).Msg("error preparing file")
		st.fail(item.Name, item.Path, defaultDest, expanded.Err())
		return
	}

	for _, page := range expanded.Value() {
		if ctx.Err() != nil {
			return
		}
		st.summary.Results = append(st.summary.Results, o.convertPage(ctx, st, item, page))
	}
}

// BuildDestName returns "<stem>_page-<n><ext>" for pages of multi-page
// sources and "<stem><ext>" otherwise.
func BuildDestName(stem, ext string, pageIndex *int) string {
	if pageIndex == nil {
		return stem + ext
	}
	return fmt.Sprintf("%s_page-%d%s", stem, *pageIndex, ext)
}
