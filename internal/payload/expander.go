// Package payload turns a source file into the ordered list of flat raster
// pages the converters consume.
package payload

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/result"
)

// PagePayload is one logical page of a source.
type PagePayload struct {
	Data []byte
	// PageIndex is nil for single-page sources and 1-based otherwise.
	PageIndex *int
	Label     string
}

// Rasterizer renders each page of a multi-page document to PNG.
type Rasterizer interface {
	RasterizePages(data []byte, hint string) result.Result[[][]byte]
}

// Flattener renders a layered design file to a single PNG composite.
type Flattener interface {
	Render(name string, data []byte) result.Result[[]byte]
}

// Expander dispatches on the source suffix. Capabilities are created on
// first use and cached for the lifetime of the Expander.
type Expander struct {
	newRasterizer func() (Rasterizer, error)
	newFlattener  func() (Flattener, error)

	rasterizer Rasterizer
	flattener  Flattener
}

// NewExpander takes constructors for the heavy capabilities. A nil
// constructor makes the corresponding source type unavailable.
func NewExpander(newRasterizer func() (Rasterizer, error), newFlattener func() (Flattener, error)) *Expander {
	return &Expander{newRasterizer: newRasterizer, newFlattener: newFlattener}
}

// Expand returns the pages of the named source. On failure no pages are returned.
func (e *Expander) Expand(name string, data []byte) result.Result[[]PagePayload] {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return e.expandDocument(name, data)
	case ".psd":
		return e.expandLayered(name, data)
	default:
		return result.Success([]PagePayload{{Data: data, Label: name}})
	}
}

func (e *Expander) expandDocument(name string, data []byte) result.Result[[]PagePayload] {
	r, err := e.getRasterizer()
	if err != nil {
		return result.Failure[[]PagePayload](err)
	}
	res := r.RasterizePages(data, name)
	if !res.IsSuccessful() {
		return result.Failure[[]PagePayload](res.Err())
	}

	pages := make([]PagePayload, 0, len(res.Value()))
	for i, raster := range res.Value() {
		index := i + 1
		pages = append(pages, PagePayload{
			Data:      raster,
			PageIndex: &index,
			Label:     fmt.Sprintf("%s (page %d)", name, index),
		})
	}
	log.Debug().Str("source", name).Int("pages", len(pages)).Msg("expanded document")
	return result.Success(pages)
}

func (e *Expander) expandLayered(name string, data []byte) result.Result[[]PagePayload] {
	f, err := e.getFlattener()
	if err != nil {
		return result.Failure[[]PagePayload](err)
	}
	res := f.Render(name, data)
	if !res.IsSuccessful() {
		return result.Failure[[]PagePayload](res.Err())
	}
	return result.Success([]PagePayload{{Data: res.Value(), Label: name}})
}

func (e *Expander) getRasterizer() (Rasterizer, error) {
	if e.rasterizer != nil {
		return e.rasterizer, nil
	}
	if e.newRasterizer == nil {
		return nil, &converr.CapabilityUnavailableError{Capability: "PDF rasterization"}
	}
	r, err := e.newRasterizer()
	if err != nil {
		return nil, &converr.CapabilityUnavailableError{Capability: "PDF rasterization", Err: err}
	}
	e.rasterizer = r
	return r, nil
}

func (e *Expander) getFlattener() (Flattener, error) {
	if e.flattener != nil {
		return e.flattener, nil
	}
	if e.newFlattener == nil {
		return nil, &converr.CapabilityUnavailableError{Capability: "PSD flattening"}
	}
	f, err := e.newFlattener()
	if err != nil {
		return nil, &converr.CapabilityUnavailableError{Capability: "PSD flattening", Err: err}
	}
	e.flattener = f
	return f, nil
}
