// Package layout computes where a raster image lands on PDF pages: page
// size, orientation, margins, fit/fill scaling and pagination of tall images.
// Everything here is pure geometry; rendering lives in the PDF converter.
package layout

import (
	"fmt"
	"image"
	"math"

	"github.com/local/imgconvert/internal/converr"
)

// Options selects the layout for one document.
type Options struct {
	Preset Preset
	Scale  ScaleMode
	// MarginMM overrides Preset.MarginMM when set.
	MarginMM *float64
	Paginate bool
}

// ResolveOptions validates user supplied layout settings.
func ResolveOptions(preset, scale string, marginMM *float64, paginate bool) (Options, error) {
	p, err := ResolvePreset(preset)
	if err != nil {
		return Options{}, err
	}
	s, err := ResolveScaleMode(scale)
	if err != nil {
		return Options{}, err
	}
	if marginMM != nil && *marginMM < 0 {
		return Options{}, &converr.GeometryError{Reason: fmt.Sprintf("PDF margin must not be negative, got %g mm", *marginMM)}
	}
	return Options{Preset: p, Scale: s, MarginMM: marginMM, Paginate: paginate}, nil
}

// Rect is a rectangle in points, origin at the top-left of the page.
type Rect struct {
	X, Y, W, H float64
}

// Placement is one output page: its size, where the image goes and which
// source pixels are drawn there.
type Placement struct {
	PageWidth  float64
	PageHeight float64
	Image      Rect
	Crop       image.Rectangle
}

// MMToPoints converts millimetres to PDF points.
func MMToPoints(mm float64) float64 {
	return mm * 72.0 / 25.4
}

// PageSizeFor returns the page size for an image, swapping orientation when
// the preset auto-rotates and the image orientation differs.
func PageSizeFor(imgW, imgH int, p Preset) PageSize {
	if p.Size == nil {
		return PageSize{Width: float64(imgW), Height: float64(imgH)}
	}
	page := *p.Size
	if p.AutoRotate && (imgW > imgH) != page.Landscape() {
		page.Width, page.Height = page.Height, page.Width
	}
	return page
}

// Plan lays out an imgW x imgH image and returns one Placement per page.
func Plan(imgW, imgH int, opts Options) ([]Placement, error) {
	if imgW <= 0 || imgH <= 0 {
		return nil, &converr.GeometryError{Reason: fmt.Sprintf("invalid image size %dx%d", imgW, imgH)}
	}
	full := image.Rect(0, 0, imgW, imgH)

	if opts.Preset.Size == nil {
		return []Placement{{
			PageWidth:  float64(imgW),
			PageHeight: float64(imgH),
			Image:      Rect{W: float64(imgW), H: float64(imgH)},
			Crop:       full,
		}}, nil
	}

	page := PageSizeFor(imgW, imgH, opts.Preset)
	marginMM := opts.Preset.MarginMM
	if opts.MarginMM != nil {
		marginMM = *opts.MarginMM
	}
	margin := MMToPoints(marginMM)
	innerW := page.Width - 2*margin
	innerH := page.Height - 2*margin
	if innerW <= 0 || innerH <= 0 {
		return nil, &converr.GeometryError{Reason: "PDF margin is too large for the page size"}
	}

	if opts.Paginate {
		return paginate(imgW, imgH, page, margin, innerW, innerH)
	}

	if opts.Scale == Fill {
		return []Placement{{
			PageWidth:  page.Width,
			PageHeight: page.Height,
			Image:      Rect{X: margin, Y: margin, W: innerW, H: innerH},
			Crop:       CropToAspect(imgW, imgH, innerW/innerH),
		}}, nil
	}

	scale := math.Min(innerW/float64(imgW), innerH/float64(imgH))
	w := float64(imgW) * scale
	h := float64(imgH) * scale
	return []Placement{{
		PageWidth:  page.Width,
		PageHeight: page.Height,
		Image:      Rect{X: margin + (innerW-w)/2, Y: margin + (innerH-h)/2, W: w, H: h},
		Crop:       full,
	}}, nil
}

func paginate(imgW, imgH int, page PageSize, margin, innerW, innerH float64) ([]Placement, error) {
	scale := innerW / float64(imgW)
	sliceHeight := innerH / scale
	if sliceHeight <= 0 {
		return nil, &converr.GeometryError{Reason: "invalid slice height for PDF pagination"}
	}

	height := float64(imgH)
	count := int(math.Ceil(height / sliceHeight))
	if count < 1 {
		count = 1
	}

	placements := make([]Placement, 0, count)
	for i := 0; i < count; i++ {
		top := float64(i) * sliceHeight
		bottom := math.Min(float64(i+1)*sliceHeight, height)
		topPx := int(math.Round(top))
		bottomPx := int(math.Round(bottom))
		if bottomPx <= topPx {
			continue
		}
		placements = append(placements, Placement{
			PageWidth:  page.Width,
			PageHeight: page.Height,
			Image:      Rect{X: margin, Y: margin, W: innerW, H: (bottom - top) * scale},
			Crop:       image.Rect(0, topPx, imgW, bottomPx),
		})
	}
	if len(placements) == 0 {
		return nil, &converr.GeometryError{Reason: "pagination produced no pages"}
	}
	return placements, nil
}

// CropToAspect returns the centered crop of a w x h image with the given
// width/height ratio. The longer dimension is trimmed.
func CropToAspect(w, h int, ratio float64) image.Rectangle {
	if float64(w)/float64(h) > ratio {
		newW := int(math.Round(float64(h) * ratio))
		left := max(0, (w-newW)/2)
		return image.Rect(left, 0, left+newW, h)
	}
	newH := int(math.Round(float64(w) / ratio))
	top := max(0, (h-newH)/2)
	return image.Rect(0, top, w, top+newH)
}
