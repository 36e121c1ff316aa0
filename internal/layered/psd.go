// Package layered flattens layered design files (PSD) into a single raster.
package layered

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/oov/psd"
	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/imagerender"
	"github.com/local/imgconvert/internal/result"
)

var errNoComposite = errors.New("PSD contains no composite data")

// Flattener renders the merged composite stored in a PSD.
type Flattener struct{}

// NewFlattener returns a PSD flattener.
func NewFlattener() *Flattener { return &Flattener{} }

// Render returns the PSD composite encoded as PNG.
func (f *Flattener) Render(name string, data []byte) result.Result[[]byte] {
	doc, _, err := psd.Decode(bytes.NewReader(data), &psd.DecodeOptions{SkipLayerImage: true})
	if err != nil {
		return result.Failure[[]byte](&converr.DecodeError{Source: name, Err: fmt.Errorf("failed to read PSD: %w", err)})
	}
	if doc.Picker == nil || doc.Picker.Bounds().Empty() {
		return result.Failure[[]byte](&converr.DecodeError{Source: name, Err: errNoComposite})
	}

	gray := doc.Config.ColorMode == psd.ColorModeGrayscale || doc.Config.ColorMode == psd.ColorModeBitmap
	composite := normalize(doc.Picker, gray)
	out, err := imagerender.EncodePNG(composite)
	if err != nil {
		return result.Failure[[]byte](&converr.DecodeError{Source: name, Err: err})
	}

	log.Debug().
		Str("source", name).
		Int("width", composite.Bounds().Dx()).
		Int("height", composite.Bounds().Dy()).
		Int("layers", len(doc.Layer)).
		Msg("flattened PSD composite")

	return result.Success(out)
}

// normalize keeps luminance-only composites as *image.Gray and converts
// everything else to opaque RGB. Any transparent pixel yields NRGBA, which
// also covers gray plus alpha since PNG output has no luminance-alpha path.
func normalize(img image.Image, gray bool) image.Image {
	if imagerender.HasAlpha(img) {
		return imagerender.WithAlpha(img)
	}
	b := img.Bounds()
	if gray {
		if g, ok := img.(*image.Gray); ok {
			return g
		}
		out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
		return out
	}
	rgb := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgb, rgb.Bounds(), img, b.Min, draw.Src)
	return rgb
}
