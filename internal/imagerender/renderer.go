package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	// Decoders for input formats beyond what the codecs register.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	_ "github.com/gen2brain/avif"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

// Decode decodes an image and applies its EXIF orientation tag if present.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Dimensions returns width and height without decoding pixel data.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// OrientedDimensions returns width and height after the EXIF orientation
// is applied, matching what Decode yields.
func OrientedDimensions(data []byte) (width, height int, err error) {
	img, err := Decode(data)
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

// HasAlpha reports whether any pixel of img is not fully opaque.
func HasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// FlattenOnWhite composites img over opaque white:
// out = fg*a/255 + 255*(255-a)/255 per channel.
func FlattenOnWhite(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			a := uint32(c.A)
			i := out.PixOffset(x, y)
			out.Pix[i+0] = blendOverWhite(c.R, a)
			out.Pix[i+1] = blendOverWhite(c.G, a)
			out.Pix[i+2] = blendOverWhite(c.B, a)
			out.Pix[i+3] = 0xff
		}
	}
	return out
}

func blendOverWhite(fg uint8, a uint32) uint8 {
	return uint8((uint32(fg)*a + 255*(255-a)) / 255)
}

// WithAlpha returns a copy of img with an explicit alpha channel.
func WithAlpha(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// ResizeToWidth scales img to width with Lanczos, keeping the aspect ratio.
func ResizeToWidth(img image.Image, width int) *image.NRGBA {
	b := img.Bounds()
	height := int(float64(b.Dy()) * (float64(width) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// ResizeBytes decodes data, resizes it to width and re-encodes it as PNG.
// It returns the original width as well.
func ResizeBytes(data []byte, width int) ([]byte, int, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, 0, err
	}
	originalWidth := img.Bounds().Dx()
	resized := ResizeToWidth(img, width)

	log.Debug().
		Int("from_width", originalWidth).
		Int("to_width", width).
		Int("to_height", resized.Bounds().Dy()).
		Msg("resized page")

	out, err := EncodePNG(resized)
	if err != nil {
		return nil, 0, err
	}
	return out, originalWidth, nil
}

// Crop returns the rect region of img.
func Crop(img image.Image, rect image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, rect)
}

// EncodePNG encodes img losslessly with the best compression level.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG encodes img at quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
