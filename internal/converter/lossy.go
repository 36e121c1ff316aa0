package converter

import (
	"bytes"
	"context"
	"image"

	"github.com/gen2brain/avif"

	"github.com/local/imgconvert/internal/format"
	"github.com/local/imgconvert/internal/imagerender"
	"github.com/local/imgconvert/internal/result"
)

// JPEGConverter flattens alpha over white and encodes baseline JPEG.
type JPEGConverter struct {
	quality int
	sink    Sink
}

// NewJPEG returns a JPEG converter. quality is clamped to 1-100.
func NewJPEG(quality int, sink Sink) *JPEGConverter {
	return &JPEGConverter{quality: Quality(quality), sink: sink}
}

func (c *JPEGConverter) Format() format.Format { return format.JPEG }

func (c *JPEGConverter) EncodeToBytes(data []byte) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	out, err := imagerender.EncodeJPEG(imagerender.FlattenOnWhite(img), c.quality)
	if err != nil {
		return nil, encodeErr(format.JPEG, err)
	}
	return out, nil
}

func (c *JPEGConverter) Convert(ctx context.Context, data []byte, source, dest string) result.Result[Details] {
	return write(ctx, c.sink, c.EncodeToBytes, data, source, dest)
}

// AVIFConverter encodes AVIF. Alpha is kept.
type AVIFConverter struct {
	quality int
	speed   int
	sink    Sink
}

// NewAVIF returns an AVIF converter. speed is the encoder speed, 0 (slowest,
// best) to 10.
func NewAVIF(quality, speed int, sink Sink) *AVIFConverter {
	return &AVIFConverter{quality: Quality(quality), speed: min(10, max(0, speed)), sink: sink}
}

func (c *AVIFConverter) Format() format.Format { return format.AVIF }

func (c *AVIFConverter) EncodeToBytes(data []byte) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	var src image.Image = img
	if imagerender.HasAlpha(img) {
		src = imagerender.WithAlpha(img)
	}

	var buf bytes.Buffer
	err = avif.Encode(&buf, src, avif.Options{
		Quality:           c.quality,
		QualityAlpha:      c.quality,
		Speed:             c.speed,
		ChromaSubsampling: image.YCbCrSubsampleRatio420,
	})
	if err != nil {
		return nil, encodeErr(format.AVIF, err)
	}
	return buf.Bytes(), nil
}

func (c *AVIFConverter) Convert(ctx context.Context, data []byte, source, dest string) result.Result[Details] {
	return write(ctx, c.sink, c.EncodeToBytes, data, source, dest)
}
