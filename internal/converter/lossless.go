package converter

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/disintegration/imaging"

	"github.com/local/imgconvert/internal/format"
	"github.com/local/imgconvert/internal/imagerender"
	"github.com/local/imgconvert/internal/result"
)

// PNGConverter re-encodes losslessly with the best compression level.
// Alpha is preserved and ancillary metadata is dropped.
type PNGConverter struct {
	sink Sink
}

func NewPNG(sink Sink) *PNGConverter { return &PNGConverter{sink: sink} }

func (c *PNGConverter) Format() format.Format { return format.PNG }

func (c *PNGConverter) EncodeToBytes(data []byte) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	out, err := imagerender.EncodePNG(img)
	if err != nil {
		return nil, encodeErr(format.PNG, err)
	}
	return out, nil
}

func (c *PNGConverter) Convert(ctx context.Context, data []byte, source, dest string) result.Result[Details] {
	return write(ctx, c.sink, c.EncodeToBytes, data, source, dest)
}

// ICOConverter writes a single-image icon with a PNG payload.
type ICOConverter struct {
	sink Sink
}

func NewICO(sink Sink) *ICOConverter { return &ICOConverter{sink: sink} }

func (c *ICOConverter) Format() format.Format { return format.ICO }

const (
	icoHeaderSize = 6
	icoEntrySize  = 16
)

type iconDir struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

type iconDirEntry struct {
	Width      uint8
	Height     uint8
	ColorCount uint8
	Reserved   uint8
	Planes     uint16
	BitCount   uint16
	BytesInRes uint32
	Offset     uint32
}

func (c *ICOConverter) EncodeToBytes(data []byte) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	rgba := imagerender.WithAlpha(img)
	if b := rgba.Bounds(); b.Dx() > icoMaxSide || b.Dy() > icoMaxSide {
		rgba = imaging.Fit(rgba, icoMaxSide, icoMaxSide, imaging.Lanczos)
	}
	payload, err := imagerender.EncodePNG(rgba)
	if err != nil {
		return nil, encodeErr(format.ICO, err)
	}

	b := rgba.Bounds()
	var buf bytes.Buffer
	buf.Grow(icoHeaderSize + icoEntrySize + len(payload))
	// Writes to a bytes.Buffer do not fail.
	_ = binary.Write(&buf, binary.LittleEndian, iconDir{Type: 1, Count: 1})
	_ = binary.Write(&buf, binary.LittleEndian, iconDirEntry{
		Width:      icoDimension(b.Dx()),
		Height:     icoDimension(b.Dy()),
		Planes:     1,
		BitCount:   32,
		BytesInRes: uint32(len(payload)),
		Offset:     icoHeaderSize + icoEntrySize,
	})
	buf.Write(payload)
	return buf.Bytes(), nil
}

// icoMaxSide is the largest side an ICO directory entry can describe.
const icoMaxSide = 256

// icoDimension encodes 256 and above as 0.
func icoDimension(v int) uint8 {
	if v >= 256 {
		return 0
	}
	return uint8(v)
}

func (c *ICOConverter) Convert(ctx context.Context, data []byte, source, dest string) result.Result[Details] {
	return write(ctx, c.sink, c.EncodeToBytes, data, source, dest)
}
