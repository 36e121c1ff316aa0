// Package pdftest builds in-memory fixtures (images, PDFs) for package tests
// and inspects generated PDFs.
package pdftest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.NRGBA) *image.NRGBA {
	return imaging.New(w, h, c)
}

// Noise returns a deterministic pseudo-random opaque image. Noise compresses
// poorly, so encoded sizes react strongly to quality.
func Noise(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 0xff
	}
	return img
}

// PNG encodes img as PNG or fails the test.
func PNG(tb testing.TB, img image.Image) []byte {
	tb.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		tb.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEG encodes img as JPEG at quality or fails the test.
func JPEG(tb testing.TB, img image.Image, quality int) []byte {
	tb.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		tb.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// WithOrientation inserts an EXIF APP1 segment carrying the orientation tag
// right after the JPEG SOI marker.
func WithOrientation(tb testing.TB, jpeg []byte, orientation uint16) []byte {
	tb.Helper()
	if len(jpeg) < 2 || jpeg[0] != 0xff || jpeg[1] != 0xd8 {
		tb.Fatalf("not a jpeg")
	}
	var tiff bytes.Buffer
	put := func(v any) { _ = binary.Write(&tiff, binary.BigEndian, v) }
	tiff.WriteString("MM")
	put(uint16(42))
	put(uint32(8)) // IFD0 offset
	put(uint16(1)) // entry count
	put(uint16(0x0112))
	put(uint16(3)) // SHORT
	put(uint32(1))
	put(orientation)
	put(uint16(0))
	put(uint32(0)) // next IFD

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	var out bytes.Buffer
	out.Write(jpeg[:2])
	out.Write([]byte{0xff, 0xe1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(jpeg[2:])
	return out.Bytes()
}

// Decode decodes an encoded raster or fails the test.
func Decode(tb testing.TB, data []byte) image.Image {
	tb.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		tb.Fatalf("decode: %v", err)
	}
	return img
}

// Document renders a PDF with pages A4 pages, each holding a filled rectangle.
func Document(tb testing.TB, pages int) []byte {
	tb.Helper()
	doc := fpdf.New("P", "pt", "A4", "")
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.SetFillColor(40*i%255, 80, 160)
		doc.Rect(50, 50, 200, 100, "F")
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		tb.Fatalf("render pdf: %v", err)
	}
	return buf.Bytes()
}

// PageCount returns the number of pages pdfcpu finds in data.
func PageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}
