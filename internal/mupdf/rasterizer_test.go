package mupdf

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/pdftest"
)

type stubDoc struct {
	pages  []image.Point
	dpis   []float64
	closed bool
}

func (d *stubDoc) NumPage() int { return len(d.pages) }

func (d *stubDoc) ImageDPI(i int, dpi float64) (*image.RGBA, error) {
	d.dpis = append(d.dpis, dpi)
	p := d.pages[i]
	return image.NewRGBA(image.Rect(0, 0, p.X, p.Y)), nil
}

func (d *stubDoc) Close() error { d.closed = true; return nil }

type stubOpener struct {
	doc *stubDoc
	err error
}

func (o stubOpener) Open([]byte) (Doc, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.doc, nil
}

func TestRasterizePages(t *testing.T) {
	doc := &stubDoc{pages: []image.Point{{20, 30}, {40, 10}}}
	r := NewRasterizer(WithOpener(stubOpener{doc: doc}), WithDPI(150))

	res := r.RasterizePages([]byte("%PDF"), "doc.pdf")
	require.True(t, res.IsSuccessful(), res.Message())

	pages := res.Value()
	require.Len(t, pages, 2)
	first := pdftest.Decode(t, pages[0])
	assert.Equal(t, image.Rect(0, 0, 20, 30), first.Bounds())
	second := pdftest.Decode(t, pages[1])
	assert.Equal(t, image.Rect(0, 0, 40, 10), second.Bounds())

	assert.Equal(t, []float64{150, 150}, doc.dpis)
	assert.True(t, doc.closed)
}

func TestRasterizePagesDefaultDPI(t *testing.T) {
	assert.Equal(t, float64(DefaultDPI), NewRasterizer(WithDPI(0)).DPI())
}

func TestRasterizePagesFailures(t *testing.T) {
	t.Run("open error", func(t *testing.T) {
		r := NewRasterizer(WithOpener(stubOpener{err: errors.New("broken xref")}))
		res := r.RasterizePages([]byte("x"), "bad.pdf")
		require.False(t, res.IsSuccessful())
		var de *converr.DecodeError
		assert.ErrorAs(t, res.Err(), &de)
		assert.Contains(t, res.Message(), "broken xref")
	})

	t.Run("no pages", func(t *testing.T) {
		r := NewRasterizer(WithOpener(stubOpener{doc: &stubDoc{}}))
		res := r.RasterizePages([]byte("x"), "empty.pdf")
		require.False(t, res.IsSuccessful())
		assert.Contains(t, res.Message(), "PDF contains no renderable pages")
	})
}

func TestPageLimit(t *testing.T) {
	data := pdftest.Document(t, 3)

	n, err := PageCount(data)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	doc := &stubDoc{pages: []image.Point{{1, 1}, {1, 1}, {1, 1}}}
	r := NewRasterizer(WithOpener(stubOpener{doc: doc}), WithMaxPages(2))
	res := r.RasterizePages(data, "big.pdf")
	require.False(t, res.IsSuccessful())
	assert.Contains(t, res.Message(), "document has 3 pages, limit is 2")

	r = NewRasterizer(WithOpener(stubOpener{doc: doc}), WithMaxPages(3))
	assert.True(t, r.RasterizePages(data, "ok.pdf").IsSuccessful())
}
