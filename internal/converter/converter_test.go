package converter

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/gen2brain/avif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/format"
	"github.com/local/imgconvert/internal/imagerender"
	"github.com/local/imgconvert/internal/layout"
	"github.com/local/imgconvert/internal/pdftest"
	"github.com/local/imgconvert/internal/rembg"
	"github.com/local/imgconvert/internal/result"
)

type memorySink struct {
	files map[string][]byte
	err   error
}

func newMemorySink() *memorySink { return &memorySink{files: map[string][]byte{}} }

func (s *memorySink) WriteBytes(_ context.Context, path string, data []byte) result.Result[struct{}] {
	if s.err != nil {
		return result.Failure[struct{}](s.err)
	}
	s.files[path] = data
	return result.Success(struct{}{})
}

func transparentPNG(t *testing.T, w, h int) []byte {
	return pdftest.PNG(t, pdftest.Solid(w, h, color.NRGBA{R: 10, G: 20, B: 30, A: 0}))
}

func TestJPEGConvert(t *testing.T) {
	sink := newMemorySink()
	c := NewJPEG(85, sink)
	src := pdftest.PNG(t, pdftest.Noise(800, 600, 1))

	res := c.Convert(context.Background(), src, "in.png", "out/in.jpg")
	require.True(t, res.IsSuccessful(), res.Message())

	out := sink.files["out/in.jpg"]
	require.NotEmpty(t, out)
	assert.Equal(t, Details{Source: "in.png", Destination: "out/in.jpg", BytesWritten: len(out)}, res.Value())

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 600, cfg.Height)
}

func TestJPEGFlattensTransparencyToWhite(t *testing.T) {
	out, err := NewJPEG(95, nil).EncodeToBytes(transparentPNG(t, 16, 16))
	require.NoError(t, err)

	img := pdftest.Decode(t, out)
	r, g, b, _ := img.At(8, 8).RGBA()
	assert.InDelta(t, 0xffff, r, 0x0300)
	assert.InDelta(t, 0xffff, g, 0x0300)
	assert.InDelta(t, 0xffff, b, 0x0300)
}

func TestJPEGQualityAffectsSize(t *testing.T) {
	src := pdftest.PNG(t, pdftest.Noise(128, 128, 2))
	low, err := NewJPEG(10, nil).EncodeToBytes(src)
	require.NoError(t, err)
	high, err := NewJPEG(95, nil).EncodeToBytes(src)
	require.NoError(t, err)
	assert.Less(t, len(low), len(high))
}

func TestQualityClamp(t *testing.T) {
	assert.Equal(t, 1, Quality(-5))
	assert.Equal(t, 1, Quality(0))
	assert.Equal(t, 50, Quality(50))
	assert.Equal(t, 100, Quality(250))
}

func TestPNGPreservesDimensionsAndAlpha(t *testing.T) {
	out, err := NewPNG(nil).EncodeToBytes(transparentPNG(t, 31, 17))
	require.NoError(t, err)

	img := pdftest.Decode(t, out)
	assert.Equal(t, image.Pt(31, 17), img.Bounds().Size())
	assert.True(t, imagerender.HasAlpha(img))
	_, _, _, a := img.At(0, 0).RGBA()
	assert.Zero(t, a)
}

func TestMalformedInputIsDecodeError(t *testing.T) {
	sink := newMemorySink()
	for _, c := range []Converter{NewJPEG(80, sink), NewPNG(sink), NewICO(sink), NewAVIF(80, 10, sink), NewPDF(layout.Options{}, false, sink)} {
		t.Run(c.Format().String(), func(t *testing.T) {
			res := c.Convert(context.Background(), []byte("not an image"), "bad.bin", "out")
			require.False(t, res.IsSuccessful())
			var de *converr.DecodeError
			require.ErrorAs(t, res.Err(), &de)
			assert.Equal(t, "bad.bin", de.Source)
			assert.Empty(t, sink.files)
		})
	}
}

func TestSinkFailureIsReturned(t *testing.T) {
	sink := newMemorySink()
	sink.err = &converr.IOError{Op: "write", Path: "x", Err: errors.New("disk full")}
	res := NewPNG(sink).Convert(context.Background(), transparentPNG(t, 4, 4), "a.png", "x")
	assert.Equal(t, converr.KindIO, converr.Classify(res.Err()))
}

func TestNilSinkFails(t *testing.T) {
	res := NewPNG(nil).Convert(context.Background(), transparentPNG(t, 4, 4), "a.png", "x")
	assert.Equal(t, converr.KindIO, converr.Classify(res.Err()))
}

func TestICOContainer(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH uint8
		payload      image.Point
	}{
		{32, 16, 32, 16, image.Pt(32, 16)},
		{256, 256, 0, 0, image.Pt(256, 256)},
		{300, 40, 0, 34, image.Pt(256, 34)},
		{800, 600, 0, 192, image.Pt(256, 192)},
	}
	for _, tc := range tests {
		out, err := NewICO(nil).EncodeToBytes(pdftest.PNG(t, pdftest.Noise(tc.w, tc.h, 3)))
		require.NoError(t, err)

		var dir iconDir
		var entry iconDirEntry
		r := bytes.NewReader(out)
		require.NoError(t, binary.Read(r, binary.LittleEndian, &dir))
		require.NoError(t, binary.Read(r, binary.LittleEndian, &entry))
		assert.Equal(t, iconDir{Type: 1, Count: 1}, dir)
		assert.Equal(t, tc.wantW, entry.Width)
		assert.Equal(t, tc.wantH, entry.Height)
		assert.Equal(t, uint16(32), entry.BitCount)
		assert.Equal(t, uint32(22), entry.Offset)
		require.Equal(t, int(entry.BytesInRes), len(out)-22)

		payload := pdftest.Decode(t, out[22:])
		assert.Equal(t, tc.payload, payload.Bounds().Size())
	}
}

func TestAVIFKeepsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			a := uint8(0)
			if x >= 8 {
				a = 0xff
			}
			src.SetNRGBA(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: a})
		}
	}

	out, err := NewAVIF(80, 10, nil).EncodeToBytes(pdftest.PNG(t, src))
	require.NoError(t, err)

	img, err := avif.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(16, 16), img.Bounds().Size())
	_, _, _, a := img.At(2, 2).RGBA()
	assert.Less(t, a, uint32(0x1000))
	_, _, _, a = img.At(13, 13).RGBA()
	assert.Greater(t, a, uint32(0xf000))
}

func TestPDFPagination(t *testing.T) {
	opts, err := layout.ResolveOptions("mobile-portrait", "fit", nil, true)
	require.NoError(t, err)

	// scale 2, 960 source rows per page -> 3 pages.
	src := pdftest.PNG(t, pdftest.Noise(540, 2000, 4))
	for _, optimize := range []bool{false, true} {
		out, err := NewPDF(opts, optimize, nil).EncodeToBytes(src)
		require.NoError(t, err)
		require.True(t, bytes.HasPrefix(out, []byte("%PDF")))

		n, err := pdftest.PageCount(out)
		require.NoError(t, err)
		assert.Equal(t, 3, n, "optimize=%v", optimize)
	}
}

func TestPDFSinglePage(t *testing.T) {
	for _, preset := range layout.PresetNames() {
		t.Run(preset, func(t *testing.T) {
			opts, err := layout.ResolveOptions(preset, "fill", nil, false)
			require.NoError(t, err)
			out, err := NewPDF(opts, false, nil).EncodeToBytes(transparentPNG(t, 64, 48))
			require.NoError(t, err)
			n, err := pdftest.PageCount(out)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestPDFMarginTooLarge(t *testing.T) {
	margin := 400.0
	opts, err := layout.ResolveOptions("a4-portrait", "", &margin, false)
	require.NoError(t, err)
	_, err = NewPDF(opts, false, nil).EncodeToBytes(transparentPNG(t, 10, 10))
	var ge *converr.GeometryError
	assert.ErrorAs(t, err, &ge)
}

type stubRemover struct {
	sessions   int
	calls      int
	sessionErr error
	ppm, alpha bool
}

func (s *stubRemover) NewSession(model string) (*rembg.Session, error) {
	if s.sessionErr != nil {
		return nil, s.sessionErr
	}
	s.sessions++
	return &rembg.Session{Model: model}, nil
}

func (s *stubRemover) Remove(_ context.Context, data []byte, _ *rembg.Session, postProcessMask, alphaMatting bool) ([]byte, error) {
	s.calls++
	s.ppm, s.alpha = postProcessMask, alphaMatting
	img, err := imagerender.Decode(data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return imagerender.EncodePNG(pdftest.Solid(b.Dx(), b.Dy(), color.NRGBA{}))
}

func TestBackgroundRemovedReusesSession(t *testing.T) {
	r := &stubRemover{}
	sink := newMemorySink()
	f := NewFactory(sink, WithRemover(r, "isnet-general-use"))

	c, err := f.Create(Spec{Format: format.PNG, RemoveBackground: true})
	require.NoError(t, err)
	require.IsType(t, &BackgroundRemoved{}, c)
	assert.Equal(t, format.PNG, c.Format())

	src := pdftest.PNG(t, pdftest.Noise(20, 10, 5))
	for i := 0; i < 2; i++ {
		res := c.Convert(context.Background(), src, "a.jpg", "a.png")
		require.True(t, res.IsSuccessful(), res.Message())
	}
	assert.Equal(t, 1, r.sessions)
	assert.Equal(t, 2, r.calls)
	assert.True(t, r.ppm)
	assert.False(t, r.alpha)

	img := pdftest.Decode(t, sink.files["a.png"])
	assert.True(t, imagerender.HasAlpha(img))
}

func TestBackgroundRemovedSessionFailure(t *testing.T) {
	r := &stubRemover{sessionErr: &converr.CapabilityUnavailableError{Capability: "background removal (rembg)"}}
	c, err := NewFactory(nil, WithRemover(r, "")).Create(Spec{Format: format.AVIF, Quality: 50, RemoveBackground: true})
	require.NoError(t, err)
	_, err = c.EncodeToBytes(transparentPNG(t, 4, 4))
	assert.Equal(t, converr.KindCapabilityUnavailable, converr.Classify(err))
}

func TestFactory(t *testing.T) {
	f := NewFactory(nil, WithRemover(&stubRemover{}, "u2net"), WithPDFOptimize(true), WithAVIFSpeed(8))

	for _, fmtTag := range format.All() {
		c, err := f.Create(Spec{Format: fmtTag, Quality: 70})
		require.NoError(t, err)
		assert.Equal(t, fmtTag, c.Format())
	}

	for _, fmtTag := range []format.Format{format.JPEG, format.ICO, format.PDF} {
		_, err := f.Create(Spec{Format: fmtTag, RemoveBackground: true})
		var ufe *converr.UnsupportedFormatError
		assert.ErrorAs(t, err, &ufe, "%s with background removal", fmtTag)
	}

	_, err := f.Create(Spec{Format: "webp"})
	assert.Equal(t, converr.KindUnsupportedFormat, converr.Classify(err))

	_, err = NewFactory(nil).Create(Spec{Format: format.PNG, RemoveBackground: true})
	assert.Equal(t, converr.KindCapabilityUnavailable, converr.Classify(err))
}
