package converter

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/format"
	"github.com/local/imgconvert/internal/imagerender"
	"github.com/local/imgconvert/internal/layout"
	"github.com/local/imgconvert/internal/result"
)

// PDFConverter places a page onto one or more PDF pages according to its
// layout options.
type PDFConverter struct {
	opts     layout.Options
	optimize bool
	sink     Sink
}

// NewPDF returns a PDF converter. When optimize is set the serialized
// document is passed through pdfcpu.
func NewPDF(opts layout.Options, optimize bool, sink Sink) *PDFConverter {
	return &PDFConverter{opts: opts, optimize: optimize, sink: sink}
}

func (c *PDFConverter) Format() format.Format { return format.PDF }

func (c *PDFConverter) EncodeToBytes(data []byte) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	flat := imagerender.FlattenOnWhite(img)
	b := flat.Bounds()

	placements, err := layout.Plan(b.Dx(), b.Dy(), c.opts)
	if err != nil {
		return nil, err
	}

	first := placements[0]
	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: first.PageWidth, Ht: first.PageHeight},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)

	for i, p := range placements {
		slice, err := imagerender.EncodePNG(imagerender.Crop(flat, p.Crop))
		if err != nil {
			return nil, encodeErr(format.PDF, err)
		}
		name := fmt.Sprintf("page-%d", i+1)
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(slice))
		doc.AddPageFormat("P", fpdf.SizeType{Wd: p.PageWidth, Ht: p.PageHeight})
		doc.ImageOptions(name, p.Image.X, p.Image.Y, p.Image.W, p.Image.H, false, opts, 0, "")
		if doc.Err() {
			return nil, encodeErr(format.PDF, doc.Error())
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, encodeErr(format.PDF, err)
	}

	log.Debug().
		Str("preset", c.opts.Preset.Name).
		Str("scale", string(c.opts.Scale)).
		Bool("paginate", c.opts.Paginate).
		Int("pages", len(placements)).
		Msg("rendered PDF")

	if !c.optimize {
		return buf.Bytes(), nil
	}
	return optimizePDF(buf.Bytes()), nil
}

// optimizePDF returns the pdfcpu optimized document, or raw if optimizing fails.
func optimizePDF(raw []byte) []byte {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(raw), &out, conf); err != nil {
		log.Warn().Err(err).Msg("PDF optimize failed, keeping unoptimized output")
		return raw
	}
	return out.Bytes()
}

func (c *PDFConverter) Convert(ctx context.Context, data []byte, source, dest string) result.Result[Details] {
	return write(ctx, c.sink, c.EncodeToBytes, data, source, dest)
}
