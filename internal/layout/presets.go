package layout

import (
	"sort"
	"strings"

	"github.com/local/imgconvert/internal/converr"
)

// PageSize is a page in PDF points.
type PageSize struct {
	Width  float64
	Height float64
}

// Landscape reports whether the page is wider than tall.
func (s PageSize) Landscape() bool { return s.Width > s.Height }

// Preset bundles page size, default margin and orientation policy.
// A nil Size means the page takes the image's own dimensions.
type Preset struct {
	Name       string
	Size       *PageSize
	MarginMM   float64
	AutoRotate bool
}

// ScaleMode controls how an image is fitted into the content area.
type ScaleMode string

const (
	Fit  ScaleMode = "fit"
	Fill ScaleMode = "fill"
)

// Original is the preset that keeps the image size as the page size.
const Original = "original"

var (
	a4     = PageSize{Width: 595, Height: 842}
	letter = PageSize{Width: 612, Height: 792}
)

func size(w, h float64) *PageSize { return &PageSize{Width: w, Height: h} }

var presets = map[string]Preset{
	Original:           {Name: Original},
	"a4-auto":          {Name: "a4-auto", Size: size(a4.Width, a4.Height), MarginMM: 10, AutoRotate: true},
	"a4-portrait":      {Name: "a4-portrait", Size: size(a4.Width, a4.Height), MarginMM: 10},
	"a4-landscape":     {Name: "a4-landscape", Size: size(a4.Height, a4.Width), MarginMM: 10},
	"letter-auto":      {Name: "letter-auto", Size: size(letter.Width, letter.Height), MarginMM: 10, AutoRotate: true},
	"letter-portrait":  {Name: "letter-portrait", Size: size(letter.Width, letter.Height), MarginMM: 10},
	"letter-landscape": {Name: "letter-landscape", Size: size(letter.Height, letter.Width), MarginMM: 10},
	"mobile-portrait":  {Name: "mobile-portrait", Size: size(1080, 1920)},
	"mobile-landscape": {Name: "mobile-landscape", Size: size(1920, 1080)},
}

// NormalizeName lowercases s and maps '_' and ' ' to '-'.
func NormalizeName(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "-", " ", "-").Replace(v)
}

// ResolvePreset looks up a preset by name. Empty selects "original".
func ResolvePreset(name string) (Preset, error) {
	key := NormalizeName(name)
	if key == "" {
		key = Original
	}
	p, ok := presets[key]
	if !ok {
		return Preset{}, &converr.UnsupportedFormatError{Kind: "PDF preset", Value: name}
	}
	// Copy so callers cannot mutate the table.
	if p.Size != nil {
		s := *p.Size
		p.Size = &s
	}
	return p, nil
}

// ResolveScaleMode parses a scale mode. Empty selects fit.
func ResolveScaleMode(name string) (ScaleMode, error) {
	switch NormalizeName(name) {
	case "", string(Fit):
		return Fit, nil
	case string(Fill):
		return Fill, nil
	}
	return "", &converr.UnsupportedFormatError{Kind: "PDF scale mode", Value: name}
}

// PresetNames returns every preset name, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
