package filetype

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/converr"
)

// Kind is the processing route for a source.
type Kind string

const (
	Raster   Kind = "raster"
	Document Kind = "document"
	Layered  Kind = "layered"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Supported   bool
	Description string
}

var supportedExtensions = []string{
	".avif", ".bmp", ".gif", ".jpeg", ".jpg", ".pdf",
	".png", ".psd", ".tif", ".tiff", ".webp",
}

// SupportedExtensions returns the accepted source extensions, sorted, with the dot.
func SupportedExtensions() []string {
	return slices.Clone(supportedExtensions)
}

// IsSupportedName reports whether name has an accepted source extension.
func IsSupportedName(name string) bool {
	_, ok := slices.BinarySearch(supportedExtensions, strings.ToLower(filepath.Ext(name)))
	return ok
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect classifies data by magic bytes, not by name. name is used in
// errors and logs only.
func (d *Detector) Detect(data []byte, name string) (*FileTypeInfo, error) {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}

	d.classify(info)

	log.Debug().
		Str("mime", info.MIMEType).
		Str("ext", info.Extension).
		Str("kind", string(info.Kind)).
		Str("file", name).
		Msg("detected file type")

	if !info.Supported {
		return info, &converr.DecodeError{Source: name, Err: fmt.Errorf("unsupported content type %s", info.MIMEType)}
	}
	return info, nil
}

// DetectFile sniffs a file on disk.
func (d *Detector) DetectFile(path string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, &converr.IOError{Op: "detect", Path: path, Err: err}
	}
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(info)
	if !info.Supported {
		return info, &converr.DecodeError{Source: path, Err: fmt.Errorf("unsupported content type %s", info.MIMEType)}
	}
	return info, nil
}

// classify determines the processing route
func (d *Detector) classify(info *FileTypeInfo) {
	switch info.MIMEType {
	case "application/pdf":
		info.Kind = Document
		info.Supported = true
		info.Description = "PDF document"

	case "image/vnd.adobe.photoshop":
		info.Kind = Layered
		info.Supported = true
		info.Description = "Photoshop document"

	case "image/jpeg", "image/png", "image/gif", "image/bmp", "image/tiff", "image/webp", "image/avif", "image/vnd.mozilla.apng":
		info.Kind = Raster
		info.Supported = true
		info.Description = "Raster image"

	default:
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}
