package converr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessages(t *testing.T) {
	assert.Equal(t, "unsupported PDF preset: 'a5'", (&UnsupportedFormatError{Kind: "PDF preset", Value: "a5"}).Error())
	assert.Equal(t, "scan.psd: PSD contains no composite data",
		(&DecodeError{Source: "scan.psd", Err: errors.New("PSD contains no composite data")}).Error())
	assert.Equal(t, "write out/a.jpg: disk full",
		(&IOError{Op: "write", Path: "out/a.jpg", Err: errors.New("disk full")}).Error())
	assert.Equal(t, "rembg is not available", (&CapabilityUnavailableError{Capability: "rembg"}).Error())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"decode", &DecodeError{Err: errors.New("bad")}, KindDecode},
		{"wrapped decode", fmt.Errorf("page 2: %w", &DecodeError{Err: errors.New("bad")}), KindDecode},
		{"format", &UnsupportedFormatError{Kind: "format", Value: "tga"}, KindUnsupportedFormat},
		{"geometry", &GeometryError{Reason: "margin"}, KindGeometry},
		{"io", &IOError{Op: "read", Path: "x", Err: fs.ErrNotExist}, KindIO},
		{"path error", &os.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, KindIO},
		{"capability", &CapabilityUnavailableError{Capability: "rembg", Err: &os.PathError{Op: "exec"}}, KindCapabilityUnavailable},
		{"other", errors.New("weird"), KindUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
