// Package storage reads source files and writes converted output on the
// local filesystem or in S3.
package storage

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/result"
)

// FileItem is one listed source file.
type FileItem struct {
	Path string
	Name string
	Stem string
}

// Storage is the file collaborator used by the pipeline.
type Storage interface {
	IterFiles(ctx context.Context, folder string) result.Result[[]FileItem]
	ReadBytes(ctx context.Context, path string) result.Result[[]byte]
	WriteBytes(ctx context.Context, path string, data []byte) result.Result[struct{}]
	BuildDestPath(folder, name string) string
}

func newItem(p, name string) FileItem {
	return FileItem{Path: p, Name: name, Stem: strings.TrimSuffix(name, path.Ext(name))}
}

// Routed sends s3:// paths to the S3 backend and everything else to the
// local filesystem.
type Routed struct {
	Local *Local
	S3    *S3Storage
}

// NewRouted builds a router. s3 may be nil when no bucket is configured.
func NewRouted(local *Local, s3 *S3Storage) *Routed {
	return &Routed{Local: local, S3: s3}
}

func (r *Routed) backend(p string) (Storage, error) {
	if !IsS3Path(p) {
		return r.Local, nil
	}
	if r.S3 == nil {
		return nil, &converr.CapabilityUnavailableError{Capability: "S3 storage"}
	}
	return r.S3, nil
}

func (r *Routed) IterFiles(ctx context.Context, folder string) result.Result[[]FileItem] {
	b, err := r.backend(folder)
	if err != nil {
		return result.Failure[[]FileItem](err)
	}
	return b.IterFiles(ctx, folder)
}

func (r *Routed) ReadBytes(ctx context.Context, p string) result.Result[[]byte] {
	b, err := r.backend(p)
	if err != nil {
		return result.Failure[[]byte](err)
	}
	return b.ReadBytes(ctx, p)
}

func (r *Routed) WriteBytes(ctx context.Context, p string, data []byte) result.Result[struct{}] {
	b, err := r.backend(p)
	if err != nil {
		return result.Failure[struct{}](err)
	}
	return b.WriteBytes(ctx, p, data)
}

func (r *Routed) BuildDestPath(folder, name string) string {
	if IsS3Path(folder) {
		return joinKey(folder, name)
	}
	return filepath.Join(folder, name)
}
