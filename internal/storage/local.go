package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/filetype"
	"github.com/local/imgconvert/internal/result"
)

// Local is a Storage on the local filesystem.
type Local struct{}

func NewLocal() *Local { return &Local{} }

// IterFiles lists supported files directly inside folder, sorted by name.
// A path to a single file yields that file.
func (l *Local) IterFiles(ctx context.Context, folder string) result.Result[[]FileItem] {
	info, err := os.Stat(folder)
	if err != nil {
		return result.Failure[[]FileItem](&converr.IOError{Op: "stat", Path: folder, Err: err})
	}
	if !info.IsDir() {
		return result.Success([]FileItem{newItem(folder, filepath.Base(folder))})
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return result.Failure[[]FileItem](&converr.IOError{Op: "list", Path: folder, Err: err})
	}

	items := make([]FileItem, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !filetype.IsSupportedName(e.Name()) {
			skipped++
			continue
		}
		items = append(items, newItem(filepath.Join(folder, e.Name()), e.Name()))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	log.Debug().Str("folder", folder).Int("files", len(items)).Int("skipped", skipped).Msg("listed source folder")
	return result.Success(items)
}

func (l *Local) ReadBytes(ctx context.Context, path string) result.Result[[]byte] {
	data, err := os.ReadFile(path)
	if err != nil {
		return result.Failure[[]byte](&converr.IOError{Op: "read", Path: path, Err: err})
	}
	return result.Success(data)
}

// WriteBytes creates parent directories as needed.
func (l *Local) WriteBytes(ctx context.Context, path string, data []byte) result.Result[struct{}] {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return result.Failure[struct{}](&converr.IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err})
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return result.Failure[struct{}](&converr.IOError{Op: "write", Path: path, Err: err})
	}
	return result.Success(struct{}{})
}

func (l *Local) BuildDestPath(folder, name string) string {
	return filepath.Join(folder, name)
}
