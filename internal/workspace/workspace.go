// Package workspace owns the per-job upload and output directories used by
// the HTTP server, and removes them once they age out.
package workspace

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	goUnits "github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/metrics"
)

const (
	sourcePrefix = "source_"
	outputPrefix = "converted_"
	zipSuffix    = ".zip"
)

// DefaultMaxAge is how long job directories survive before cleanup.
const DefaultMaxAge = time.Hour

// Job is the pair of directories belonging to one upload.
type Job struct {
	ID        string
	SourceDir string
	OutputDir string
}

type Workspace struct {
	root   string
	maxAge time.Duration
	now    func() time.Time
}

// New creates root if needed.
func New(root string, maxAge time.Duration) (*Workspace, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "imgconvert")
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &converr.IOError{Op: "mkdir", Path: root, Err: err}
	}
	return &Workspace{root: root, maxAge: maxAge, now: time.Now}, nil
}

func (w *Workspace) Root() string { return w.root }

// NewJob allocates source and output directories under a fresh job id.
func (w *Workspace) NewJob() (Job, error) {
	id := uuid.NewString()
	j := w.job(id)
	for _, d := range []string{j.SourceDir, j.OutputDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return Job{}, &converr.IOError{Op: "mkdir", Path: d, Err: err}
		}
	}
	return j, nil
}

func (w *Workspace) job(id string) Job {
	return Job{
		ID:        id,
		SourceDir: filepath.Join(w.root, sourcePrefix+id),
		OutputDir: filepath.Join(w.root, outputPrefix+id),
	}
}

// Lookup returns an existing job. Ids that are not UUIDs are rejected so a
// request cannot address paths outside the workspace.
func (w *Workspace) Lookup(id string) (Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Job{}, fmt.Errorf("invalid job id %q", id)
	}
	j := w.job(id)
	if _, err := os.Stat(j.OutputDir); err != nil {
		return Job{}, &converr.IOError{Op: "stat", Path: j.OutputDir, Err: err}
	}
	return j, nil
}

// OutputFile resolves name inside the job's output directory.
func (w *Workspace) OutputFile(id, name string) (string, error) {
	j, err := w.Lookup(id)
	if err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	p := filepath.Join(j.OutputDir, name)
	if _, err := os.Stat(p); err != nil {
		return "", &converr.IOError{Op: "stat", Path: p, Err: err}
	}
	return p, nil
}

// Zip archives every file of the job's output directory into
// converted_<id>.zip next to it and returns the archive path.
func (w *Workspace) Zip(id string) (string, error) {
	j, err := w.Lookup(id)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(j.OutputDir)
	if err != nil {
		return "", &converr.IOError{Op: "list", Path: j.OutputDir, Err: err}
	}

	dest := filepath.Join(w.root, outputPrefix+id+zipSuffix)
	f, err := os.Create(dest)
	if err != nil {
		return "", &converr.IOError{Op: "create", Path: dest, Err: err}
	}
	zw := zip.NewWriter(f)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := addFile(zw, filepath.Join(j.OutputDir, name), name); err != nil {
			_ = zw.Close()
			_ = f.Close()
			return "", &converr.IOError{Op: "zip", Path: dest, Err: err}
		}
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return "", &converr.IOError{Op: "zip", Path: dest, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &converr.IOError{Op: "close", Path: dest, Err: err}
	}
	log.Debug().Str("job", id).Int("files", len(names)).Str("archive", dest).Msg("job outputs archived")
	return dest, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

func isManaged(name string) bool {
	return strings.HasPrefix(name, sourcePrefix) || strings.HasPrefix(name, outputPrefix)
}

// Cleanup removes managed entries older than the max age, or all of them
// when force is set. It returns the number of entries removed.
func (w *Workspace) Cleanup(force bool) (int, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return 0, &converr.IOError{Op: "list", Path: w.root, Err: err}
	}
	now := w.now()
	removed := 0
	for _, e := range entries {
		if !isManaged(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !force && now.Sub(info.ModTime()) < w.maxAge {
			continue
		}
		p := filepath.Join(w.root, e.Name())
		if err := os.RemoveAll(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("cleanup failed")
			continue
		}
		removed++
	}
	metrics.AddCleanupRemoved(removed)
	if removed > 0 {
		log.Info().Int("removed", removed).Bool("force", force).Msg("workspace cleanup")
	}
	return removed, nil
}

// Run calls Cleanup every interval until ctx is done.
func (w *Workspace) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(false); err != nil {
				log.Error().Err(err).Msg("scheduled cleanup failed")
			}
		}
	}
}

// Stats describes the current workspace usage.
type Stats struct {
	Root       string `json:"root"`
	Jobs       int    `json:"jobs"`
	Files      int    `json:"files"`
	TotalBytes int64  `json:"total_bytes"`
	TotalHuman string `json:"total_human"`
	MaxAge     string `json:"max_age"`
}

func (w *Workspace) Stats() (Stats, error) {
	st := Stats{Root: w.root, MaxAge: w.maxAge.String()}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return st, &converr.IOError{Op: "list", Path: w.root, Err: err}
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), outputPrefix) && e.IsDir() {
			st.Jobs++
		}
	}
	err = filepath.WalkDir(w.root, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		st.Files++
		st.TotalBytes += info.Size()
		return nil
	})
	st.TotalHuman = goUnits.HumanSize(float64(st.TotalBytes))
	return st, err
}
