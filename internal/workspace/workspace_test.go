package workspace

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	w, err := New(t.TempDir(), time.Hour)
	require.NoError(t, err)
	return w
}

func TestNewJobAndLookup(t *testing.T) {
	w := newWorkspace(t)
	j, err := w.NewJob()
	require.NoError(t, err)
	assert.DirExists(t, j.SourceDir)
	assert.DirExists(t, j.OutputDir)
	assert.Equal(t, "source_"+j.ID, filepath.Base(j.SourceDir))
	assert.Equal(t, "converted_"+j.ID, filepath.Base(j.OutputDir))

	got, err := w.Lookup(j.ID)
	require.NoError(t, err)
	assert.Equal(t, j, got)

	_, err = w.Lookup("../etc")
	assert.Error(t, err)
}

func TestOutputFile(t *testing.T) {
	w := newWorkspace(t)
	j, err := w.NewJob()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(j.OutputDir, "a.png"), []byte("png"), 0o644))

	p, err := w.OutputFile(j.ID, "a.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(j.OutputDir, "a.png"), p)

	for _, bad := range []string{"", "../a.png", "sub/a.png", ".hidden"} {
		_, err := w.OutputFile(j.ID, bad)
		assert.Error(t, err, bad)
	}
	_, err = w.OutputFile(j.ID, "missing.png")
	assert.Error(t, err)
}

func TestZip(t *testing.T) {
	w := newWorkspace(t)
	j, err := w.NewJob()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(j.OutputDir, "b.jpg"), []byte("bbb"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(j.OutputDir, "a.jpg"), []byte("aa"), 0o644))

	archive, err := w.Zip(j.ID)
	require.NoError(t, err)
	assert.Equal(t, "converted_"+j.ID+".zip", filepath.Base(archive))

	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 2)
	assert.Equal(t, "a.jpg", zr.File[0].Name)
	assert.Equal(t, "b.jpg", zr.File[1].Name)
}

func TestCleanup(t *testing.T) {
	w := newWorkspace(t)
	old, err := w.NewJob()
	require.NoError(t, err)
	fresh, err := w.NewJob()
	require.NoError(t, err)
	unrelated := filepath.Join(w.Root(), "keep.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0o644))

	past := time.Now().Add(-2 * time.Hour)
	for _, d := range []string{old.SourceDir, old.OutputDir, unrelated} {
		require.NoError(t, os.Chtimes(d, past, past))
	}

	removed, err := w.Cleanup(false)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.NoDirExists(t, old.OutputDir)
	assert.DirExists(t, fresh.OutputDir)
	assert.FileExists(t, unrelated)

	removed, err = w.Cleanup(true)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.NoDirExists(t, fresh.SourceDir)
	assert.FileExists(t, unrelated)
}

func TestRunStopsOnCancel(t *testing.T) {
	w := newWorkspace(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStats(t *testing.T) {
	w := newWorkspace(t)
	j, err := w.NewJob()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(j.OutputDir, "a.png"), make([]byte, 1000), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(j.SourceDir, "a.psd"), make([]byte, 500), 0o644))

	st, err := w.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Jobs)
	assert.Equal(t, 2, st.Files)
	assert.Equal(t, int64(1500), st.TotalBytes)
	assert.Equal(t, "1.5kB", st.TotalHuman)
	assert.Equal(t, "1h0m0s", st.MaxAge)
}
