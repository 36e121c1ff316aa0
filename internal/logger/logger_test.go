package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "debug", Out: &buf}))
	defer Close()

	Log("d", "debug")
	Log("i", "info")
	Log("w", "warning")
	Log("e", "ERROR")
	Log("u", "verbose")

	got := lines(t, &buf)
	require.Len(t, got, 5)
	want := []string{"debug", "info", "warn", "error", "info"}
	for i, m := range got {
		assert.Equal(t, want[i], m["level"])
		assert.Equal(t, "imgconvert", m["service"])
	}
}

func TestLevelFilterAndGlobal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "warn", Out: &buf}))
	defer Close()

	log.Info().Msg("hidden")
	log.Warn().Str("page", "a.pdf#1").Msg("shown")

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "shown", got[0]["message"])
	assert.Equal(t, "a.pdf#1", got[0]["page"])
}

func TestInitCreatesLogDir(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "nested", "imgconvert.log")
	require.NoError(t, Init(Options{File: file, MaxSizeMB: 1, Out: &buf}))
	defer Close()
	log.Info().Msg("to file")
	assert.FileExists(t, file)
}
