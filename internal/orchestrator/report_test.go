package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/result"
)

func TestNewReportComplete(t *testing.T) {
	rep := NewReport(result.Success(Summary{
		Results:    []PageResult{{File: "a.jpg", Successful: true}, {File: "b.jpg", Error: "boom"}},
		Advisories: []string{"note"},
		Total:      2,
		Successful: 1,
		Failed:     1,
	}))

	b, err := json.Marshal(rep)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))

	assert.Equal(t, "complete", doc["status"])
	cr := doc["conversion_results"].(map[string]any)
	assert.Len(t, cr["files"], 2)
	sum := cr["file_processing_summary"].(map[string]any)
	assert.Equal(t, 2.0, sum["total_files_count"])
	assert.Equal(t, 1.0, sum["successful_files_count"])
	assert.Equal(t, 1.0, sum["failed_files_count"])
	assert.Equal(t, []any{"note"}, doc["advisories"])
}

func TestNewReportEmptyRunHasFilesArray(t *testing.T) {
	rep := NewReport(result.Success(Summary{}))
	b, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"files":[]`)
}

func TestNewReportFailed(t *testing.T) {
	rep := NewReport(result.Failure[Summary](&converr.UnsupportedFormatError{Kind: "format", Value: "bmp"}))
	assert.Equal(t, ReportFailed, rep.Status)
	assert.Nil(t, rep.Results)
	assert.Equal(t, "unsupported format: 'bmp'", rep.Error)
	assert.Equal(t, converr.KindUnsupportedFormat, rep.ErrorKind)
}
