package orchestrator

import (
	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/result"
)

// Report is the JSON document printed by the CLI and returned by the server.
type Report struct {
	Status     string             `json:"status"`
	JobID      string             `json:"job_id,omitempty"`
	Results    *ConversionResults `json:"conversion_results,omitempty"`
	Advisories []string           `json:"advisories,omitempty"`
	Error      string             `json:"error,omitempty"`
	ErrorKind  string             `json:"error_kind,omitempty"`
}

type ConversionResults struct {
	Files   []PageResult          `json:"files"`
	Summary FileProcessingSummary `json:"file_processing_summary"`
}

type FileProcessingSummary struct {
	Total      int `json:"total_files_count"`
	Successful int `json:"successful_files_count"`
	Failed     int `json:"failed_files_count"`
}

const (
	ReportComplete = "complete"
	ReportFailed   = "failed"
)

// NewReport renders a Run result. A failed Run has no per-file results.
func NewReport(res result.Result[Summary]) Report {
	if !res.IsSuccessful() {
		return Report{
			Status:    ReportFailed,
			Error:     res.Message(),
			ErrorKind: converr.Classify(res.Err()),
		}
	}
	s := res.Value()
	files := s.Results
	if files == nil {
		files = []PageResult{}
	}
	return Report{
		Status: ReportComplete,
		Results: &ConversionResults{
			Files: files,
			Summary: FileProcessingSummary{
				Total:      s.Total,
				Successful: s.Successful,
				Failed:     s.Failed,
			},
		},
		Advisories: s.Advisories,
	}
}
