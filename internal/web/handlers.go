package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/converr"
	"github.com/local/imgconvert/internal/filetype"
	"github.com/local/imgconvert/internal/orchestrator"
	"github.com/local/imgconvert/internal/store"
)

const multipartMemory = 32 << 20

type compressResponse struct {
	orchestrator.Report
	DownloadAll string `json:"download_all,omitempty"`
}

// parseRequest reads the conversion fields of a /compress form. Empty fields
// take the pipeline defaults.
func (s *Server) parseRequest(r *http.Request) (orchestrator.Request, error) {
	defaults := s.builder.Defaults()
	req := orchestrator.Request{
		Format:           strings.TrimSpace(r.FormValue("format")),
		Quality:          defaults.Quality,
		Width:            defaults.Width,
		RemoveBackground: formBool(r.FormValue("use_rembg")),
		PDF: orchestrator.PDFOptions{
			Preset:   r.FormValue("pdf_preset"),
			Scale:    r.FormValue("pdf_scale"),
			Paginate: formBool(r.FormValue("pdf_paginate")),
		},
	}
	if req.Format == "" {
		return req, errors.New("format is required")
	}
	if v := strings.TrimSpace(r.FormValue("quality")); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil || q < 1 || q > 100 {
			return req, fmt.Errorf("quality must be an integer between 1 and 100, got %q", v)
		}
		req.Quality = q
	}
	if v := strings.TrimSpace(r.FormValue("width")); v != "" {
		wd, err := strconv.Atoi(v)
		if err != nil || wd <= 0 {
			return req, fmt.Errorf("width must be a positive integer, got %q", v)
		}
		req.Width = wd
	}
	if v := strings.TrimSpace(r.FormValue("pdf_margin_mm")); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("pdf_margin_mm must be a number, got %q", v)
		}
		req.PDF.MarginMM = &m
	}
	ts, err := s.builder.TargetSize(strings.TrimSpace(r.FormValue("target_size")))
	if err != nil {
		return req, fmt.Errorf("invalid target_size: %w", err)
	}
	req.TargetSize = ts
	return req, nil
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	release, ok := s.limiter.Allow(r.Context(), clientKey(r))
	if !ok {
		writeError(w, http.StatusTooManyRequests, "too many concurrent uploads")
		return
	}
	defer release()

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No valid files uploaded.")
		return
	}
	for _, fh := range files {
		if !filetype.IsSupportedName(fh.Filename) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file %q; allowed extensions: %s",
				fh.Filename, strings.Join(filetype.SupportedExtensions(), ", ")))
			return
		}
	}

	req, err := s.parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.ws.NewJob()
	if err != nil {
		log.Error().Err(err).Msg("create job workspace")
		writeError(w, http.StatusInternalServerError, "could not allocate workspace")
		return
	}
	for _, fh := range files {
		if err := saveUpload(fh, job.SourceDir); err != nil {
			log.Error().Err(err).Str("job", job.ID).Str("file", fh.Filename).Msg("save upload")
			writeError(w, http.StatusInternalServerError, "could not store upload")
			return
		}
	}
	req.Source, req.Destination = job.SourceDir, job.OutputDir

	ctx := r.Context()
	start := s.now()
	s.setStatus(job.ID, store.Status{Status: store.StatusProcessing, Message: "converting", Start: &start})

	progress := func(done, total int, file string) {
		s.setStatus(job.ID, store.Status{
			Status:   store.StatusProcessing,
			Progress: done * 100 / total,
			Message:  fmt.Sprintf("converted %s (%d of %d)", file, done, total),
			Start:    &start,
		})
	}
	res := s.builder.Orchestrator(progress).Run(ctx, req)
	end := s.now()

	resp := compressResponse{Report: orchestrator.NewReport(res)}
	resp.JobID = job.ID

	if !res.IsSuccessful() {
		s.setStatus(job.ID, store.Status{Status: store.StatusFailed, Message: res.Message(), Start: &start, End: &end})
		writeJSON(w, runFailureCode(res.Err()), resp)
		return
	}

	sum := res.Value()
	s.setStatus(job.ID, store.Status{
		Status:   store.StatusComplete,
		Progress: 100,
		Message:  fmt.Sprintf("%d of %d files converted", sum.Successful, sum.Total),
		Start:    &start,
		End:      &end,
		Metadata: map[string]any{
			"format":     req.Format,
			"total":      sum.Total,
			"successful": sum.Successful,
			"failed":     sum.Failed,
		},
	})
	resp.DownloadAll = "/download_all/" + job.ID
	writeJSON(w, http.StatusOK, resp)
}

func runFailureCode(err error) int {
	switch converr.Classify(err) {
	case converr.KindUnsupportedFormat, converr.KindGeometry:
		return http.StatusBadRequest
	case converr.KindCapabilityUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) setStatus(jobID string, st store.Status) {
	// The request context may already be cancelled when the final status is written.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.status.Set(ctx, jobID, st); err != nil {
		log.Warn().Err(err).Str("job", jobID).Msg("status update failed")
	}
}

func saveUpload(fh *multipart.FileHeader, dir string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dest := filepath.Join(dir, filepath.Base(fh.Filename))
	dst, err := os.Create(dest)
	if err != nil {
		return &converr.IOError{Op: "create", Path: dest, Err: err}
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return &converr.IOError{Op: "write", Path: dest, Err: err}
	}
	return dst.Close()
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok, err := s.status.Get(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("job", id).Msg("read job status")
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func lookupCode(err error) int {
	var ioErr *converr.IOError
	if errors.As(err, &ioErr) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	p, err := s.ws.OutputFile(chi.URLParam(r, "job"), name)
	if err != nil {
		writeError(w, lookupCode(err), err.Error())
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, p)
}

func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	p, err := s.ws.Zip(chi.URLParam(r, "job"))
	if err != nil {
		writeError(w, lookupCode(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(p)))
	http.ServeFile(w, r, p)
}

func (s *Server) handleStorageInfo(w http.ResponseWriter, _ *http.Request) {
	st, err := s.ws.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleForceCleanup(w http.ResponseWriter, _ *http.Request) {
	n, err := s.ws.Cleanup(true)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Cleanup failed", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "Forced cleanup completed.", "removed": n})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "live", "utc_time": s.now().UTC()})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	sum := s.checker.Summary(r.Context())
	code := http.StatusOK
	if !sum.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, sum)
}
