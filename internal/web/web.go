// Package web serves the conversion API over HTTP.
package web

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/limiter"
	"github.com/local/imgconvert/internal/metrics"
	"github.com/local/imgconvert/internal/pipeline"
	"github.com/local/imgconvert/internal/statuscheck"
	"github.com/local/imgconvert/internal/store"
	"github.com/local/imgconvert/internal/workspace"
)

type Server struct {
	builder   *pipeline.Builder
	ws        *workspace.Workspace
	status    store.StatusStore
	limiter   *limiter.Limiter
	checker   *statuscheck.Checker
	maxUpload int64
	now       func() time.Time
}

type Options struct {
	Builder   *pipeline.Builder
	Workspace *workspace.Workspace
	// Status defaults to an in-memory store.
	Status store.StatusStore
	// Limiter defaults to an in-process limit of two uploads per client.
	Limiter *limiter.Limiter
	// Checker defaults to one with no external dependencies configured.
	Checker     *statuscheck.Checker
	MaxUploadMB int
}

func New(opts Options) *Server {
	s := &Server{
		builder:   opts.Builder,
		ws:        opts.Workspace,
		status:    opts.Status,
		limiter:   opts.Limiter,
		checker:   opts.Checker,
		maxUpload: int64(opts.MaxUploadMB) << 20,
		now:       time.Now,
	}
	if s.status == nil {
		s.status = store.NewMemoryStatus()
	}
	if s.limiter == nil {
		s.limiter, _ = limiter.New(limiter.Options{})
	}
	if s.checker == nil {
		s.checker = statuscheck.New(statuscheck.Options{})
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 200 << 20
	}
	return s
}

// Routes returns the chi router with every endpoint mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Post("/compress", s.handleCompress)
	r.Get("/jobs/{id}", s.handleJob)
	r.Get("/download/{job}/{file}", s.handleDownload)
	r.Get("/download_all/{job}", s.handleDownloadAll)
	r.Get("/storage_info", s.handleStorageInfo)
	r.Post("/force_cleanup", s.handleForceCleanup)
	r.Get("/health/live", s.handleLive)
	r.Get("/health/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// requestLogger logs each request and counts it by route pattern.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.IncRequest(route, strconv.Itoa(status))
		log.Info().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write json response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
