package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imgconvert"

var (
	pagesConverted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_converted_total",
			Help:      "Pages converted by output format and result (success, failure)",
		},
		[]string{"format", "result"},
	)

	failuresByKind = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed pages or files by error kind",
		},
		[]string{"kind"},
	)

	bytesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes of converted output written by format",
		},
		[]string{"format"},
	)

	searchAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "size_search_attempts",
			Help:      "Encoder attempts per size-targeted conversion",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
		[]string{"format", "fallback"},
	)

	fileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Time to process one source file by output format",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	advisories = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisories_total",
			Help:      "Advisories attached to run summaries by type",
		},
		[]string{"type"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	cleanupRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_removed_total",
			Help:      "Workspace entries removed by the cleanup service",
		},
	)

	initOnce sync.Once
)

// Init registers collectors. It is safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(pagesConverted, failuresByKind, bytesWritten, searchAttempts,
			fileDuration, advisories, httpRequests, cleanupRemoved)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObservePage(format string, success bool, written int) {
	pagesConverted.WithLabelValues(format, resultLabel(success)).Inc()
	if success && written > 0 {
		bytesWritten.WithLabelValues(format).Add(float64(written))
	}
}

func IncFailure(kind string) { failuresByKind.WithLabelValues(kind).Inc() }

func ObserveSearch(format string, attempts int, fallback bool) {
	searchAttempts.WithLabelValues(format, boolToStr(fallback)).Observe(float64(attempts))
}

func ObserveFile(format string, dur time.Duration) {
	fileDuration.WithLabelValues(format).Observe(dur.Seconds())
}

func IncAdvisory(kind string) { advisories.WithLabelValues(kind).Inc() }

func IncRequest(route, code string) { httpRequests.WithLabelValues(route, code).Inc() }

func AddCleanupRemoved(n int) { cleanupRemoved.Add(float64(n)) }

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
