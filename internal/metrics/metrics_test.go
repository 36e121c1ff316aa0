package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePage(t *testing.T) {
	before := testutil.ToFloat64(pagesConverted.WithLabelValues("png", "success"))
	beforeBytes := testutil.ToFloat64(bytesWritten.WithLabelValues("png"))

	ObservePage("png", true, 1200)
	ObservePage("png", false, 0)

	assert.Equal(t, before+1, testutil.ToFloat64(pagesConverted.WithLabelValues("png", "success")))
	assert.Equal(t, beforeBytes+1200, testutil.ToFloat64(bytesWritten.WithLabelValues("png")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(pagesConverted.WithLabelValues("png", "failure")), 1.0)
}

func TestHandlerServesRegisteredCollectors(t *testing.T) {
	Init()
	Init()

	ObserveSearch("jpeg", 6, false)
	ObserveFile("jpeg", 250*time.Millisecond)
	IncAdvisory("target_size_unsupported")
	IncFailure("decode")
	IncRequest("/compress", "200")
	AddCleanupRemoved(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{
		"imgconvert_size_search_attempts",
		"imgconvert_file_duration_seconds",
		"imgconvert_advisories_total",
		"imgconvert_failures_total",
		"imgconvert_http_requests_total",
		"imgconvert_cleanup_removed_total",
	} {
		assert.Contains(t, body, name)
	}
}
