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

func TestTimerObserveStage(t *testing.T) {
	timer := NewTimer("test_stage")
	time.Sleep(time.Millisecond)
	d := timer.ObserveStage()
	assert.Greater(t, d, time.Duration(0))
	assert.Equal(t, 1, testutil.CollectAndCount(StageDuration, "protspace_stage_duration_seconds"))
}

func TestCounters(t *testing.T) {
	RetrievalBatches.WithLabelValues("uniprot", StatusFailure).Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(RetrievalBatches.WithLabelValues("uniprot", StatusFailure)))
}

func TestHandler(t *testing.T) {
	CacheLookups.WithLabelValues("uniprot", CacheHit).Add(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "protspace_cache_lookups_total")
}
