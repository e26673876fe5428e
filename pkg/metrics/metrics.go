// Package metrics provides Prometheus metrics for protspace.
//
// # Overview
//
// Every stage of an annotation job is measured:
//   - retrieval batches and records per source
//   - HTTP requests issued to the annotation services
//   - cache hits and misses
//   - stage durations and bundle part sizes
//
// # Basic Usage
//
//	timer := metrics.NewTimer("merge")
//	merged := merge.Merge(primary, taxonomy, signatures)
//	timer.ObserveStage()
//
//	metrics.RetrievalBatches.WithLabelValues("uniprot", metrics.StatusFailure).Inc()
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values shared across vectors.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	KindFetched     = "fetched"
	KindPlaceholder = "placeholder"
	KindSkipped     = "skipped"
	KindCached      = "cached"

	CacheHit  = "hit"
	CacheMiss = "miss"
)

var (
	// RetrievalBatches counts retrieval batches per source and outcome.
	RetrievalBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protspace_retrieval_batches_total",
			Help: "Retrieval batches by source and status",
		},
		[]string{"source", "status"},
	)

	// RetrievalRecords counts records produced per source by kind
	// (fetched, placeholder, skipped, cached).
	RetrievalRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protspace_retrieval_records_total",
			Help: "Records produced by retrieval, by source and kind",
		},
		[]string{"source", "kind"},
	)

	// HTTPRequests counts requests to annotation services.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protspace_http_requests_total",
			Help: "HTTP requests by host, method and status code",
		},
		[]string{"host", "method", "code"},
	)

	// HTTPLatency tracks request latency in seconds.
	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "protspace_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"host", "method"},
	)

	// CircuitState reports the circuit breaker state per host
	// (0 closed, 1 open, 2 half-open).
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "protspace_http_circuit_state",
			Help: "Circuit breaker state per host",
		},
		[]string{"host"},
	)

	// StageDuration tracks pipeline stage durations in seconds.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "protspace_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"stage"},
	)

	// CacheLookups counts cache lookups per source.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protspace_cache_lookups_total",
			Help: "Annotation cache lookups by source and result",
		},
		[]string{"source", "result"},
	)

	// BundleBytes reports the size of each part of the last written bundle.
	BundleBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "protspace_bundle_part_bytes",
			Help: "Size of bundle parts in bytes",
		},
		[]string{"part"},
	)

	// MemoryResident reports process resident memory in bytes.
	MemoryResident = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "protspace_memory_resident_bytes",
			Help: "Resident set size in bytes",
		},
		[]string{"component"},
	)
)

// Timer measures the duration of a named stage.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop returns the elapsed duration since creation.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ObserveStage records the elapsed time in StageDuration and returns it.
func (t *Timer) ObserveStage() time.Duration {
	d := t.Stop()
	StageDuration.WithLabelValues(t.name).Observe(d.Seconds())
	return d
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
