package retriever

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/metrics"
)

const tracerName = "github.com/ajitpratap0/protspace/pkg/retriever"

// BatchFunc fetches one batch. It returns at most one record per key;
// keys it has nothing for are simply absent from the result.
type BatchFunc func(ctx context.Context, keys []string) ([]annotation.Record, error)

// BatchRunner runs a BatchFunc over fixed-size slices of keys, one after
// the other.
type BatchRunner struct {
	Source string
	Size   int
	// Fields shape the placeholder records of failed batches.
	Fields []string
	Logger *zap.Logger
}

// Run fetches every batch in order. A failed batch yields one placeholder
// record per key, with every field present and empty, and one BatchFailure.
// Run stops early only when ctx is done.
func (br BatchRunner) Run(ctx context.Context, keys []string, fetch BatchFunc) (*Result, error) {
	logger := br.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := batchSize(br.Size)
	tracer := otel.Tracer(tracerName)

	res := &Result{Records: make([]annotation.Record, 0, len(keys))}
	for start, batch := 0, 0; start < len(keys); start, batch = start+size, batch+1 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		bctx, span := tracer.Start(ctx, br.Source+".batch")
		span.SetAttributes(
			attribute.String("source", br.Source),
			attribute.Int("batch", batch),
			attribute.Int("keys", len(chunk)),
		)
		began := time.Now()
		records, err := fetch(bctx, chunk)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch failed")
			span.End()

			logger.Warn("batch retrieval failed",
				zap.String("source", br.Source),
				zap.Int("batch", batch),
				zap.Int("keys", len(chunk)),
				zap.Error(err))
			metrics.RetrievalBatches.WithLabelValues(br.Source, metrics.StatusFailure).Inc()
			metrics.RetrievalRecords.WithLabelValues(br.Source, metrics.KindPlaceholder).Add(float64(len(chunk)))

			for _, k := range chunk {
				res.Records = append(res.Records, annotation.NewRecord(k, annotation.Empty(br.Fields)))
			}
			res.Failures = append(res.Failures, BatchFailure{
				Source: br.Source,
				Batch:  batch,
				Keys:   append([]string(nil), chunk...),
				Err:    err,
			})
			continue
		}
		span.End()

		logger.Debug("batch retrieved",
			zap.String("source", br.Source),
			zap.Int("batch", batch),
			zap.Int("keys", len(chunk)),
			zap.Int("records", len(records)),
			zap.Duration("took", time.Since(began)))
		metrics.RetrievalBatches.WithLabelValues(br.Source, metrics.StatusSuccess).Inc()
		metrics.RetrievalRecords.WithLabelValues(br.Source, metrics.KindFetched).Add(float64(len(records)))
		res.Records = append(res.Records, records...)
	}
	return res, nil
}
