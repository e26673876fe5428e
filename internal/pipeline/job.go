// Package pipeline runs a protspace annotation job, turning a list of
// protein identifiers into the annotation table of a bundle.
//
// # Overview
//
// A job runs these stages in order:
//   - Resolve: validate the requested annotations and split them by source
//   - UniProt: fetch the primary record of every identifier
//   - Taxonomy: fetch the lineage of every distinct organism
//   - InterPro: fetch signature matches by sequence digest
//   - Merge: join lineage and signatures onto the primary records
//   - Transform: normalise values and derive length categories
//
// Every retrieval stage consults the annotation cache first, when one is
// configured, and writes successfully fetched records back. A failed batch
// never aborts the job: its identifiers get empty placeholder values and
// the failure is listed in the Report.
//
// # Basic Usage
//
//	job, err := pipeline.NewJob(cfg, pipeline.NewRESTClients(cfg, httpClient), store, logger)
//	if err != nil {
//	    return err
//	}
//	result, err := job.Run(ctx, pipeline.Request{Identifiers: ids})
//	if err != nil {
//	    return err
//	}
//	written, err := pipeline.WriteOutput(ctx, result, out, logger)
//
// Stages are traced with OpenTelemetry, timed in the stage histogram and
// logged through zap.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/binning"
	"github.com/ajitpratap0/protspace/pkg/cache"
	"github.com/ajitpratap0/protspace/pkg/clients"
	"github.com/ajitpratap0/protspace/pkg/config"
	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/logger"
	"github.com/ajitpratap0/protspace/pkg/merge"
	"github.com/ajitpratap0/protspace/pkg/observability"
	"github.com/ajitpratap0/protspace/pkg/retriever"
	"github.com/ajitpratap0/protspace/pkg/transform"
)

// Stage names used for spans, metrics and the report.
const (
	StageResolve   = "resolve"
	StageUniProt   = "retrieve.uniprot"
	StageTaxonomy  = "retrieve.taxonomy"
	StageInterPro  = "retrieve.interpro"
	StageMerge     = "merge"
	StageTransform = "transform"
	StageWrite     = "write"
)

// Clients are the remote services a job talks to. Taxonomy and InterPro may
// be nil, which disables the source.
type Clients struct {
	UniProt  retriever.UniProtClient
	Taxonomy retriever.TaxonomyClient
	InterPro retriever.InterProClient
}

// NewRESTClients builds REST clients for every enabled source, sharing one
// HTTP client.
func NewRESTClients(cfg *config.Config, http *clients.HTTPClient) Clients {
	c := Clients{
		UniProt: retriever.NewRESTUniProtClient(http, cfg.Retrieval.UniProt.Endpoint),
	}
	if cfg.Retrieval.Taxonomy.Enabled {
		c.Taxonomy = retriever.NewRESTTaxonomyClient(http, cfg.Retrieval.Taxonomy.Endpoint)
	}
	if cfg.Retrieval.InterPro.Enabled {
		c.InterPro = retriever.NewRESTInterProClient(http, cfg.Retrieval.InterPro.Endpoint)
	}
	return c
}

// Request is the input of one job run.
type Request struct {
	// Identifiers are protein identifiers or FASTA headers. Duplicates are
	// dropped, keeping the first occurrence.
	Identifiers []string
	// Annotations are the requested annotation and group names. Nil selects
	// the configured defaults.
	Annotations []string
}

// Result is the annotation table produced by a run.
type Result struct {
	Columns []string
	Records []annotation.Record
	Report  *Report
}

// Job runs annotation requests against a fixed configuration.
type Job struct {
	cfg         *config.Config
	clients     Clients
	store       *cache.Store
	transformer *transform.Transformer
	logger      *zap.Logger
}

// NewJob validates cfg and builds a job. store may be nil to run without a
// cache.
func NewJob(cfg *config.Config, c Clients, store *cache.Store, logger *zap.Logger) (*Job, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.UniProt == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "a uniprot client is required")
	}
	binner, err := binning.NewBinner(binning.DefaultRanges, cfg.Binning.QuantileBins)
	if err != nil {
		return nil, err
	}
	return &Job{
		cfg:         cfg,
		clients:     c,
		store:       store,
		transformer: transform.New(binner, logger),
		logger:      logger.With(zap.String("component", "pipeline")),
	}, nil
}

// Run executes one annotation request. Unknown annotation names fail before
// any source is contacted. The returned error is reserved for configuration
// problems, cancellation and a primary source that could not run at all.
func (j *Job) Run(ctx context.Context, req Request) (*Result, error) {
	if j.cfg.Retrieval.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.cfg.Retrieval.Timeout)
		defer cancel()
	}

	report := newReport(uuid.NewString())
	ctx = logger.WithJobID(ctx, report.JobID)
	log := j.logger.With(zap.String("job_id", report.JobID))
	start := time.Now()

	ids := Dedupe(req.Identifiers)
	report.Identifiers = len(ids)
	if dropped := len(req.Identifiers) - len(ids); dropped > 0 {
		log.Info("dropped duplicate identifiers", zap.Int("duplicates", dropped))
	}

	var res *annotation.Resolution
	err := j.stage(ctx, report, StageResolve, func(context.Context) error {
		var err error
		res, err = annotation.Resolve(req.Annotations, j.cfg.Annotations.Defaults)
		return err
	})
	if err != nil {
		return nil, err
	}
	report.Resolution = res
	log.Info("annotation job started",
		zap.Int("identifiers", len(ids)),
		zap.Strings("annotations", res.Requested),
		zap.Bool("full_catalog_fallback", res.FullCatalogFallback),
	)

	var primary []annotation.Record
	err = j.stage(ctx, report, StageUniProt, func(ctx context.Context) error {
		r := retriever.NewUniProtRetriever(j.clients.UniProt, res.UniProt, j.cfg.Retrieval.UniProt.BatchSize, j.logger)
		var err error
		primary, err = j.retrieve(ctx, r, annotation.SourceUniProt, ids, res.UniProt, report)
		return err
	}, attribute.Int("identifiers", len(ids)))
	if err != nil {
		return nil, err
	}

	taxonomy, err := j.taxonomy(ctx, res, primary, report)
	if err != nil {
		return nil, err
	}
	signatures, err := j.signatures(ctx, res, primary, report)
	if err != nil {
		return nil, err
	}

	var records []annotation.Record
	_ = j.stage(ctx, report, StageMerge, func(context.Context) error {
		records = merge.Merge(primary, taxonomy, signatures)
		return nil
	})

	_ = j.stage(ctx, report, StageTransform, func(context.Context) error {
		records = j.transformer.Transform(records, res.LengthBinning)
		if j.cfg.Annotations.NoScores {
			records = transform.StripScores(records)
		}
		return nil
	})

	columns := res.OutputColumns(availableFields(records))
	report.Records = len(records)
	report.Columns = columns
	report.Duration = time.Since(start)

	fields := []zap.Field{
		zap.Int("records", len(records)),
		zap.Int("columns", len(columns)),
		zap.Int("failed_batches", len(report.Failures())),
		zap.Duration("duration", report.Duration),
	}
	if report.Degraded() {
		log.Warn("annotation job finished with failed batches", fields...)
	} else {
		log.Info("annotation job finished", fields...)
	}

	return &Result{Columns: columns, Records: records, Report: report}, nil
}

// taxonomy fetches the lineage of every distinct organism of primary.
func (j *Job) taxonomy(ctx context.Context, res *annotation.Resolution, primary []annotation.Record, report *Report) (merge.TaxonomyIndex, error) {
	if len(res.Taxonomy) == 0 {
		return nil, nil
	}
	if j.clients.Taxonomy == nil {
		j.logger.Warn("taxonomy annotations requested but the source is disabled",
			zap.Strings("annotations", res.Taxonomy))
		return nil, nil
	}

	counts, organisms := merge.OrganismCounts(primary)
	var index merge.TaxonomyIndex
	err := j.stage(ctx, report, StageTaxonomy, func(ctx context.Context) error {
		r := retriever.NewTaxonomyRetriever(j.clients.Taxonomy, res.Taxonomy, j.cfg.Retrieval.Taxonomy.BatchSize, j.logger)
		records, err := j.retrieve(ctx, r, annotation.SourceTaxonomy, organisms, res.Taxonomy, report)
		if err != nil {
			return err
		}
		index = merge.NewTaxonomyIndex(records)
		return nil
	}, attribute.Int("organisms", len(counts)))
	return index, j.secondary(ctx, annotation.SourceTaxonomy, err)
}

// signatures fetches InterPro matches for every primary record that has a
// sequence.
func (j *Job) signatures(ctx context.Context, res *annotation.Resolution, primary []annotation.Record, report *Report) ([]annotation.Record, error) {
	if len(res.InterPro) == 0 {
		return nil, nil
	}
	if j.clients.InterPro == nil {
		j.logger.Warn("interpro annotations requested but the source is disabled",
			zap.Strings("annotations", res.InterPro))
		return nil, nil
	}

	sequences := make(map[string]string, len(primary))
	keys := make([]string, 0, len(primary))
	for _, p := range primary {
		keys = append(keys, p.Identifier)
		if seq := p.Features.Value(annotation.Sequence); seq != "" {
			sequences[p.Identifier] = seq
		}
	}

	var records []annotation.Record
	err := j.stage(ctx, report, StageInterPro, func(ctx context.Context) error {
		r := retriever.NewInterProRetriever(j.clients.InterPro, res.InterPro, j.cfg.Retrieval.InterPro.BatchSize, j.logger).
			WithSequences(sequences)
		var err error
		records, err = j.retrieve(ctx, r, annotation.SourceInterPro, keys, res.InterPro, report)
		return err
	}, attribute.Int("sequences", len(sequences)))
	return records, j.secondary(ctx, annotation.SourceInterPro, err)
}

// secondary turns a whole-source failure of an optional source into a
// warning. Cancellation is still returned.
func (j *Job) secondary(ctx context.Context, source annotation.Source, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	j.logger.Warn("source failed, continuing without it",
		zap.String("source", string(source)),
		zap.Error(err),
	)
	return nil
}

// retrieve serves keys from the cache where the cached entry covers
// required, fetches the rest and writes non-placeholder records back. The
// records are returned in key order; keys the retriever skipped have none.
func (j *Job) retrieve(ctx context.Context, r retriever.Retriever, source annotation.Source, keys, required []string, report *Report) ([]annotation.Record, error) {
	sr := report.source(source)
	sr.Requested = len(keys)

	var hits []annotation.Record
	misses := keys
	if j.store != nil {
		h, m, err := j.store.Lookup(ctx, source, keys, required)
		if err != nil {
			j.logger.Warn("cache lookup failed, fetching every key",
				zap.String("source", string(source)),
				zap.Error(err),
			)
		} else {
			hits, misses = h, m
		}
	}
	sr.Cached = len(hits)

	result := &retriever.Result{}
	if len(misses) > 0 {
		var err error
		result, err = r.Fetch(ctx, misses)
		if err != nil {
			return nil, err
		}
	}
	sr.Fetched = len(result.Records) - result.Placeholders()
	sr.Failures = result.Failures
	sr.Skipped = result.Skipped

	if j.store != nil && len(result.Records) > 0 {
		j.writeBack(ctx, source, result)
	}

	byKey := make(map[string]annotation.Record, len(hits)+len(result.Records))
	for _, rec := range hits {
		byKey[rec.Identifier] = rec
	}
	for _, rec := range result.Records {
		if _, ok := byKey[rec.Identifier]; !ok {
			byKey[rec.Identifier] = rec
		}
	}
	out := make([]annotation.Record, 0, len(keys))
	for _, k := range keys {
		if rec, ok := byKey[k]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (j *Job) writeBack(ctx context.Context, source annotation.Source, result *retriever.Result) {
	keep := result.Records
	if len(result.Failures) > 0 {
		keep = make([]annotation.Record, 0, len(result.Records))
		for _, rec := range result.Records {
			if !result.Failed(rec.Identifier) {
				keep = append(keep, rec)
			}
		}
	}
	if len(keep) == 0 {
		return
	}
	if err := j.store.Put(ctx, source, keep); err != nil {
		j.logger.Warn("cache write failed",
			zap.String("source", string(source)),
			zap.Int("records", len(keep)),
			zap.Error(err),
		)
	}
}

func (j *Job) stage(ctx context.Context, report *Report, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	start := time.Now()
	err := observability.Stage(ctx, name, fn, append(attrs, attribute.String("job_id", report.JobID))...)
	report.Stages[name] = time.Since(start)
	return err
}

// availableFields returns every feature name present in records, in first
// seen order.
func availableFields(records []annotation.Record) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		for _, k := range r.Features.Keys() {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
