package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/internal/pipeline"
	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/cache"
	"github.com/ajitpratap0/protspace/pkg/clients"
	"github.com/ajitpratap0/protspace/pkg/config"
	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/logger"
	"github.com/ajitpratap0/protspace/pkg/metrics"
	"github.com/ajitpratap0/protspace/pkg/observability"
	"github.com/ajitpratap0/protspace/pkg/settings"
)

func newAnnotateCommand(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Fetch annotations for a list of proteins",
		Long: `Fetch annotations for the proteins listed in --input and write them as an
annotation table, or as a bundle when projection tables are given.

Identifiers are read from a text file (one per line, '#' comments), a FASTA
file (header lines) or the identifier column of a parquet file. Without
--input the identifiers of --projections-data are used.

Example:
  protspace annotate -i proteins.fasta -a default,pfam,genus \
    --projections-metadata meta.parquet --projections-data data.parquet \
    -o out.parquetbundle`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnotate(cmd, stdout)
		},
	}

	f := cmd.Flags()
	f.StringP("input", "i", "", "Identifier file: text, FASTA or parquet")
	f.StringP("output", "o", "", "Output path: .parquetbundle, .parquet or .csv (required)")
	f.StringSliceP("annotations", "a", nil, "Annotation and group names (default: configured defaults)")
	f.String("projections-metadata", "", "Projections metadata parquet file")
	f.String("projections-data", "", "Projections data parquet file")
	f.String("settings", "", "Visualisation settings: JSON file or inline JSON object")
	f.Bool("no-scores", false, "Strip score and evidence suffixes from values")
	f.Bool("cache", false, "Enable the annotation cache")
	f.String("cache-driver", "", "Cache driver (sqlite, postgres, mysql)")
	f.String("cache-dsn", "", "Cache data source name")
	f.Int("quantile-bins", 0, "Number of length quantile bins")
	f.String("compression", "", "Parquet compression (snappy, zstd, gzip, none)")
	f.String("publish", "", "Upload the output to s3://bucket/key or gs://bucket/object")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	f.String("trace-output", "", "Write OpenTelemetry spans to this file")
	f.Duration("timeout", 0, "Job timeout")
	f.String("report", "", "Write the job report as JSON to this file")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// applyAnnotateFlags overlays the flags and PROTSPACE_ variables that were
// set onto cfg.
func applyAnnotateFlags(v *viper.Viper, cfg *config.Config) {
	if v.IsSet("no-scores") {
		cfg.Annotations.NoScores = v.GetBool("no-scores")
	}
	if v.IsSet("cache") {
		cfg.Cache.Enabled = v.GetBool("cache")
	}
	if s := v.GetString("cache-driver"); s != "" {
		cfg.Cache.Driver = s
	}
	if s := v.GetString("cache-dsn"); s != "" {
		cfg.Cache.DSN = s
	}
	if n := v.GetInt("quantile-bins"); n != 0 {
		cfg.Binning.QuantileBins = n
	}
	if s := v.GetString("compression"); s != "" {
		cfg.Output.Compression = s
	}
	if s := v.GetString("publish"); s != "" {
		cfg.Output.PublishURI = s
	}
	if s := v.GetString("metrics-addr"); s != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = s
	}
	if s := v.GetString("trace-output"); s != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.OutputPath = s
	}
	if d := v.GetDuration("timeout"); d > 0 {
		cfg.Retrieval.Timeout = d
	}
}

func runAnnotate(cmd *cobra.Command, stdout io.Writer) error {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	applyAnnotateFlags(v, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid logging configuration")
	}
	defer func() { _ = logger.Sync() }()
	log := logger.With(zap.String("component", "protspace-cli"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := observability.Init(cfg.Tracing)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address); err != nil {
				log.Warn("metrics endpoint stopped", zap.String("address", cfg.Metrics.Address), zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("address", cfg.Metrics.Address))
	}

	out := pipeline.Output{
		Path:        v.GetString("output"),
		Compression: cfg.Output.Compression,
		PublishURI:  cfg.Output.PublishURI,
		Publish:     cfg.Output.Publish,
	}
	metaPath, dataPath := v.GetString("projections-metadata"), v.GetString("projections-data")
	if (metaPath == "") != (dataPath == "") {
		return errors.New(errors.ErrorTypeValidation, "--projections-metadata and --projections-data must be given together")
	}
	if metaPath != "" {
		out.ProjectionsMetadata, out.ProjectionsData, err = pipeline.ReadProjections(metaPath, dataPath)
		if err != nil {
			return err
		}
	}
	if arg := v.GetString("settings"); arg != "" {
		out.Settings, err = settings.Load(arg)
		if err != nil {
			return err
		}
	}

	input := v.GetString("input")
	if input == "" {
		input = dataPath
	}
	if input == "" {
		return errors.New(errors.ErrorTypeValidation, "--input is required without --projections-data")
	}
	ids, err := pipeline.ReadIdentifiers(ctx, input)
	if err != nil {
		return err
	}

	requested := stringList(v, "annotations")

	httpClient := clients.NewHTTPClient(&cfg.Retrieval.HTTP, log)
	defer func() { _ = httpClient.Close() }()

	var store *cache.Store
	if cfg.Cache.Enabled {
		store, err = cache.Open(ctx, cfg.Cache.Driver, cfg.Cache.DSN, log)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
	}

	job, err := pipeline.NewJob(cfg, pipeline.NewRESTClients(cfg, httpClient), store, log)
	if err != nil {
		return err
	}
	result, err := job.Run(ctx, pipeline.Request{Identifiers: ids, Annotations: requested})
	if err != nil {
		return err
	}

	written, err := pipeline.WriteOutput(ctx, result, out, log)
	if err != nil {
		return err
	}

	if path := v.GetString("report"); path != "" {
		if err := writeReport(path, result.Report); err != nil {
			return err
		}
	}
	printSummary(stdout, result.Report, written)
	return nil
}

func writeReport(path string, report *pipeline.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write report").WithDetail("path", path)
	}
	return nil
}

func printSummary(w io.Writer, report *pipeline.Report, written *pipeline.Written) {
	fmt.Fprintf(w, "Wrote %s (%s, %d bytes)\n", written.Path, written.Format, written.Bytes)
	if written.Published != nil {
		fmt.Fprintf(w, "Published to %s\n", written.Published)
	}
	fmt.Fprintf(w, "Proteins: %d, columns: %d\n", report.Records, len(report.Columns)-1)
	for _, f := range report.Failures() {
		fmt.Fprintf(w, "Failed: %s\n", f.Error())
	}
	for _, source := range annotation.Sources {
		if s, ok := report.Sources[source]; ok && len(s.Skipped) > 0 {
			fmt.Fprintf(w, "Skipped by %s: %d\n", source, len(s.Skipped))
		}
	}
}
