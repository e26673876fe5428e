// Package config provides the configuration of a protspace annotation job.
//
// The configuration is organized into sections:
//   - Annotations: default annotation list and score handling
//   - Retrieval: service endpoints, batch sizes and HTTP resilience
//   - Binning: length categories
//   - Cache: persistent annotation cache
//   - Output: bundle compression and publishing
//   - Logging, Metrics, Tracing: observability
//
// Example usage:
//
//	cfg := config.Default()
//	if err := config.Load("protspace.yaml", cfg); err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"time"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/binning"
	"github.com/ajitpratap0/protspace/pkg/cache"
	"github.com/ajitpratap0/protspace/pkg/clients"
	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/logger"
	"github.com/ajitpratap0/protspace/pkg/observability"
	"github.com/ajitpratap0/protspace/pkg/publish"
	"github.com/ajitpratap0/protspace/pkg/retriever"
	"github.com/ajitpratap0/protspace/pkg/table"
)

// Config is the complete job configuration.
type Config struct {
	Annotations AnnotationsConfig           `yaml:"annotations" json:"annotations"`
	Retrieval   RetrievalConfig             `yaml:"retrieval" json:"retrieval"`
	Binning     BinningConfig               `yaml:"binning" json:"binning"`
	Cache       CacheConfig                 `yaml:"cache" json:"cache"`
	Output      OutputConfig                `yaml:"output" json:"output"`
	Logging     logger.Config               `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig               `yaml:"metrics" json:"metrics"`
	Tracing     observability.TracingConfig `yaml:"tracing" json:"tracing"`
}

// AnnotationsConfig selects annotations when none are requested explicitly.
type AnnotationsConfig struct {
	// Defaults are used in default mode; group names are allowed.
	Defaults []string `yaml:"defaults" json:"defaults"`
	// NoScores strips "|score" and "|evidence" suffixes from the output.
	NoScores bool `yaml:"no_scores" json:"no_scores"`
}

// SourceConfig configures one remote source.
type SourceConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
}

// RetrievalConfig configures the remote sources and their HTTP client.
type RetrievalConfig struct {
	UniProt  SourceConfig       `yaml:"uniprot" json:"uniprot"`
	Taxonomy SourceConfig       `yaml:"taxonomy" json:"taxonomy"`
	InterPro SourceConfig       `yaml:"interpro" json:"interpro"`
	HTTP     clients.HTTPConfig `yaml:"http" json:"http"`
	Timeout  time.Duration      `yaml:"timeout" json:"timeout"`
}

// BinningConfig configures length categories.
type BinningConfig struct {
	QuantileBins int `yaml:"quantile_bins" json:"quantile_bins"`
}

// CacheConfig configures the persistent annotation cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Driver  string `yaml:"driver" json:"driver"`
	DSN     string `yaml:"dsn" json:"dsn"`
}

// OutputConfig configures written files.
type OutputConfig struct {
	// Compression is the parquet codec: snappy, gzip, zstd or none.
	Compression string `yaml:"compression" json:"compression"`
	// PublishURI, when set, receives the finished bundle.
	PublishURI string          `yaml:"publish_uri" json:"publish_uri"`
	Publish    publish.Options `yaml:"publish" json:"publish"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Annotations: AnnotationsConfig{
			Defaults: []string{"default"},
		},
		Retrieval: RetrievalConfig{
			UniProt: SourceConfig{
				Enabled:   true,
				Endpoint:  retriever.DefaultUniProtURL,
				BatchSize: retriever.DefaultBatchSize,
			},
			Taxonomy: SourceConfig{
				Enabled:   true,
				Endpoint:  retriever.DefaultUniProtURL,
				BatchSize: retriever.DefaultBatchSize,
			},
			InterPro: SourceConfig{
				Enabled:   true,
				Endpoint:  retriever.DefaultInterProURL,
				BatchSize: retriever.DefaultBatchSize,
			},
			HTTP:    *clients.DefaultHTTPConfig(),
			Timeout: 30 * time.Minute,
		},
		Binning: BinningConfig{
			QuantileBins: binning.DefaultQuantileBins,
		},
		Cache: CacheConfig{
			Enabled: false,
			Driver:  cache.DriverSQLite,
			DSN:     "protspace-cache.db",
		},
		Output: OutputConfig{
			Compression: "snappy",
		},
		Logging: logger.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Validate checks the configuration for values a job cannot run with.
func (c *Config) Validate() error {
	for _, name := range annotation.ExpandGroups(c.Annotations.Defaults) {
		if !annotation.IsKnown(name) {
			return errors.Wrap(annotation.ErrUnknownAnnotation, errors.ErrorTypeConfig,
				"annotations.defaults names an unknown annotation").WithDetail("annotation", name)
		}
	}

	sources := map[string]SourceConfig{
		"uniprot":  c.Retrieval.UniProt,
		"taxonomy": c.Retrieval.Taxonomy,
		"interpro": c.Retrieval.InterPro,
	}
	for name, s := range sources {
		if s.BatchSize < 0 {
			return errors.Newf(errors.ErrorTypeConfig, "retrieval.%s.batch_size must not be negative", name)
		}
	}
	if !c.Retrieval.UniProt.Enabled {
		return errors.New(errors.ErrorTypeConfig, "retrieval.uniprot is the primary source and cannot be disabled")
	}
	if c.Retrieval.HTTP.MaxAttempts < 1 {
		return errors.New(errors.ErrorTypeConfig, "retrieval.http.max_attempts must be at least 1")
	}
	if c.Retrieval.HTTP.RateLimit < 0 {
		return errors.New(errors.ErrorTypeConfig, "retrieval.http.rate_limit must not be negative")
	}
	if c.Binning.QuantileBins < 1 {
		return errors.New(errors.ErrorTypeConfig, "binning.quantile_bins must be at least 1")
	}
	if c.Cache.Enabled {
		switch c.Cache.Driver {
		case cache.DriverSQLite, cache.DriverPostgres, cache.DriverMySQL:
		default:
			return errors.Newf(errors.ErrorTypeConfig, "unsupported cache driver %q", c.Cache.Driver)
		}
		if c.Cache.DSN == "" {
			return errors.New(errors.ErrorTypeConfig, "cache.dsn is required when the cache is enabled")
		}
	}
	if _, err := table.ParseCompression(c.Output.Compression); err != nil {
		return err
	}
	if c.Output.PublishURI != "" {
		if _, err := publish.ParseURI(c.Output.PublishURI); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid output.publish_uri")
		}
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return errors.New(errors.ErrorTypeConfig, "metrics.address is required when metrics are enabled")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return errors.New(errors.ErrorTypeConfig, "tracing.sampling_rate must be between 0 and 1")
	}
	return nil
}
