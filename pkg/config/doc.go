// Package config loads protspace job configuration from YAML.
//
// # Loading
//
// Files are plain YAML. Any ${NAME} is replaced with the environment
// variable NAME before parsing, and ${NAME:-value} falls back to value
// when NAME is unset:
//
//	cache:
//	  enabled: true
//	  driver: postgres
//	  dsn: ${PROTSPACE_CACHE_DSN}
//	output:
//	  publish_uri: s3://${BUCKET:-protspace-results}/runs/latest.parquetbundle
//
// LoadFile starts from Default, so a file only needs the keys it changes.
// Command-line flags bound through viper override file values.
//
// # Sections
//
//	annotations  default annotation list, no_scores
//	retrieval    endpoints and batch sizes per source, HTTP client settings
//	binning      number of quantile bins
//	cache        driver (sqlite, postgres, mysql) and DSN
//	output       parquet compression, publish target
//	logging      zap level, encoding, output paths
//	metrics      Prometheus listen address
//	tracing      OpenTelemetry sampling and output
package config
