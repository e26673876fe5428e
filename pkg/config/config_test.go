package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown default annotation", func(c *Config) { c.Annotations.Defaults = []string{"bogus"} }, true},
		{"group default", func(c *Config) { c.Annotations.Defaults = []string{"interpro", "reviewed"} }, false},
		{"negative batch", func(c *Config) { c.Retrieval.InterPro.BatchSize = -1 }, true},
		{"uniprot disabled", func(c *Config) { c.Retrieval.UniProt.Enabled = false }, true},
		{"no attempts", func(c *Config) { c.Retrieval.HTTP.MaxAttempts = 0 }, true},
		{"zero bins", func(c *Config) { c.Binning.QuantileBins = 0 }, true},
		{"bad cache driver", func(c *Config) { c.Cache.Enabled = true; c.Cache.Driver = "oracle" }, true},
		{"cache without dsn", func(c *Config) { c.Cache.Enabled = true; c.Cache.DSN = "" }, true},
		{"disabled cache ignores driver", func(c *Config) { c.Cache.Driver = "oracle" }, false},
		{"bad compression", func(c *Config) { c.Output.Compression = "lzo" }, true},
		{"bad publish uri", func(c *Config) { c.Output.PublishURI = "ftp://x/y" }, true},
		{"good publish uri", func(c *Config) { c.Output.PublishURI = "gs://bucket/run.parquetbundle" }, false},
		{"metrics without address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Address = "" }, true},
		{"sampling out of range", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUnknownAnnotationIsMatchable(t *testing.T) {
	cfg := Default()
	cfg.Annotations.Defaults = []string{"nope"}
	assert.ErrorIs(t, cfg.Validate(), annotation.ErrUnknownAnnotation)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("PS_SET", "value")
	t.Setenv("PS_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a ${PS_SET} b", "a value b"},
		{"${PS_SET}${PS_SET}", "valuevalue"},
		{"${PS_MISSING}", ""},
		{"${PS_MISSING:-fallback}", "fallback"},
		{"${PS_EMPTY:-fallback}", "fallback"},
		{"${PS_SET:-fallback}", "value"},
		{"unterminated ${PS_SET", "unterminated ${PS_SET"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, substituteEnvVars(tt.in), tt.in)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retrieval:
  uniprot:
    batch_size: 25
  http:
    request_timeout: 45s
logging:
  level: debug
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Retrieval.UniProt.BatchSize)
	assert.True(t, cfg.Retrieval.UniProt.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Retrieval.HTTP.RequestTimeout)
	assert.Equal(t, 3, cfg.Retrieval.HTTP.MaxAttempts)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("annotations: [unclosed"), 0o600))
	_, err = LoadFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Annotations.NoScores = true
	cfg.Retrieval.HTTP.CircuitTimeout = 90 * time.Second
	require.NoError(t, Save(path, cfg))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, loaded.Annotations.NoScores)
	assert.Equal(t, 90*time.Second, loaded.Retrieval.HTTP.CircuitTimeout)
}
