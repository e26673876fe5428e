package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"empty level", Config{}, false},
		{"development", Config{Level: "debug", Development: true}, false},
		{"bad level", Config{Level: "loud"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestWithContext(t *testing.T) {
	require.NoError(t, Init(Config{Level: "error"}))

	ctx := WithSource(WithJobID(context.Background(), "job-1"), "uniprot")
	assert.Equal(t, "uniprot", ctx.Value(SourceKey))
	assert.Equal(t, "job-1", ctx.Value(JobIDKey))
	assert.NotNil(t, WithContext(ctx))
	assert.NotNil(t, Get())
}
