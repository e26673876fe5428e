package table

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/settings"
)

func records() []annotation.Record {
	return []annotation.Record{
		{Identifier: "P12345", Features: annotation.FromPairs(
			annotation.Pair{Name: "reviewed", Value: "Swiss-Prot"},
			annotation.Pair{Name: "pfam", Value: ""},
		)},
		{Identifier: "Q99999", Features: annotation.FromPairs(
			annotation.Pair{Name: "reviewed", Value: "TrEMBL"},
		)},
	}
}

func TestAnnotationsRoundTrip(t *testing.T) {
	columns := []string{annotation.IdentifierColumn, "reviewed", "pfam"}

	for _, codec := range []string{"", "zstd", "gzip", "none"} {
		t.Run("codec="+codec, func(t *testing.T) {
			data, err := EncodeAnnotations(columns, records(), Options{Compression: codec})
			require.NoError(t, err)
			assert.Equal(t, []byte("PAR1"), data[:4])

			cols, back, err := ReadAnnotations(context.Background(), data)
			require.NoError(t, err)
			assert.Equal(t, columns, cols)
			require.Len(t, back, 2)
			assert.Equal(t, "P12345", back[0].Identifier)
			assert.Equal(t, "Swiss-Prot", back[0].Features.Value("reviewed"))

			v, ok := back[0].Features.Get("pfam")
			assert.True(t, ok, "present-empty survives as empty string")
			assert.Equal(t, "", v)
			assert.False(t, back[1].Features.Has("pfam"), "absent survives as null")
		})
	}
}

func TestWriteAnnotationsRequiresIdentifierFirst(t *testing.T) {
	_, err := EncodeAnnotations([]string{"reviewed"}, records(), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestEmptyTable(t *testing.T) {
	data, err := EncodeAnnotations([]string{annotation.IdentifierColumn}, nil, Options{})
	require.NoError(t, err)

	tbl, err := Read(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.NumRows())
	assert.Equal(t, []string{annotation.IdentifierColumn}, tbl.Columns)
}

func TestReadColumn(t *testing.T) {
	data, err := EncodeAnnotations([]string{annotation.IdentifierColumn, "reviewed"}, records(), Options{})
	require.NoError(t, err)

	ids, err := ReadColumn(context.Background(), data, annotation.IdentifierColumn)
	require.NoError(t, err)
	assert.Equal(t, []string{"P12345", "Q99999"}, ids)

	_, err = ReadColumn(context.Background(), data, "x")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	_, err = Read(context.Background(), []byte("not parquet"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeFormat))
}

func TestSettingsRoundTrip(t *testing.T) {
	s := settings.Settings{
		"reviewed": {
			Colors: map[string]string{"Swiss-Prot": "#FF0000"},
			Shapes: map[string]settings.Shape{"Swiss-Prot": settings.Square},
		},
	}
	data, err := EncodeSettings(s, Options{})
	require.NoError(t, err)

	tbl, err := Read(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []string{SettingsColumn}, tbl.Columns)
	assert.Equal(t, 1, tbl.NumRows())

	back, err := DecodeSettings(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{annotation.IdentifierColumn, "reviewed", "pfam"}, records()))
	assert.Equal(t, "identifier,reviewed,pfam\nP12345,Swiss-Prot,\nQ99999,TrEMBL,\n", buf.String())
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"", "snappy", "ZSTD", "gzip", "none", "uncompressed"} {
		_, err := ParseCompression(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseCompression("lzo")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
