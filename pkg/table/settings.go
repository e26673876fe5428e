package table

import (
	"bytes"
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/settings"
)

// SettingsColumn is the single column of the settings table.
const SettingsColumn = "settings_json"

// EncodeSettings stores s as a one-row parquet table whose only cell is the
// JSON-encoded settings.
func EncodeSettings(s settings.Settings, opts Options) ([]byte, error) {
	payload, err := s.Marshal()
	if err != nil {
		return nil, err
	}

	schema := arrow.NewSchema([]arrow.Field{
		{Name: SettingsColumn, Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).Append(string(payload))

	var buf bytes.Buffer
	if err := writeRecord(&buf, schema, b, opts, pool); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSettings parses a settings table written by EncodeSettings.
func DecodeSettings(ctx context.Context, data []byte) (settings.Settings, error) {
	values, err := ReadColumn(ctx, data, SettingsColumn)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.New(errors.ErrorTypeFormat, "settings table is empty")
	}
	return settings.Parse([]byte(values[0]))
}
