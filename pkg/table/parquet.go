// Package table encodes annotation records and bundle settings as parquet
// tables and reads parquet tables back.
package table

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/errors"
)

// Options controls parquet encoding.
type Options struct {
	// Compression is one of snappy, zstd, gzip or none. Empty means snappy.
	Compression string
}

// ParseCompression maps a codec name to its parquet codec. Empty means
// snappy.
func ParseCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, errors.Newf(errors.ErrorTypeConfig, "unsupported compression %q", name)
	}
}

func (o Options) codec() compress.Compression {
	c, err := ParseCompression(o.Compression)
	if err != nil {
		return compress.Codecs.Snappy
	}
	return c
}

// stringSchema builds a schema of string columns. Only the first column is
// non-nullable when it is the identifier column.
func stringSchema(columns []string) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, c := range columns {
		fields[i] = arrow.Field{
			Name:     c,
			Type:     arrow.BinaryTypes.String,
			Nullable: !(i == 0 && c == annotation.IdentifierColumn),
		}
	}
	return arrow.NewSchema(fields, nil)
}

// WriteAnnotations writes records as a parquet table with the given
// columns. The first column must be the identifier column. A feature that
// is absent from a record is written as null; a present empty value is
// written as an empty string.
func WriteAnnotations(w io.Writer, columns []string, records []annotation.Record, opts Options) error {
	if len(columns) == 0 || columns[0] != annotation.IdentifierColumn {
		return errors.New(errors.ErrorTypeValidation, "first column must be "+annotation.IdentifierColumn).
			WithDetail("columns", columns)
	}

	schema := stringSchema(columns)
	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()

	for _, r := range records {
		b.Field(0).(*array.StringBuilder).Append(r.Identifier)
		for i, c := range columns[1:] {
			sb := b.Field(i + 1).(*array.StringBuilder)
			if v, ok := r.Features.Get(c); ok {
				sb.Append(v)
			} else {
				sb.AppendNull()
			}
		}
	}

	return writeRecord(w, schema, b, opts, pool)
}

// EncodeAnnotations is WriteAnnotations into memory.
func EncodeAnnotations(columns []string, records []annotation.Record, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteAnnotations(&buf, columns, records, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRecord(w io.Writer, schema *arrow.Schema, b *array.RecordBuilder, opts Options, pool memory.Allocator) error {
	props := parquet.NewWriterProperties(
		parquet.WithCompression(opts.codec()),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(pool),
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(schema, w, props, arrowProps)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to create parquet writer")
	}

	rec := b.NewRecord()
	defer rec.Release()

	if rec.NumRows() > 0 {
		if err := fw.Write(rec); err != nil {
			_ = fw.Close()
			return errors.Wrap(err, errors.ErrorTypeData, "failed to write parquet record")
		}
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to close parquet writer")
	}
	return nil
}

// Table is a parquet table read fully into memory as strings. A nil cell
// is null.
type Table struct {
	Columns []string
	Rows    [][]*string
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return len(t.Rows) }

// Column returns the values of one column, nulls as "".
func (t *Table) Column(name string) ([]string, bool) {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if row[idx] != nil {
			out[i] = *row[idx]
		}
	}
	return out, true
}

// Read decodes a parquet table. Non-string columns are rendered with the
// arrow value formatter.
func Read(ctx context.Context, data []byte) (*Table, error) {
	fr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to open parquet data")
	}
	defer fr.Close()

	pool := memory.NewGoAllocator()
	ar, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{}, pool)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to create arrow reader")
	}

	tbl, err := ar.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to read parquet table")
	}
	defer tbl.Release()

	n := int(tbl.NumRows())
	cols := int(tbl.NumCols())
	t := &Table{
		Columns: make([]string, cols),
		Rows:    make([][]*string, n),
	}
	for i := range t.Rows {
		t.Rows[i] = make([]*string, cols)
	}

	for c := 0; c < cols; c++ {
		col := tbl.Column(c)
		t.Columns[c] = col.Name()
		row := 0
		for _, chunk := range col.Data().Chunks() {
			for i := 0; i < chunk.Len(); i++ {
				if !chunk.IsNull(i) {
					v := cellString(chunk, i)
					t.Rows[row][c] = &v
				}
				row++
			}
		}
	}
	return t, nil
}

func cellString(arr arrow.Array, i int) string {
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return string(a.Value(i))
	default:
		return arr.ValueStr(i)
	}
}

// ReadAnnotations decodes a table written by WriteAnnotations. Null cells
// become absent features.
func ReadAnnotations(ctx context.Context, data []byte) ([]string, []annotation.Record, error) {
	t, err := Read(ctx, data)
	if err != nil {
		return nil, nil, err
	}
	if len(t.Columns) == 0 {
		return nil, nil, errors.New(errors.ErrorTypeFormat, "annotation table has no columns")
	}

	records := make([]annotation.Record, len(t.Rows))
	for i, row := range t.Rows {
		f := annotation.NewFeatures(len(t.Columns) - 1)
		for c := 1; c < len(t.Columns); c++ {
			if row[c] != nil {
				f.Set(t.Columns[c], *row[c])
			}
		}
		var id string
		if row[0] != nil {
			id = *row[0]
		}
		records[i] = annotation.Record{Identifier: id, Features: f}
	}
	return t.Columns, records, nil
}

// ReadColumn returns the values of one named column.
func ReadColumn(ctx context.Context, data []byte, name string) ([]string, error) {
	t, err := Read(ctx, data)
	if err != nil {
		return nil, err
	}
	values, ok := t.Column(name)
	if !ok {
		return nil, errors.New(errors.ErrorTypeNotFound, "column not found").
			WithDetail("column", name).
			WithDetail("columns", t.Columns)
	}
	return values, nil
}
