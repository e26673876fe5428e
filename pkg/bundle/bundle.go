// Package bundle reads and writes parquetbundle files: three parquet tables
// and an optional settings table concatenated with a fixed delimiter.
package bundle

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/settings"
	"github.com/ajitpratap0/protspace/pkg/table"
)

// Delimiter separates the parts of a bundle.
const Delimiter = "---PARQUET_DELIMITER---"

// Canonical part file names, in bundle order.
const (
	AnnotationsFile = "selected_annotations.parquet"
	MetadataFile    = "projections_metadata.parquet"
	ProjectionsFile = "projections_data.parquet"
	SettingsFile    = "settings.parquet"
)

// CoreFiles lists the required parts in order.
var CoreFiles = [3]string{AnnotationsFile, MetadataFile, ProjectionsFile}

// ErrMalformedBundle is wrapped by every structural decode failure.
var ErrMalformedBundle = errors.New(errors.ErrorTypeFormat, "malformed bundle")

var delimiter = []byte(Delimiter)

// Bundle is a decoded bundle. Parts alias the decoded input.
type Bundle struct {
	Parts [3][]byte
	// Settings is nil when the bundle has no settings part.
	Settings settings.Settings
	// RawSettings holds the settings part bytes as stored, if any.
	RawSettings []byte
}

// HasSettings reports whether the bundle carried a settings part.
func (b *Bundle) HasSettings() bool {
	return len(b.RawSettings) > 0
}

// Split cuts data at every delimiter and checks the part count.
func Split(data []byte) ([][]byte, error) {
	parts := bytes.Split(data, delimiter)
	if len(parts) < 3 || len(parts) > 4 {
		return nil, errors.Wrap(ErrMalformedBundle, errors.ErrorTypeFormat,
			fmt.Sprintf("expected 3 or 4 parts, found %d", len(parts))).
			WithDetail("parts", len(parts))
	}
	return parts, nil
}

// Encode writes the three tables and, when s is non-nil, a settings part.
// Tables are written byte-for-byte and must not contain the delimiter.
func Encode(w io.Writer, tables [][]byte, s settings.Settings, opts table.Options) error {
	if len(tables) != 3 {
		return errors.New(errors.ErrorTypeValidation,
			fmt.Sprintf("a bundle needs exactly 3 tables, got %d", len(tables)))
	}
	for i, t := range tables {
		if bytes.Contains(t, delimiter) {
			return errors.New(errors.ErrorTypeValidation, "table contains the bundle delimiter").
				WithDetail("part", CoreFiles[i])
		}
	}

	var settingsPart []byte
	if s != nil {
		var err error
		settingsPart, err = encodeSettings(s, opts)
		if err != nil {
			return err
		}
	}

	parts := append([][]byte{}, tables...)
	if settingsPart != nil {
		parts = append(parts, settingsPart)
	}
	return writeParts(w, parts)
}

// encodeSettings encodes the settings part. Annotation values are free
// text, so the encoded part is checked for the delimiter like the tables.
func encodeSettings(s settings.Settings, opts table.Options) ([]byte, error) {
	part, err := table.EncodeSettings(s, opts)
	if err != nil {
		return nil, err
	}
	if bytes.Contains(part, delimiter) {
		return nil, errors.New(errors.ErrorTypeValidation, "settings contain the bundle delimiter").
			WithDetail("part", SettingsFile)
	}
	return part, nil
}

func writeParts(w io.Writer, parts [][]byte) error {
	for i, p := range parts {
		if i > 0 {
			if _, err := w.Write(delimiter); err != nil {
				return errors.Wrap(err, errors.ErrorTypeFile, "failed to write delimiter")
			}
		}
		if _, err := w.Write(p); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write bundle part")
		}
	}
	return nil
}

// Decode splits data and parses the settings part when present.
func Decode(ctx context.Context, data []byte) (*Bundle, error) {
	parts, err := Split(data)
	if err != nil {
		return nil, err
	}

	b := &Bundle{}
	copy(b.Parts[:], parts[:3])
	if len(parts) == 4 && len(parts[3]) > 0 {
		b.RawSettings = parts[3]
		s, err := table.DecodeSettings(ctx, parts[3])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to decode settings part")
		}
		b.Settings = s
	}
	return b, nil
}

// ReplaceSettings returns data with its settings part replaced (or added).
// The three tables are copied byte-for-byte.
func ReplaceSettings(data []byte, s settings.Settings, opts table.Options) ([]byte, error) {
	parts, err := Split(data)
	if err != nil {
		return nil, err
	}
	settingsPart, err := encodeSettings(s, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + len(settingsPart))
	if err := writeParts(&buf, append(parts[:3:3], settingsPart)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
