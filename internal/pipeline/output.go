package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/pkg/bundle"
	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/metrics"
	"github.com/ajitpratap0/protspace/pkg/observability"
	"github.com/ajitpratap0/protspace/pkg/publish"
	"github.com/ajitpratap0/protspace/pkg/settings"
	"github.com/ajitpratap0/protspace/pkg/table"
)

// Format is the kind of file an Output produces.
type Format string

// Output formats.
const (
	FormatBundle  Format = "bundle"
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
)

// Output describes where and how a Result is written.
type Output struct {
	Path string
	// ProjectionsMetadata and ProjectionsData are the encoded projection
	// tables. When both are set a bundle is written, otherwise the
	// annotation table is written on its own.
	ProjectionsMetadata []byte
	ProjectionsData     []byte
	// Settings is stored in the bundle when non-nil.
	Settings    settings.Settings
	Compression string
	// PublishURI, when set, receives a copy of the written file.
	PublishURI string
	Publish    publish.Options
}

// Format returns the format Write will produce.
func (o Output) Format() Format {
	if o.ProjectionsMetadata != nil && o.ProjectionsData != nil {
		return FormatBundle
	}
	if strings.EqualFold(filepath.Ext(o.Path), ".csv") {
		return FormatCSV
	}
	return FormatParquet
}

// Written describes a finished output.
type Written struct {
	Path      string
	Format    Format
	Bytes     int64
	Published *publish.Location
}

// WriteOutput writes result according to out and publishes it when a URI
// is configured. The result report gets a memory sample afterwards.
func WriteOutput(ctx context.Context, result *Result, out Output, logger *zap.Logger) (*Written, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out.Path == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "output path is required")
	}
	format := out.Format()
	if format != FormatBundle && out.Settings != nil {
		logger.Warn("settings are only stored in bundles, ignoring them", zap.String("path", out.Path))
	}

	w := &Written{Path: out.Path, Format: format}
	err := observability.Stage(ctx, StageWrite, func(ctx context.Context) error {
		if err := write(result, out, format); err != nil {
			return err
		}
		info, err := os.Stat(out.Path)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to stat output").WithDetail("path", out.Path)
		}
		w.Bytes = info.Size()
		return nil
	}, attribute.String("format", string(format)), attribute.String("path", out.Path))
	if err != nil {
		return nil, err
	}
	logger.Info("output written",
		zap.String("path", out.Path),
		zap.String("format", string(format)),
		zap.Int64("bytes", w.Bytes),
	)

	if out.PublishURI != "" {
		loc, err := publish.File(ctx, out.Path, out.PublishURI, out.Publish, logger)
		if err != nil {
			return nil, err
		}
		w.Published = &loc
	}

	if result.Report != nil {
		result.Report.SampleMemory("pipeline")
	}
	return w, nil
}

func write(result *Result, out Output, format Format) error {
	opts := table.Options{Compression: out.Compression}
	switch format {
	case FormatBundle:
		annotations, err := table.EncodeAnnotations(result.Columns, result.Records, opts)
		if err != nil {
			return err
		}
		parts := [][]byte{annotations, out.ProjectionsMetadata, out.ProjectionsData}
		for i, p := range parts {
			metrics.BundleBytes.WithLabelValues(bundle.CoreFiles[i]).Set(float64(len(p)))
		}
		return bundle.WriteFile(out.Path, parts, out.Settings, opts)
	case FormatCSV:
		return writeFile(out.Path, func(f *os.File) error {
			return table.WriteCSV(f, result.Columns, result.Records)
		})
	default:
		return writeFile(out.Path, func(f *os.File) error {
			return table.WriteAnnotations(f, result.Columns, result.Records, opts)
		})
	}
}

func writeFile(path string, fn func(*os.File) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output").WithDetail("path", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close output")
		}
	}()
	return fn(f)
}

// ReadProjections reads the projections metadata and data tables from
// their files.
func ReadProjections(metadataPath, dataPath string) (metadata, data []byte, err error) {
	metadata, err = os.ReadFile(metadataPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read projections metadata").
			WithDetail("path", metadataPath)
	}
	data, err = os.ReadFile(dataPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read projections data").
			WithDetail("path", dataPath)
	}
	return metadata, data, nil
}
