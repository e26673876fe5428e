package bundle

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/settings"
	"github.com/ajitpratap0/protspace/pkg/table"
)

// ReadFile loads and decodes the bundle at path.
func ReadFile(ctx context.Context, path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read bundle").
			WithDetail("path", path)
	}
	return Decode(ctx, data)
}

// WriteFile encodes a bundle to path, creating parent directories. The
// bundle is encoded in memory first so a rejected part leaves path as it was.
func WriteFile(path string, tables [][]byte, s settings.Settings, opts table.Options) error {
	var buf bytes.Buffer
	if err := Encode(&buf, tables, s, opts); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create bundle directory")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write bundle").
			WithDetail("path", path)
	}
	return nil
}

// ReplaceSettingsFile writes the bundle at in to out with its settings part
// replaced. in and out may be the same path.
func ReplaceSettingsFile(in, out string, s settings.Settings, opts table.Options) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to read bundle").
			WithDetail("path", in)
	}
	updated, err := ReplaceSettings(data, s, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory")
	}
	if err := os.WriteFile(out, updated, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write bundle").
			WithDetail("path", out)
	}
	return nil
}

// Extract writes each non-empty part of data to dir under its canonical
// name and returns the paths written.
func Extract(data []byte, dir string) ([]string, error) {
	parts, err := Split(data)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create extraction directory")
	}

	names := append(CoreFiles[:], SettingsFile)
	var written []string
	for i, p := range parts {
		if len(p) == 0 {
			continue
		}
		path := filepath.Join(dir, names[i])
		if err := os.WriteFile(path, p, 0o644); err != nil {
			return written, errors.Wrap(err, errors.ErrorTypeFile, "failed to write part").
				WithDetail("path", path)
		}
		written = append(written, path)
	}
	return written, nil
}

// ExtractFile extracts the bundle at path into dir.
func ExtractFile(path, dir string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read bundle").
			WithDetail("path", path)
	}
	return Extract(data, dir)
}

// PartInfo describes one stored part.
type PartInfo struct {
	Name   string `json:"name"`
	Size   int    `json:"size"`
	SHA256 string `json:"sha256"`
	Rows   int    `json:"rows"`
}

// Info summarises a bundle for inspection.
type Info struct {
	Parts       []PartInfo `json:"parts"`
	Annotations []string   `json:"annotations"`
	Styled      []string   `json:"styled_annotations,omitempty"`
}

// Inspect reports part sizes, digests and row counts, the annotation
// columns and the annotations that carry settings.
func Inspect(ctx context.Context, data []byte) (*Info, error) {
	b, err := Decode(ctx, data)
	if err != nil {
		return nil, err
	}

	info := &Info{}
	parts := b.Parts[:]
	names := CoreFiles[:]
	if b.HasSettings() {
		parts = append(parts, b.RawSettings)
		names = append(names, SettingsFile)
	}
	for i, p := range parts {
		sum := sha256.Sum256(p)
		pi := PartInfo{Name: names[i], Size: len(p), SHA256: hex.EncodeToString(sum[:])}
		if len(p) > 0 {
			if t, err := table.Read(ctx, p); err == nil {
				pi.Rows = t.NumRows()
				if i == 0 {
					info.Annotations = t.Columns
				}
			}
		}
		info.Parts = append(info.Parts, pi)
	}
	if b.Settings != nil {
		info.Styled = b.Settings.Names()
	}
	return info, nil
}
