package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/table"
)

// maxLineSize bounds a single line of an identifier file. FASTA sequence
// lines of unwrapped files can be long.
const maxLineSize = 1 << 20

// ReadIdentifiers reads protein identifiers from path.
//
// A .parquet file is read as a projections data table and its identifier
// column is returned. Any other file is text: blank lines and lines starting
// with '#' are ignored. When the file contains FASTA headers only the header
// lines count, each reduced to its first word. Duplicates are dropped,
// keeping the first occurrence.
func ReadIdentifiers(ctx context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read identifiers").
			WithDetail("path", path)
	}
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		ids, err := table.ReadColumn(ctx, data, annotation.IdentifierColumn)
		if err != nil {
			return nil, err
		}
		return Dedupe(ids), nil
	}
	return ParseIdentifiers(data)
}

// ParseIdentifiers parses a plain list or a FASTA file.
func ParseIdentifiers(data []byte) ([]string, error) {
	fasta := bytes.HasPrefix(bytes.TrimSpace(data), []byte(">")) || bytes.Contains(data, []byte("\n>"))

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if fasta {
			if !strings.HasPrefix(line, ">") {
				continue
			}
			line = strings.TrimSpace(line[1:])
			if line == "" {
				continue
			}
			line = strings.Fields(line)[0]
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to scan identifiers")
	}
	return Dedupe(ids), nil
}

// Dedupe removes empty and repeated identifiers, keeping the first
// occurrence. The input is not modified.
func Dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
