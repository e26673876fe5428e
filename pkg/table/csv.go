package table

import (
	"encoding/csv"
	"io"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/errors"
)

// WriteCSV writes records as CSV with a header row. Absent features are
// written as empty cells.
func WriteCSV(w io.Writer, columns []string, records []annotation.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write csv header")
	}
	row := make([]string, len(columns))
	for _, r := range records {
		for i, c := range columns {
			if i == 0 && c == annotation.IdentifierColumn {
				row[i] = r.Identifier
				continue
			}
			row[i] = r.Features.Value(c)
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush csv")
	}
	return nil
}
