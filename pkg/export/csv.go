package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/avachon/bubble-data-client/pkg/bubble"
)

// CSVSink streams records into CSV. The header is derived from the
// first batch's first record (keys sorted); later records missing a
// column produce an empty cell and extra keys are dropped, since CSV
// has no way to widen the header mid-file.
type CSVSink struct {
	writer *csv.Writer
	closer io.Closer
	header []string
}

// NewCSVSink writes CSV to w. The caller keeps ownership of w.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{writer: csv.NewWriter(w)}
}

// NewCSVFile creates (or truncates) path and writes CSV to it.
func NewCSVFile(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	return &CSVSink{writer: csv.NewWriter(f), closer: f}, nil
}

// WriteBatch appends one row per record.
func (s *CSVSink) WriteBatch(ctx context.Context, records []bubble.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.header == nil {
		s.header = make([]string, 0, len(records[0]))
		for key := range records[0] {
			s.header = append(s.header, key)
		}
		sort.Strings(s.header)
		if err := s.writer.Write(s.header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}

	row := make([]string, len(s.header))
	for _, record := range records {
		for i, column := range s.header {
			row[i] = formatCell(record[column])
		}
		if err := s.writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	return nil
}

// Close flushes buffered rows and closes the underlying file, if any.
func (s *CSVSink) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// formatCell renders one value for CSV. Scalars print plainly,
// composite values fall back to their JSON form so the cell stays
// machine-readable.
func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; integral values print
		// without a trailing ".0".
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
