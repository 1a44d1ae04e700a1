package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"mbp10/domain/orderbook"
)

// CSVReader reads MBO records from a comma-separated file with a header row.
type CSVReader struct {
	r      *csv.Reader
	closer io.Closer
	header bool
	line   int
}

// NewCSVReader wraps r. The first record is treated as a header and skipped.
func NewCSVReader(r io.Reader) *CSVReader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.LazyQuotes = true
	return &CSVReader{r: cr}
}

// OpenCSV opens path for reading; Close releases the file.
func OpenCSV(path string) (*CSVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbo input: %w", err)
	}
	r := NewCSVReader(f)
	r.closer = f
	return r, nil
}

func (r *CSVReader) Next(ctx context.Context) (orderbook.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return orderbook.Event{}, err
		}
		fields, err := r.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return orderbook.Event{}, io.EOF
			}
			return orderbook.Event{}, fmt.Errorf("read mbo record %d: %w", r.line+1, err)
		}
		r.line++
		if !r.header {
			r.header = true
			continue
		}
		if ev, ok := ParseFields(fields); ok {
			return ev, nil
		}
	}
}

func (r *CSVReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
