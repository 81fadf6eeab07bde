// Package csv reads series from and writes detection results to CSV files.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	tsio "github.com/hed1ad/tsanomaly/pkg/io"
)

var _ tsio.Reader = (*Reader)(nil)

// ErrColumnNotFound is returned when the requested column is not in the header.
var ErrColumnNotFound = errors.New("column not found")

// Reader reads one numeric column of a CSV source as a series.
type Reader struct {
	closer    io.Closer
	reader    *csv.Reader
	hasHeader bool
	headers   []string

	column      string
	columnIndex int

	row int

	mu  sync.Mutex
	err error
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithColumn selects the value column by header name. It implies a header.
func WithColumn(name string) Option {
	return func(r *Reader) {
		r.column = name
		r.hasHeader = true
	}
}

// WithColumnIndex selects the value column by zero-based position.
func WithColumnIndex(i int) Option {
	return func(r *Reader) {
		r.columnIndex = i
	}
}

// NewReader creates a new CSV reader for a file.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := NewStreamReader(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// NewStreamReader creates a CSV reader over an arbitrary source such as stdin.
// The caller keeps ownership of src.
func NewStreamReader(src io.Reader, opts ...Option) (*Reader, error) {
	r := &Reader{
		reader:    csv.NewReader(src),
		hasHeader: true,
	}
	r.reader.FieldsPerRecord = -1
	r.reader.TrimLeadingSpace = true

	for _, opt := range opts {
		opt(r)
	}

	if r.columnIndex < 0 {
		return nil, fmt.Errorf("csv: negative column index %d", r.columnIndex)
	}

	// Read header if present
	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			return nil, fmt.Errorf("csv: reading header: %w", err)
		}
		r.headers = headers
		r.row++

		if r.column != "" {
			idx := -1
			for i, h := range headers {
				if strings.TrimSpace(h) == r.column {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("csv: %w: %q", ErrColumnNotFound, r.column)
			}
			r.columnIndex = idx
		}
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Read returns the selected column as a series. Unlike a lenient reader it
// fails on the first malformed row, since dropping a row shifts time order.
func (r *Reader) Read() ([]float64, error) {
	var series []float64

	for {
		v, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		series = append(series, v)
	}

	return series, nil
}

// Stream returns a channel of values for real-time processing. The channel
// closes at end of input, on the first bad row, or when ctx is done; use
// Err to tell a bad row from a clean end.
func (r *Reader) Stream(ctx context.Context) (<-chan float64, error) {
	out := make(chan float64, 100)

	go func() {
		defer close(out)
		for {
			v, err := r.next()
			if err != nil {
				if err != io.EOF {
					r.setErr(err)
				}
				return
			}

			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Err returns the error that stopped Stream, if any.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Reader) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Reader) next() (float64, error) {
	record, err := r.reader.Read()
	if err != nil {
		return 0, err
	}
	r.row++

	if r.columnIndex >= len(record) {
		return 0, fmt.Errorf("csv: row %d: has %d fields, want column %d", r.row, len(record), r.columnIndex)
	}
	return parseValue(record[r.columnIndex], r.row)
}

// parseValue converts a cell to a finite float.
func parseValue(cell string, row int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, fmt.Errorf("csv: row %d: %w", row, err)
	}
	if err := tsio.CheckFinite(v); err != nil {
		return 0, fmt.Errorf("csv: row %d: %w", row, err)
	}
	return v, nil
}
