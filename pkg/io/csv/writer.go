package csv

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/hed1ad/tsanomaly/pkg/detectors"
	tsio "github.com/hed1ad/tsanomaly/pkg/io"
)

var _ tsio.Writer = (*Writer)(nil)

// Writer writes detection records as CSV rows with a header.
type Writer struct {
	closer      io.Closer
	writer      *csv.Writer
	wroteHeader bool
}

// NewWriter creates a writer that truncates or creates filename.
func NewWriter(filename string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := NewStreamWriter(file)
	w.closer = file
	return w, nil
}

// NewStreamWriter creates a writer over dst. The caller keeps ownership of dst.
func NewStreamWriter(dst io.Writer) *Writer {
	return &Writer{writer: csv.NewWriter(dst)}
}

// Write outputs a single record and flushes it.
func (w *Writer) Write(r detectors.Record) error {
	if err := w.write(r); err != nil {
		return err
	}
	w.writer.Flush()
	return w.writer.Error()
}

// WriteAll outputs multiple records.
func (w *Writer) WriteAll(records []detectors.Record) error {
	for _, r := range records {
		if err := w.write(r); err != nil {
			return err
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and releases resources.
func (w *Writer) Close() error {
	if !w.wroteHeader {
		if err := w.writer.Write(tsio.Columns); err != nil {
			return err
		}
		w.wroteHeader = true
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

func (w *Writer) write(r detectors.Record) error {
	if !w.wroteHeader {
		if err := w.writer.Write(tsio.Columns); err != nil {
			return err
		}
		w.wroteHeader = true
	}
	return w.writer.Write([]string{
		formatFloat(r.Value),
		formatFloat(r.Mean),
		formatFloat(r.Stdev),
		formatFloat(r.Upper),
		formatFloat(r.Lower),
		strconv.FormatBool(r.Anomaly),
	})
}

// formatFloat uses the shortest representation that round-trips.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
