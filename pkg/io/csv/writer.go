package csv

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	detio "github.com/hed1ad/brminer/pkg/io"
)

var (
	_ detio.Reader = (*Reader)(nil)
	_ detio.Writer = (*Writer)(nil)
)

// Writer writes results as index,score,is_anomaly rows.
type Writer struct {
	file        *os.File
	writer      *csv.Writer
	wroteHeader bool
}

// NewWriter creates a result writer over dst. Close does not close dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{writer: csv.NewWriter(dst)}
}

// Create creates filename and writes results to it.
func Create(filename string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	w := NewWriter(file)
	w.file = file
	return w, nil
}

// Write outputs a single result.
func (w *Writer) Write(result detio.Result) error {
	if !w.wroteHeader {
		if err := w.writer.Write([]string{"index", "score", "is_anomaly"}); err != nil {
			return err
		}
		w.wroteHeader = true
	}

	return w.writer.Write([]string{
		strconv.Itoa(result.Index),
		strconv.FormatFloat(result.Score, 'f', -1, 64),
		strconv.FormatBool(result.IsAnomaly),
	})
}

// WriteAll outputs multiple results and flushes.
func (w *Writer) WriteAll(results []detio.Result) error {
	for _, r := range results {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes buffered rows and releases resources.
func (w *Writer) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return err
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
