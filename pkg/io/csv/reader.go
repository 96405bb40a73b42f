// Package csv provides CSV file reading for tabular data.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/hed1ad/brminer/pkg/dataset"
)

// Reader reads instances from CSV files. Column types are inferred on Read
// unless a schema is supplied with WithSchema.
type Reader struct {
	file      *os.File
	reader    *csv.Reader
	hasHeader bool
	headers   []string
	label     string
	schema    *dataset.Schema
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithLabel names the label column, excluded from scoring.
func WithLabel(name string) Option {
	return func(r *Reader) {
		r.label = name
	}
}

// WithSchema parses rows against an existing schema instead of inferring one.
// Unseen categorical values are appended to the schema's dictionaries.
func WithSchema(s *dataset.Schema) Option {
	return func(r *Reader) {
		r.schema = s
	}
}

// WithComma sets the field delimiter.
func WithComma(c rune) Option {
	return func(r *Reader) {
		r.reader.Comma = c
	}
}

// NewReader creates a new CSV reader.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := NewReaderFrom(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file

	return r, nil
}

// NewReaderFrom creates a reader over src. Close does not close src.
func NewReaderFrom(src io.Reader, opts ...Option) (*Reader, error) {
	r := &Reader{
		reader:    csv.NewReader(src),
		hasHeader: true,
	}
	r.reader.TrimLeadingSpace = true
	r.reader.FieldsPerRecord = -1

	for _, opt := range opts {
		opt(r)
	}

	// Read header if present
	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			return nil, err
		}
		r.headers = headers
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Schema returns the schema, or nil until Read has inferred one.
func (r *Reader) Schema() *dataset.Schema {
	return r.schema
}

// Read returns all rows as instances. When the schema is inferred, rows
// that do not fit it are skipped; with WithSchema they are an error.
func (r *Reader) Read() ([]dataset.Instance, error) {
	var records [][]string

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	supplied := r.schema != nil
	if !supplied {
		schema, err := r.infer(records)
		if err != nil {
			return nil, err
		}
		r.schema = schema
	}

	data := make([]dataset.Instance, 0, len(records))
	for i, record := range records {
		in, err := parseRow(r.schema, record)
		if err != nil {
			if supplied {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			continue
		}
		data = append(data, in)
	}

	return data, nil
}

// Stream returns a channel of rows for real-time processing. The schema
// must be known, either from WithSchema or from an earlier Read.
func (r *Reader) Stream(ctx context.Context) (<-chan dataset.Instance, error) {
	if r.schema == nil {
		return nil, errors.New("stream: schema unknown")
	}

	out := make(chan dataset.Instance, 100)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				record, err := r.reader.Read()
				if err == io.EOF {
					return
				}
				if err != nil {
					continue
				}

				in, err := parseRow(r.schema, record)
				if err != nil {
					continue
				}

				select {
				case out <- in:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// infer builds a schema from records: a column is numeric when every
// present cell parses as a number, categorical otherwise.
func (r *Reader) infer(records [][]string) (*dataset.Schema, error) {
	width := len(r.headers)
	if width == 0 && len(records) > 0 {
		width = len(records[0])
	}
	if width == 0 {
		return nil, errors.New("infer schema: no columns")
	}

	features := make([]dataset.Feature, width)
	for i := range features {
		name := fmt.Sprintf("f%d", i)
		if i < len(r.headers) {
			name = r.headers[i]
		}
		features[i] = dataset.Feature{Name: name, Type: dataset.Numeric}
	}

	for _, record := range records {
		if len(record) != width {
			continue
		}
		for i, cell := range record {
			if features[i].Type == dataset.Categorical || isMissing(cell) {
				continue
			}
			if _, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err != nil {
				features[i].Type = dataset.Categorical
			}
		}
	}

	labelIndex := -1
	if r.label != "" {
		for i, f := range features {
			if f.Name == r.label {
				labelIndex = i
				break
			}
		}
		if labelIndex < 0 {
			return nil, fmt.Errorf("infer schema: label column %q not found", r.label)
		}
	}

	return dataset.NewSchema(features, labelIndex)
}

// parseRow converts a record to an instance of schema, extending
// categorical dictionaries with unseen values. Infinite numbers are read
// as missing.
func parseRow(schema *dataset.Schema, record []string) (dataset.Instance, error) {
	if len(record) == 0 {
		return dataset.Instance{}, errors.New("empty row")
	}
	if len(record) != schema.Len() {
		return dataset.Instance{}, fmt.Errorf("row has %d fields, want %d", len(record), schema.Len())
	}

	values := make([]float64, len(record))
	for i, cell := range record {
		if isMissing(cell) {
			values[i] = dataset.Missing
			continue
		}

		cell = strings.TrimSpace(cell)
		f := &schema.Features[i]
		switch f.Type {
		case dataset.Numeric:
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return dataset.Instance{}, err
			}
			if math.IsInf(v, 0) {
				v = dataset.Missing
			}
			values[i] = v
		case dataset.Categorical:
			code := f.Code(cell)
			if code < 0 {
				f.Values = append(f.Values, cell)
				code = len(f.Values) - 1
			}
			values[i] = float64(code)
		}
	}

	return dataset.Instance{Values: values, Schema: schema}, nil
}

func isMissing(cell string) bool {
	switch strings.TrimSpace(cell) {
	case "", "?", "NA":
		return true
	}
	return false
}
