package core

// source.go reads raw rows from a CSV stream.
//
// The stream is decoded as UTF-8 with a leading byte order mark removed and
// invalid sequences replaced, so files exported from spreadsheet tools load
// the same way as clean ones.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Source yields raw rows in input order. Next returns io.EOF after the last
// row; any other error is unrecoverable for the run.
type Source interface {
	Next() (RawRow, error)
}

// CSVSource is a Source over a CSV stream with a header line.
type CSVSource struct {
	r      *csv.Reader
	header []string
	index  HeaderIndex
	closer io.Closer
	done   bool
}

// NewCSVSource reads the header from r. An empty stream yields a source
// without rows.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	// BOMOverride hands a BOM-prefixed stream to a decoder that does not
	// validate, so ill-formed bytes are replaced as a separate step.
	decoded := transform.NewReader(r, transform.Chain(
		unicode.BOMOverride(unicode.UTF8.NewDecoder()),
		runes.ReplaceIllFormed(),
	))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	s := &CSVSource{r: cr}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		s.done = true
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	s.header = header
	s.index = MakeHeaderIndex(header)
	return s, nil
}

// OpenCSVSource opens path and reads its header. Close releases the file.
func OpenCSVSource(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s, err := NewCSVSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// Header returns the header cells as read.
func (s *CSVSource) Header() []string { return s.header }

// Next returns the next data row.
func (s *CSVSource) Next() (RawRow, error) {
	if s.done {
		return RawRow{}, io.EOF
	}
	rec, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		s.done = true
		return RawRow{}, io.EOF
	}
	if err != nil {
		return RawRow{}, err
	}
	return RawRow{Index: s.index, Cells: rec}, nil
}

// Close releases the underlying file, if any.
func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// SliceSource is a Source over rows already in memory.
type SliceSource struct {
	rows []RawRow
	pos  int
}

// NewSliceSource returns a Source yielding rows in order.
func NewSliceSource(rows ...RawRow) *SliceSource {
	return &SliceSource{rows: rows}
}

// Next returns the next row or io.EOF.
func (s *SliceSource) Next() (RawRow, error) {
	if s.pos >= len(s.rows) {
		return RawRow{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}
