package io

import (
	"fmt"
	"os"
	"strings"

	"github.com/paveg/fruitflow/internal/detect"
)

const bom = "\ufeff"

// RawRecordSet is one raw file as untyped text. Empty cells are nulls.
type RawRecordSet struct {
	Path      string
	Encoding  string
	Delimiter rune
	Header    []string
	Rows      [][]string
}

// ColumnIndex returns the position of an exact header name, or -1
func (r *RawRecordSet) ColumnIndex(name string) int {
	for i, h := range r.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at row, col and whether it is non-null.
// Short rows yield nulls for the missing trailing cells.
func (r *RawRecordSet) Cell(row, col int) (string, bool) {
	if col < 0 || col >= len(r.Rows[row]) {
		return "", false
	}
	v := r.Rows[row][col]
	if v == "" {
		return "", false
	}
	return v, true
}

// Len returns the number of data rows
func (r *RawRecordSet) Len() int { return len(r.Rows) }

// ReadRaw detects the encoding and delimiter of a raw file, decodes it and
// parses it into a RawRecordSet. Headers are trimmed and a leading byte order
// mark is removed. Blank lines are skipped.
func ReadRaw(path string) (*RawRecordSet, error) {
	det := detect.Detect(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadCSVRecords(detect.NewDecodingReader(f, det.Encoding), RawCSVOptions(det.Delimiter))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: no header line", path)
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, bom)
		}
		header[i] = strings.TrimSpace(h)
	}

	return &RawRecordSet{
		Path:      path,
		Encoding:  det.Encoding,
		Delimiter: det.Delimiter,
		Header:    header,
		Rows:      records[1:],
	}, nil
}
