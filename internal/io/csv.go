package io

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/paveg/fruitflow/internal/errors"
)

// Write writes the header followed by the records
func (w *CSVWriter) Write(header []string, records [][]string) error {
	cw := csv.NewWriter(w.writer)
	if w.options.Delimiter != 0 {
		cw.Comma = w.options.Delimiter
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("writing CSV records: %w", err)
	}
	return nil
}

// ReadCSVRecords reads every record of a CSV stream. Rows may have differing
// lengths.
func ReadCSVRecords(r io.Reader, options CSVOptions) ([][]string, error) {
	cr := csv.NewReader(r)
	if options.Delimiter != 0 {
		cr.Comma = options.Delimiter
	}
	cr.TrimLeadingSpace = options.SkipInitialSpace
	cr.LazyQuotes = options.LazyQuotes
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	return records, nil
}

// ReadCSVFile reads a comma-separated file written by CSVWriter
func ReadCSVFile(path string) (header []string, records [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.NewMissingInputError(path)
		}
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	all, err := ReadCSVRecords(f, DefaultCSVOptions())
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

// WriteCSVFile writes a CSV file atomically
func WriteCSVFile(path string, header []string, records [][]string) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		return NewCSVWriter(w, DefaultCSVOptions()).Write(header, records)
	})
}
