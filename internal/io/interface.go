// Package io provides reading and writing of pipeline artifacts.
//
// This package includes the raw CSV reader used by normalization and audit,
// Parquet readers and writers over table.Table, and helpers for the JSON
// and CSV report artifacts.
//
// Key components:
//   - ReadRaw for raw export files with detected encoding and delimiter
//   - ParquetReader/ParquetWriter for snappy-compressed columnar artifacts
//   - CSVWriter for the tabular audit report
//   - WriteFileAtomic so every output is produced by a single final rename
//
// Memory management: tables read from Parquet hold Arrow memory and must be
// released with defer patterns.
package io

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/table"
)

const (
	// DefaultBatchSize is the default batch size for Parquet writes
	DefaultBatchSize = 1000
)

// TableReader reads a table from a source
type TableReader interface {
	// Read reads data from the source and returns a table
	Read() (*table.Table, error)
}

// TableWriter writes a table to a destination
type TableWriter interface {
	// Write writes the table to the destination
	Write(t *table.Table) error
}

// CSVOptions contains configuration options for CSV operations
type CSVOptions struct {
	// Delimiter is the field delimiter (default: comma)
	Delimiter rune
	// SkipInitialSpace indicates whether to skip initial whitespace
	SkipInitialSpace bool
	// LazyQuotes tolerates quotes inside unquoted fields
	LazyQuotes bool
}

// DefaultCSVOptions returns default CSV options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter: ',',
	}
}

// RawCSVOptions returns the lenient options used for raw export files
func RawCSVOptions(delimiter rune) CSVOptions {
	return CSVOptions{
		Delimiter:        delimiter,
		SkipInitialSpace: true,
		LazyQuotes:       true,
	}
}

// CSVWriter writes string records to CSV format
type CSVWriter struct {
	writer  io.Writer
	options CSVOptions
}

// NewCSVWriter creates a new CSV writer with the specified options
func NewCSVWriter(writer io.Writer, options CSVOptions) *CSVWriter {
	return &CSVWriter{
		writer:  writer,
		options: options,
	}
}

// ParquetOptions contains configuration options for Parquet operations
type ParquetOptions struct {
	// Compression type for Parquet files
	Compression string `json:"compression" yaml:"compression"`
	// BatchSize for writing operations
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// DefaultParquetOptions returns default Parquet options
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{
		Compression: "snappy",
		BatchSize:   DefaultBatchSize,
	}
}

// ParquetReader reads Parquet data into a table
type ParquetReader struct {
	reader io.Reader
	mem    memory.Allocator
}

// NewParquetReader creates a new Parquet reader
func NewParquetReader(reader io.Reader, mem memory.Allocator) *ParquetReader {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &ParquetReader{
		reader: reader,
		mem:    mem,
	}
}

// ParquetWriter writes tables to Parquet format
type ParquetWriter struct {
	writer  io.Writer
	options ParquetOptions
}

// NewParquetWriter creates a new Parquet writer with the specified options
func NewParquetWriter(writer io.Writer, options ParquetOptions) *ParquetWriter {
	return &ParquetWriter{
		writer:  writer,
		options: options,
	}
}
