package io

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/table"
)

// Read reads Parquet data and returns a table.
func (r *ParquetReader) Read() (*table.Table, error) {
	// Read all data into memory for Parquet reading
	data, err := io.ReadAll(r.reader)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}
	readerAt := bytes.NewReader(data)

	pqReader, err := file.NewParquetReader(readerAt)
	if err != nil {
		return nil, fmt.Errorf("creating parquet file reader: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, r.mem)
	if err != nil {
		return nil, fmt.Errorf("creating arrow file reader: %w", err)
	}

	tbl, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}
	defer tbl.Release()

	return r.arrowTableToTable(tbl)
}

// arrowTableToTable converts an Arrow table, possibly split into several
// chunks per column, into a table.Table.
func (r *ParquetReader) arrowTableToTable(tbl arrow.Table) (*table.Table, error) {
	schema := tbl.Schema()
	cols := make([]*table.Column, 0, tbl.NumCols())
	release := func() {
		for _, c := range cols {
			c.Release()
		}
	}

	for i := range int(tbl.NumCols()) {
		field := schema.Field(i)
		col, err := r.arrowColumnToColumn(field, tbl.Column(i))
		if err != nil {
			release()
			return nil, fmt.Errorf("converting column %s: %w", field.Name, err)
		}
		cols = append(cols, col)
	}

	out, err := table.New(cols...)
	if err != nil {
		release()
		return nil, err
	}
	return out, nil
}

func (r *ParquetReader) arrowColumnToColumn(field arrow.Field, column *arrow.Column) (*table.Column, error) {
	chunks := column.Data().Chunks()
	switch len(chunks) {
	case 0:
		typ, err := table.ParseDataType(typeName(field.Type))
		if err != nil {
			return nil, err
		}
		return table.Nulls(field.Name, typ, 0, r.mem), nil
	case 1:
		return table.NewColumn(field.Name, chunks[0])
	default:
		merged, err := array.Concatenate(chunks, r.mem)
		if err != nil {
			return nil, err
		}
		defer merged.Release()
		return table.NewColumn(field.Name, merged)
	}
}

func typeName(dt arrow.DataType) string {
	//nolint:exhaustive // Only handling supported types
	switch dt.ID() {
	case arrow.INT32:
		return "int32"
	case arrow.INT64:
		return "int64"
	case arrow.FLOAT64:
		return "float64"
	case arrow.BOOL:
		return "bool"
	case arrow.STRING, arrow.LARGE_STRING:
		return "string"
	default:
		return dt.Name()
	}
}

// Write writes the table to Parquet format.
func (w *ParquetWriter) Write(t *table.Table) error {
	if t.Width() == 0 {
		return errors.NewInvalidInputError("WriteParquet", "table has no columns")
	}

	tbl := toArrowTable(t)
	defer tbl.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compressionCodec(w.options.Compression)),
		parquet.WithBatchSize(int64(w.batchSize())),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(memory.NewGoAllocator()))

	writer, err := pqarrow.NewFileWriter(tbl.Schema(), w.writer, props, arrowProps)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}

	if err := writer.WriteTable(tbl, int64(w.rowGroupSize(t.Len()))); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing table: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing file writer: %w", err)
	}
	return nil
}

func (w *ParquetWriter) batchSize() int {
	if w.options.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return w.options.BatchSize
}

// rowGroupSize keeps each table in a single row group
func (w *ParquetWriter) rowGroupSize(rows int) int {
	if rows < 1 {
		return 1
	}
	return rows
}

func compressionCodec(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Codecs.Gzip
	case "lz4":
		return compress.Codecs.Lz4Raw
	case "zstd":
		return compress.Codecs.Zstd
	case "uncompressed", "none":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

// toArrowTable builds an Arrow table sharing the column arrays.
func toArrowTable(t *table.Table) arrow.Table {
	fields := make([]arrow.Field, 0, t.Width())
	arrays := make([]arrow.Array, 0, t.Width())
	for i := range t.Width() {
		c := t.ColumnAt(i)
		fields = append(fields, arrow.Field{Name: c.Name(), Type: c.Type().ArrowType(), Nullable: true})
		arrays = append(arrays, c.Array())
	}
	schema := arrow.NewSchema(fields, nil)
	return array.NewTableFromSlice(schema, toSlices(arrays))
}

func toSlices(arrays []arrow.Array) [][]arrow.Array {
	out := make([][]arrow.Array, len(arrays))
	for i, a := range arrays {
		out[i] = []arrow.Array{a}
	}
	return out
}

// ReadParquetFile reads a Parquet file from disk
func ReadParquetFile(path string, mem memory.Allocator) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingInputError(path)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return NewParquetReader(f, mem).Read()
}

// WriteParquetFile writes a table to path atomically
func WriteParquetFile(path string, t *table.Table, options ParquetOptions) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		return NewParquetWriter(w, options).Write(t)
	})
}
