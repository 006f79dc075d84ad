package io_test

import (
	"bytes"
	stdio "io"
	"os"
	"path/filepath"
	"testing"

	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/io"
	"github.com/paveg/fruitflow/internal/table"
	"github.com/paveg/fruitflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRaw(t *testing.T) {
	dir := t.TempDir()

	t.Run("quoted numbers with leading spaces", func(t *testing.T) {
		path := testutil.WriteCSV(t, dir, "a.csv", []string{
			"\ufeffSeason,ETD Week,Country,Specie,Exporter,Boxes,Kilograms",
			`2019-2020,35-2019,usa,kiwifruit,acme corp,"1.234",  "5.678"`,
		})
		raw, err := io.ReadRaw(path)
		require.NoError(t, err)

		assert.Equal(t, "utf-8", raw.Encoding)
		assert.Equal(t, ',', raw.Delimiter)
		assert.Equal(t, "Season", raw.Header[0])
		require.Equal(t, 1, raw.Len())
		v, ok := raw.Cell(0, raw.ColumnIndex("Kilograms"))
		assert.True(t, ok)
		assert.Equal(t, "5.678", v)
	})

	t.Run("latin-1 semicolon with empty and short rows", func(t *testing.T) {
		path := testutil.WriteCSV(t, dir, "b.csv", []string{
			"País,Región,Boxes",
			"Chile,,10",
			"Perú",
		}, testutil.WithLatin1(), testutil.WithDelimiter(";"), testutil.WithCRLF())
		raw, err := io.ReadRaw(path)
		require.NoError(t, err)

		assert.Equal(t, "latin-1", raw.Encoding)
		assert.Equal(t, ';', raw.Delimiter)
		assert.Equal(t, []string{"País", "Región", "Boxes"}, raw.Header)

		_, ok := raw.Cell(0, 1)
		assert.False(t, ok, "empty cell is null")
		v, _ := raw.Cell(1, 0)
		assert.Equal(t, "Perú", v)
		_, ok = raw.Cell(1, 2)
		assert.False(t, ok, "missing trailing cell is null")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := io.ReadRaw(filepath.Join(dir, "nope.csv"))
		require.Error(t, err)
	})
}

func TestParquet_RoundTrip(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	tbl := testutil.CanonicalTable(t, mem.Allocator)
	defer tbl.Release()

	buf := new(bytes.Buffer)
	require.NoError(t, io.NewParquetWriter(buf, io.DefaultParquetOptions()).Write(tbl))

	got, err := io.NewParquetReader(bytes.NewReader(buf.Bytes()), nil).Read()
	require.NoError(t, err)
	defer got.Release()

	assert.Equal(t, tbl.Columns(), got.Columns())
	assert.Equal(t, tbl.Fields(), got.Fields())
	assert.Equal(t, testutil.ColumnValues(t, tbl, "boxes"), testutil.ColumnValues(t, got, "boxes"))
	assert.Equal(t, testutil.ColumnValues(t, tbl, "region"), testutil.ColumnValues(t, got, "region"))
	assert.Equal(t, testutil.ColumnValues(t, tbl, "net_weight_kg"), testutil.ColumnValues(t, got, "net_weight_kg"))
}

func TestParquet_Deterministic(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	tbl := testutil.CanonicalTable(t, mem.Allocator)
	defer tbl.Release()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.parquet")
	b := filepath.Join(dir, "b.parquet")
	require.NoError(t, io.WriteParquetFile(a, tbl, io.DefaultParquetOptions()))
	require.NoError(t, io.WriteParquetFile(b, tbl, io.DefaultParquetOptions()))

	da, err := os.ReadFile(a)
	require.NoError(t, err)
	db, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestParquet_Errors(t *testing.T) {
	_, err := io.NewParquetReader(bytes.NewReader(nil), nil).Read()
	require.Error(t, err)

	_, err = io.ReadParquetFile(filepath.Join(t.TempDir(), "missing.parquet"), nil)
	require.ErrorIs(t, err, errors.ErrMissingInput)

	err = io.NewParquetWriter(new(bytes.Buffer), io.DefaultParquetOptions()).Write(table.Empty())
	require.Error(t, err)
}

func TestWriteFileAtomic_FailedRenderKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.json")
	require.NoError(t, io.WriteJSON(path, map[string]int{"rows": 1}))

	err := io.WriteFileAtomic(path, func(stdio.Writer) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var got map[string]int
	require.NoError(t, io.ReadJSON(path, &got))
	assert.Equal(t, 1, got["rows"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestCSVFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "full_audit.csv")
	header := []string{"file", "status"}
	rows := [][]string{{"a.csv", "OK"}, {"b,c.csv", "WARNING"}}
	require.NoError(t, io.WriteCSVFile(path, header, rows))

	gotHeader, gotRows, err := io.ReadCSVFile(path)
	require.NoError(t, err)
	assert.Equal(t, header, gotHeader)
	assert.Equal(t, rows, gotRows)
}
