// Package testutil provides common testing utilities shared by the pipeline
// package tests.
//
// This package consolidates recurring patterns:
// - Memory allocator setup with leak checking
// - Raw CSV fixtures in a chosen encoding and delimiter
// - Small canonical tables
// - Common table assertions
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

// FixedTime is a stable clock value for report timestamps in tests.
var FixedTime = time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)

// FixedClock returns FixedTime
func FixedClock() time.Time { return FixedTime }

// TestMemoryContext provides a checked allocator that verifies every
// allocation was released.
type TestMemoryContext struct {
	Allocator *memory.CheckedAllocator
	tb        testing.TB
}

// Release asserts that no Arrow memory is still held.
func (tmc *TestMemoryContext) Release() {
	tmc.Allocator.AssertSize(tmc.tb, 0)
}

// SetupMemoryTest creates a checked memory allocator for tests.
//
// Example usage:
//
//	mem := testutil.SetupMemoryTest(t)
//	defer mem.Release()
func SetupMemoryTest(tb testing.TB) *TestMemoryContext {
	tb.Helper()
	return &TestMemoryContext{
		Allocator: memory.NewCheckedAllocator(memory.NewGoAllocator()),
		tb:        tb,
	}
}

// CSVOption configures a raw CSV fixture.
type CSVOption func(*csvConfig)

type csvConfig struct {
	latin1    bool
	delimiter string
	crlf      bool
}

// WithLatin1 encodes the fixture as ISO-8859-1.
func WithLatin1() CSVOption {
	return func(cfg *csvConfig) { cfg.latin1 = true }
}

// WithDelimiter replaces ',' between fields with d.
func WithDelimiter(d string) CSVOption {
	return func(cfg *csvConfig) { cfg.delimiter = d }
}

// WithCRLF terminates lines with \r\n.
func WithCRLF() CSVOption {
	return func(cfg *csvConfig) { cfg.crlf = true }
}

// WriteCSV writes lines as a raw export file in dir and returns its path.
// Lines are joined verbatim; WithDelimiter rewrites commas outside quotes.
func WriteCSV(tb testing.TB, dir, name string, lines []string, opts ...CSVOption) string {
	tb.Helper()
	cfg := &csvConfig{delimiter: ","}
	for _, opt := range opts {
		opt(cfg)
	}

	sep := "\n"
	if cfg.crlf {
		sep = "\r\n"
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = replaceDelimiter(l, cfg.delimiter)
	}
	content := strings.Join(out, sep) + sep

	data := []byte(content)
	if cfg.latin1 {
		encoded, err := charmap.ISO8859_1.NewEncoder().String(content)
		require.NoError(tb, err)
		data = []byte(encoded)
	}

	path := filepath.Join(dir, name)
	require.NoError(tb, os.MkdirAll(dir, 0o755))
	require.NoError(tb, os.WriteFile(path, data, 0o600))
	return path
}

func replaceDelimiter(line, d string) string {
	if d == "," {
		return line
	}
	var b strings.Builder
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			b.WriteRune(r)
		case r == ',' && !quoted:
			b.WriteString(d)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExportHeader is the header of a typical weekly export file.
var ExportHeader = "Season,ETD Week,Region,Market,Country,Transport,Specie,Variety,Importer,Exporter,Arrival port,Boxes,Kilograms"

// CanonicalTable builds a small master-like table with every canonical field
// and source_week. Row 2 has null boxes and region.
func CanonicalTable(tb testing.TB, mem memory.Allocator) *table.Table {
	tb.Helper()
	n := []bool{true, true, false}
	tbl, err := table.New(
		table.Strings("season", []string{"2019-2020", "2019-2020", "2020-2021"}, nil, mem),
		table.Int64s("week", []int64{35, 2, 40}, nil, mem),
		table.Int64s("year", []int64{2019, 2020, 2020}, nil, mem),
		table.Strings("region", []string{"North America", "Far East", ""}, n, mem),
		table.Strings("market", []string{"Usa", "China", "Usa"}, nil, mem),
		table.Strings("country", []string{"USA", "CHINA", "USA"}, nil, mem),
		table.Strings("transport", []string{"Maritime", "Air", "Maritime"}, nil, mem),
		table.Strings("product", []string{"Kiwifruit", "Cherries", "Kiwifruit"}, nil, mem),
		table.Strings("variety", []string{"Hayward", "Lapins", "Hayward"}, nil, mem),
		table.Strings("importer", []string{"Imp A", "Imp B", "Imp A"}, nil, mem),
		table.Strings("exporter", []string{"Acme Corp", "Fruta Sa", "Acme Corp"}, nil, mem),
		table.Strings("port_destination", []string{"Philadelphia", "Shanghai", "Philadelphia"}, nil, mem),
		table.Int64s("boxes", []int64{1234, 100, 0}, n, mem),
		table.Float64s("net_weight_kg", []float64{5678, 500, 20}, nil, mem),
		table.Int64s("source_week", []int64{1, 2, -1}, nil, mem),
	)
	require.NoError(tb, err)
	return tbl
}

// AssertTableHasColumns checks the exact column order of a table.
func AssertTableHasColumns(t *testing.T, tbl *table.Table, expected []string) {
	t.Helper()
	assert.Equal(t, expected, tbl.Columns())
}

// ColumnValues returns every value of a column, nil for nulls.
func ColumnValues(t *testing.T, tbl *table.Table, name string) []any {
	t.Helper()
	col, ok := tbl.Column(name)
	require.True(t, ok, "column %s not found", name)
	out := make([]any, col.Len())
	for i := range out {
		out[i] = col.Value(i)
	}
	return out
}

// Row returns row i as a map of column name to value, nil for nulls.
func Row(t *testing.T, tbl *table.Table, i int) map[string]any {
	t.Helper()
	require.Less(t, i, tbl.Len())
	row := make(map[string]any, tbl.Width())
	for c := range tbl.Width() {
		col := tbl.ColumnAt(c)
		row[col.Name()] = col.Value(i)
	}
	return row
}
