package audit_test

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/audit"
	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/io"
	"github.com/paveg/fruitflow/internal/table"
	"github.com/paveg/fruitflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func writeNormalized(t *testing.T, dir, name string, boxes []int64, kilos []float64) {
	t.Helper()
	mem := memory.NewGoAllocator()
	tbl, err := table.New(
		table.Int64s("boxes", boxes, nil, mem),
		table.Float64s("net_weight_kg", kilos, nil, mem),
	)
	require.NoError(t, err)
	defer tbl.Release()
	require.NoError(t, io.WriteParquetFile(filepath.Join(dir, name), tbl, io.DefaultParquetOptions()))
}

func TestAuditDir(t *testing.T) {
	rawDir, cleanDir := t.TempDir(), t.TempDir()

	testutil.WriteCSV(t, rawDir, "datos_semana_01.csv", []string{
		"Season,Boxes,Kilograms",
		`2019-2020,"1.234","5.678"`,
		`2019-2020,10,n/a`,
	})
	writeNormalized(t, cleanDir, "datos_semana_01.parquet", []int64{1233, 10}, []float64{5678, 0})

	testutil.WriteCSV(t, rawDir, "datos_semana_02.csv", []string{
		"Season,Boxes,Kilograms",
		`2019-2020,7,"1.000"`,
	}, testutil.WithDelimiter(";"))
	writeNormalized(t, cleanDir, "datos_semana_02.parquet", []int64{7}, []float64{1000})

	testutil.WriteCSV(t, rawDir, "datos_semana_03.csv", []string{"Season,Boxes,Kilograms", "2019-2020,1,1"})

	a := audit.New(nil, quiet())
	records, err := a.AuditDir(rawDir, ".csv", cleanDir)
	require.NoError(t, err)
	require.Len(t, records, 2, "file without parquet is skipped")

	first := records[0]
	assert.Equal(t, "datos_semana_01.csv", first.File)
	assert.Equal(t, int64(1244), first.BoxesCSV)
	assert.Equal(t, int64(1243), first.BoxesParquet)
	assert.Equal(t, int64(-1), first.DeltaBoxes)
	assert.Equal(t, 5678.0, first.KilosCSV)
	assert.Equal(t, 0.0, first.DeltaKilos)
	assert.Equal(t, int64(2), first.RowsCSV)
	assert.Equal(t, int64(2), first.RowsParquet)
	assert.Equal(t, audit.StatusWarning, first.Status)

	assert.Equal(t, audit.StatusOK, records[1].Status)

	s := audit.Summarize(records)
	assert.Equal(t, 2, s.Files)
	assert.Equal(t, 1, s.OK)
	assert.Equal(t, 1, s.Warning)
	assert.Equal(t, int64(1251), s.BoxesCSV)
	assert.Equal(t, int64(-1), s.DeltaBoxes)
	assert.InDelta(t, 100.0/1251, s.PctMismatchBoxes, 1e-12)
	assert.Zero(t, s.PctMismatchKilos)
	require.NotNil(t, s.WorstBoxes)
	assert.Equal(t, "datos_semana_01.csv", s.WorstBoxes.File)

	_, err = a.AuditDir(rawDir, ".csv", filepath.Join(cleanDir, "missing"))
	require.ErrorIs(t, err, errors.ErrMissingInput)
}

func TestSummary_WithMaster(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	master := testutil.CanonicalTable(t, mem.Allocator)
	defer master.Release()

	s := audit.Summarize([]audit.Record{
		audit.Compare("a.csv", audit.Totals{Boxes: 1334, Kilos: 6198, Rows: 3}, audit.Totals{Boxes: 1334, Kilos: 6198, Rows: 3}),
	})
	s.WithMaster(master)

	require.NotNil(t, s.Master)
	assert.Equal(t, int64(3), s.Master.Rows)
	assert.Equal(t, int64(0), s.Master.DeltaBoxes)
	assert.Equal(t, 0.0, s.Master.DeltaKilos)
	assert.Equal(t, int64(0), s.Master.DeltaRows)
}

func TestReport_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "full_audit.csv")
	records := []audit.Record{
		audit.Compare("a.csv", audit.Totals{Boxes: 1234, Kilos: 5678.5, Rows: 1}, audit.Totals{Boxes: 1233, Kilos: 5678.5, Rows: 1}),
		audit.Compare("b.csv", audit.Totals{Boxes: 1, Kilos: 2, Rows: 3}, audit.Totals{Boxes: 1, Kilos: 2, Rows: 3}),
	}
	require.NoError(t, audit.WriteReport(path, records))

	got, err := audit.ReadReport(path)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	rows, boxes, kilos := audit.Expected(got)
	assert.Equal(t, int64(4), rows)
	assert.Equal(t, int64(1235), boxes)
	assert.Equal(t, 5680.5, kilos)

	_, err = audit.ReadReport(filepath.Join(t.TempDir(), "none.csv"))
	require.ErrorIs(t, err, errors.ErrMissingInput)
}
