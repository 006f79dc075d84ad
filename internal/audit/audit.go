// Package audit recomputes boxes, kilos and row totals from the raw export
// files without going through the normalizer, and compares them with the
// per-file Parquet output.
package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/inventory"
	"github.com/paveg/fruitflow/internal/io"
	"github.com/paveg/fruitflow/internal/normalize"
	"github.com/paveg/fruitflow/internal/schema"
)

// Record statuses
const (
	StatusOK      = "OK"
	StatusWarning = "WARNING"
)

// Raw column names used when the mapping does not name a source
const (
	DefaultBoxesColumn = "Boxes"
	DefaultKilosColumn = "Kilograms"
)

// Record is one line of the audit report
type Record struct {
	File         string
	BoxesCSV     int64
	BoxesParquet int64
	DeltaBoxes   int64
	KilosCSV     float64
	KilosParquet float64
	DeltaKilos   float64
	RowsCSV      int64
	RowsParquet  int64
	Status       string
}

// OK reports whether both deltas are zero
func (r Record) OK() bool { return r.Status == StatusOK }

// Totals are the sums of one side of the comparison
type Totals struct {
	Boxes int64
	Kilos float64
	Rows  int64
}

// Compare builds the record for one file; deltas are parquet minus raw
func Compare(file string, raw, parquet Totals) Record {
	r := Record{
		File:         file,
		BoxesCSV:     raw.Boxes,
		BoxesParquet: parquet.Boxes,
		DeltaBoxes:   parquet.Boxes - raw.Boxes,
		KilosCSV:     raw.Kilos,
		KilosParquet: parquet.Kilos,
		DeltaKilos:   parquet.Kilos - raw.Kilos,
		RowsCSV:      raw.Rows,
		RowsParquet:  parquet.Rows,
		Status:       StatusOK,
	}
	if r.DeltaBoxes != 0 || r.DeltaKilos != 0 {
		r.Status = StatusWarning
	}
	return r
}

// Auditor compares raw files with their normalized Parquet counterparts
type Auditor struct {
	boxesColumn string
	kilosColumn string
	logger      *slog.Logger
}

// New creates an auditor. The raw boxes and kilos columns are taken from the
// mapping when it names them.
func New(mapping *schema.Mapping, logger *slog.Logger) *Auditor {
	a := &Auditor{boxesColumn: DefaultBoxesColumn, kilosColumn: DefaultKilosColumn, logger: logger}
	if mapping != nil {
		if f, ok := mapping.Field(schema.Boxes); ok && f.Mapped() {
			a.boxesColumn = f.Source()
		}
		if f, ok := mapping.Field(schema.NetWeightKg); ok && f.Mapped() {
			a.kilosColumn = f.Source()
		}
	}
	return a
}

// RawTotals sums boxes and kilos of a raw file. Thousands separators are
// removed before parsing; unparseable cells are ignored.
func (a *Auditor) RawTotals(path string) (Totals, error) {
	raw, err := io.ReadRaw(path)
	if err != nil {
		return Totals{}, err
	}
	bi := findColumn(raw.Header, a.boxesColumn)
	ki := findColumn(raw.Header, a.kilosColumn)
	if bi < 0 || ki < 0 {
		return Totals{}, fmt.Errorf("raw file lacks %q or %q", a.boxesColumn, a.kilosColumn)
	}

	totals := Totals{Rows: int64(raw.Len())}
	for row := range raw.Len() {
		if v, ok := raw.Cell(row, bi); ok {
			if n, err := strconv.ParseInt(undot(v), 10, 64); err == nil {
				totals.Boxes += n
			}
		}
		if v, ok := raw.Cell(row, ki); ok {
			if f, err := strconv.ParseFloat(undot(v), 64); err == nil {
				totals.Kilos += f
			}
		}
	}
	return totals, nil
}

func undot(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, ".", ""))
}

func findColumn(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	key := inventory.NormalizeName(name)
	for i, h := range header {
		if inventory.NormalizeName(h) == key {
			return i
		}
	}
	return -1
}

// ParquetTotals sums boxes and kilos of a normalized file
func (a *Auditor) ParquetTotals(path string) (Totals, error) {
	t, err := io.ReadParquetFile(path, nil)
	if err != nil {
		return Totals{}, err
	}
	defer t.Release()
	if !t.HasColumn(schema.Boxes) || !t.HasColumn(schema.NetWeightKg) {
		return Totals{}, fmt.Errorf("normalized file lacks %s or %s", schema.Boxes, schema.NetWeightKg)
	}
	return Totals{
		Boxes: t.ColumnSumInt(schema.Boxes),
		Kilos: t.ColumnSumFloat(schema.NetWeightKg),
		Rows:  int64(t.Len()),
	}, nil
}

// AuditDir audits every raw file in rawDir against cleanDir, in name order.
// Files whose raw or Parquet side cannot be read are skipped with a warning.
func (a *Auditor) AuditDir(rawDir, ext, cleanDir string) ([]Record, error) {
	if _, err := os.Stat(cleanDir); err != nil {
		return nil, errors.NewMissingInputError(cleanDir)
	}
	paths, err := inventory.ScanFiles(rawDir, ext)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, path := range paths {
		name := filepath.Base(path)
		raw, err := a.RawTotals(path)
		if err != nil {
			a.logger.Warn("skipping raw file in audit", "file", name, "error", err)
			continue
		}
		pq, err := a.ParquetTotals(filepath.Join(cleanDir, normalize.OutputName(path)))
		if err != nil {
			a.logger.Warn("skipping normalized file in audit", "file", name, "error", err)
			continue
		}
		r := Compare(name, raw, pq)
		if !r.OK() {
			a.logger.Warn("audit mismatch",
				"file", name, "delta_boxes", r.DeltaBoxes, "delta_kilos", r.DeltaKilos)
		}
		records = append(records, r)
	}
	return records, nil
}
