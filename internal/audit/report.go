package audit

import (
	"fmt"
	"strconv"

	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/io"
)

// ReportHeader is the column order of the audit CSV
var ReportHeader = []string{
	"file", "boxes_csv", "boxes_parquet", "delta_boxes",
	"kilos_csv", "kilos_parquet", "delta_kilos",
	"rows_csv", "rows_parquet", "status",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteReport writes the records as the audit CSV
func WriteReport(path string, records []Record) error {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			r.File,
			strconv.FormatInt(r.BoxesCSV, 10),
			strconv.FormatInt(r.BoxesParquet, 10),
			strconv.FormatInt(r.DeltaBoxes, 10),
			formatFloat(r.KilosCSV),
			formatFloat(r.KilosParquet),
			formatFloat(r.DeltaKilos),
			strconv.FormatInt(r.RowsCSV, 10),
			strconv.FormatInt(r.RowsParquet, 10),
			r.Status,
		}
	}
	return io.WriteCSVFile(path, ReportHeader, rows)
}

// ReadReport reads an audit CSV written by WriteReport
func ReadReport(path string) ([]Record, error) {
	header, rows, err := io.ReadCSVFile(path)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, h := range ReportHeader {
		if _, ok := idx[h]; !ok {
			return nil, errors.NewColumnNotFoundError("ReadReport", h)
		}
	}

	records := make([]Record, 0, len(rows))
	for line, row := range rows {
		p := parser{row: row, idx: idx}
		r := Record{
			File:         p.str("file"),
			BoxesCSV:     p.intCell("boxes_csv"),
			BoxesParquet: p.intCell("boxes_parquet"),
			DeltaBoxes:   p.intCell("delta_boxes"),
			KilosCSV:     p.floatCell("kilos_csv"),
			KilosParquet: p.floatCell("kilos_parquet"),
			DeltaKilos:   p.floatCell("delta_kilos"),
			RowsCSV:      p.intCell("rows_csv"),
			RowsParquet:  p.intCell("rows_parquet"),
			Status:       p.str("status"),
		}
		if p.err != nil {
			return nil, fmt.Errorf("audit report line %d: %w", line+2, p.err)
		}
		records = append(records, r)
	}
	return records, nil
}

// parser reads typed cells, keeping the first error
type parser struct {
	row []string
	idx map[string]int
	err error
}

func (p *parser) str(col string) string {
	i := p.idx[col]
	if i >= len(p.row) {
		if p.err == nil {
			p.err = fmt.Errorf("missing %s", col)
		}
		return ""
	}
	return p.row[i]
}

func (p *parser) intCell(col string) int64 {
	s := p.str(col)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", col, err)
	}
	return v
}

func (p *parser) floatCell(col string) float64 {
	s := p.str(col)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", col, err)
	}
	return v
}
