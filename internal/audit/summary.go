package audit

import (
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/table"
	"golang.org/x/exp/constraints"
)

type number interface {
	constraints.Integer | constraints.Float
}

type signed interface {
	constraints.Signed | constraints.Float
}

func sum[T number](records []Record, get func(Record) T) T {
	var total T
	for _, r := range records {
		total += get(r)
	}
	return total
}

func abs[T signed](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

// worst returns the record with the largest absolute value of get, the first
// one on ties
func worst[T signed](records []Record, get func(Record) T) *Record {
	if len(records) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(records); i++ {
		if abs(get(records[i])) > abs(get(records[best])) {
			best = i
		}
	}
	r := records[best]
	return &r
}

func percent[T number](delta, base T) float64 {
	if base <= 0 {
		return 0
	}
	return abs(float64(delta)) / float64(base) * 100
}

// MasterTotals compares the consolidated table with the raw totals
type MasterTotals struct {
	Rows       int64   `json:"rows"`
	Boxes      int64   `json:"boxes"`
	Kilos      float64 `json:"kilos"`
	DeltaBoxes int64   `json:"delta_boxes"`
	DeltaKilos float64 `json:"delta_kilos"`
	DeltaRows  int64   `json:"delta_rows"`
}

// Summary aggregates an audit
type Summary struct {
	Files            int           `json:"files"`
	OK               int           `json:"ok"`
	Warning          int           `json:"warning"`
	RowsCSV          int64         `json:"rows_csv"`
	RowsParquet      int64         `json:"rows_parquet"`
	BoxesCSV         int64         `json:"boxes_csv"`
	BoxesParquet     int64         `json:"boxes_parquet"`
	DeltaBoxes       int64         `json:"delta_boxes"`
	KilosCSV         float64       `json:"kilos_csv"`
	KilosParquet     float64       `json:"kilos_parquet"`
	DeltaKilos       float64       `json:"delta_kilos"`
	PctMismatchBoxes float64       `json:"pct_mismatch_boxes"`
	PctMismatchKilos float64       `json:"pct_mismatch_kilos"`
	WorstBoxes       *Record       `json:"worst_boxes,omitempty"`
	WorstKilos       *Record       `json:"worst_kilos,omitempty"`
	Master           *MasterTotals `json:"master,omitempty"`
}

// Summarize aggregates records into global totals and worst offenders
func Summarize(records []Record) Summary {
	s := Summary{
		Files:        len(records),
		RowsCSV:      sum(records, func(r Record) int64 { return r.RowsCSV }),
		RowsParquet:  sum(records, func(r Record) int64 { return r.RowsParquet }),
		BoxesCSV:     sum(records, func(r Record) int64 { return r.BoxesCSV }),
		BoxesParquet: sum(records, func(r Record) int64 { return r.BoxesParquet }),
		KilosCSV:     sum(records, func(r Record) float64 { return r.KilosCSV }),
		KilosParquet: sum(records, func(r Record) float64 { return r.KilosParquet }),
		WorstBoxes:   worst(records, func(r Record) int64 { return r.DeltaBoxes }),
		WorstKilos:   worst(records, func(r Record) float64 { return r.DeltaKilos }),
	}
	for _, r := range records {
		if r.OK() {
			s.OK++
		} else {
			s.Warning++
		}
	}
	s.DeltaBoxes = s.BoxesParquet - s.BoxesCSV
	s.DeltaKilos = s.KilosParquet - s.KilosCSV
	s.PctMismatchBoxes = percent(s.DeltaBoxes, s.BoxesCSV)
	s.PctMismatchKilos = percent(s.DeltaKilos, s.KilosCSV)
	return s
}

// WithMaster adds the totals of the consolidated table to the summary
func (s *Summary) WithMaster(master *table.Table) {
	m := &MasterTotals{
		Rows:  int64(master.Len()),
		Boxes: master.ColumnSumInt(schema.Boxes),
		Kilos: master.ColumnSumFloat(schema.NetWeightKg),
	}
	m.DeltaBoxes = m.Boxes - s.BoxesCSV
	m.DeltaKilos = m.Kilos - s.KilosCSV
	m.DeltaRows = m.Rows - s.RowsCSV
	s.Master = m
}

// Expected returns the raw totals used as the validation reference
func Expected(records []Record) (rows, boxes int64, kilos float64) {
	return sum(records, func(r Record) int64 { return r.RowsCSV }),
		sum(records, func(r Record) int64 { return r.BoxesCSV }),
		sum(records, func(r Record) float64 { return r.KilosCSV })
}
