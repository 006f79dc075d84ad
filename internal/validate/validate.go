// Package validate checks the master table for schema shape, types, nulls,
// value-range outliers, duplicates and totals, and writes the validation
// report. It never modifies the table.
package validate

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/paveg/fruitflow/internal/audit"
	"github.com/paveg/fruitflow/internal/io"
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/table"
)

// Expected totals sources
const (
	SourceAudit  = "audit"
	SourceConfig = "config"
	SourceNone   = "none"
)

// Expected holds the reference totals the master table is checked against
type Expected struct {
	Rows   *int64
	Boxes  *int64
	Kilos  *float64
	Source string
}

// ExpectedFromAudit derives the reference totals from audit records
func ExpectedFromAudit(records []audit.Record) Expected {
	rows, boxes, kilos := audit.Expected(records)
	return Expected{Rows: &rows, Boxes: &boxes, Kilos: &kilos, Source: SourceAudit}
}

// ExpectedFromConfig uses configured totals; without any it reports no source
func ExpectedFromConfig(rows, boxes *int64, kilos *float64) Expected {
	e := Expected{Rows: rows, Boxes: boxes, Kilos: kilos, Source: SourceConfig}
	if rows == nil && boxes == nil && kilos == nil {
		e.Source = SourceNone
	}
	return e
}

// Options configures the range checks and totals comparison
type Options struct {
	RunID          string
	MinYear        int64
	KilosTolerance float64
	Now            func() time.Time
}

// TypeIssue is a column whose type differs from the canonical one
type TypeIssue struct {
	Column   string `json:"column"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// SchemaCheck is the result of the schema shape check
type SchemaCheck struct {
	OK         bool        `json:"schema_ok"`
	Missing    []string    `json:"missing_columns"`
	Extra      []string    `json:"extra_columns"`
	OrderOK    bool        `json:"order_ok"`
	TypeIssues []TypeIssue `json:"type_issues"`
	Metadata   []string    `json:"metadata_columns"`
}

// Outliers counts rows outside the plausible value ranges
type Outliers struct {
	WeekOutOfRange int `json:"week_out_of_range"`
	YearOutOfRange int `json:"year_out_of_range"`
	NegativeBoxes  int `json:"negative_boxes"`
	NegativeKilos  int `json:"negative_kilos"`
}

// Total returns the number of flagged values
func (o Outliers) Total() int {
	return o.WeekOutOfRange + o.YearOutOfRange + o.NegativeBoxes + o.NegativeKilos
}

// Offender is the file with the largest absolute delta for a metric
type Offender struct {
	Metric  string  `json:"metric"`
	File    string  `json:"file"`
	CSV     float64 `json:"csv"`
	Parquet float64 `json:"parquet"`
	Delta   float64 `json:"delta"`
	Status  string  `json:"status"`
}

// Report is the validation report written as JSON
type Report struct {
	RunID          string         `json:"run_id"`
	GeneratedAt    time.Time      `json:"generated_at"`
	TotalRows      int64          `json:"total_rows"`
	ExpectedRows   *int64         `json:"expected_rows"`
	TotalBoxes     int64          `json:"total_boxes"`
	TotalKilos     float64        `json:"total_kilos"`
	ExpectedBoxes  *int64         `json:"expected_boxes"`
	ExpectedKilos  *float64       `json:"expected_kilos"`
	ExpectedSource string         `json:"expected_source"`
	MissingValues  map[string]int `json:"missing_values"`
	Duplicates     int            `json:"duplicates"`
	SchemaOK       bool           `json:"schema_ok"`
	TypesOK        bool           `json:"types_ok"`
	TotalsMatchCSV bool           `json:"totals_match_csv"`
	RowCountOK     bool           `json:"row_count_ok"`
	Schema         SchemaCheck    `json:"schema"`
	Outliers       Outliers       `json:"outliers"`
	WorstOffenders []Offender     `json:"worst_offenders"`
	Warnings       []string       `json:"warnings"`
}

// CheckSchema compares the table columns with the canonical schema.
// source_week is metadata and never counts as extra.
func CheckSchema(t *table.Table) SchemaCheck {
	expected := schema.CanonicalNames()
	actual := t.Columns()
	check := SchemaCheck{Missing: []string{}, Extra: []string{}, TypeIssues: []TypeIssue{}, Metadata: []string{}}

	for _, name := range expected {
		if !slices.Contains(actual, name) {
			check.Missing = append(check.Missing, name)
		}
	}
	var present []string
	for _, name := range actual {
		switch {
		case schema.IsMetadata(name):
			check.Metadata = append(check.Metadata, name)
		case schema.IsCanonical(name):
			present = append(present, name)
		default:
			check.Extra = append(check.Extra, name)
		}
	}
	check.OrderOK = slices.Equal(present, expected)
	check.TypeIssues = typeIssues(t)
	check.OK = len(check.Missing) == 0 && len(check.Extra) == 0 && check.OrderOK && len(check.TypeIssues) == 0
	return check
}

func typeIssues(t *table.Table) []TypeIssue {
	issues := []TypeIssue{}
	for _, f := range t.Fields() {
		want, ok := schema.TypeOf(f.Name)
		if ok && want != f.Type {
			issues = append(issues, TypeIssue{Column: f.Name, Expected: want.String(), Actual: f.Type.String()})
		}
	}
	return issues
}

// NullCounts returns the null count of every column
func NullCounts(t *table.Table) map[string]int {
	out := make(map[string]int, t.Width())
	for i := range t.Width() {
		c := t.ColumnAt(i)
		out[c.Name()] = c.NullN()
	}
	return out
}

// FindOutliers counts range violations; nulls are never outliers
func FindOutliers(t *table.Table, minYear, currentYear int64) Outliers {
	var o Outliers
	o.WeekOutOfRange = countInts(t, schema.Week, func(v int64) bool { return v < 1 || v > 53 })
	o.YearOutOfRange = countInts(t, schema.Year, func(v int64) bool { return v < minYear || v > currentYear })
	o.NegativeBoxes = countInts(t, schema.Boxes, func(v int64) bool { return v < 0 })
	if c, ok := t.Column(schema.NetWeightKg); ok {
		for i := range c.Len() {
			if v, ok := c.Float(i); ok && v < 0 {
				o.NegativeKilos++
			}
		}
	}
	return o
}

func countInts(t *table.Table, name string, flagged func(int64) bool) int {
	c, ok := t.Column(name)
	if !ok {
		return 0
	}
	n := 0
	for i := range c.Len() {
		if v, ok := c.Int(i); ok && flagged(v) {
			n++
		}
	}
	return n
}

// Validate runs every check over the master table
func Validate(t *table.Table, expected Expected, records []audit.Record, opts Options) Report {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	generated := now().UTC()

	sc := CheckSchema(t)
	r := Report{
		RunID:          opts.RunID,
		GeneratedAt:    generated,
		TotalRows:      int64(t.Len()),
		ExpectedRows:   expected.Rows,
		TotalBoxes:     t.ColumnSumInt(schema.Boxes),
		TotalKilos:     t.ColumnSumFloat(schema.NetWeightKg),
		ExpectedBoxes:  expected.Boxes,
		ExpectedKilos:  expected.Kilos,
		ExpectedSource: expected.Source,
		MissingValues:  NullCounts(t),
		Duplicates:     Duplicates(t),
		SchemaOK:       sc.OK,
		TypesOK:        len(sc.TypeIssues) == 0,
		Schema:         sc,
		Outliers:       FindOutliers(t, opts.MinYear, int64(generated.Year())),
		WorstOffenders: worstOffenders(records),
		Warnings:       []string{},
	}
	if r.ExpectedSource == "" {
		r.ExpectedSource = SourceNone
	}

	boxesMatch := expected.Boxes == nil || *expected.Boxes == r.TotalBoxes
	kilosMatch := expected.Kilos == nil || withinTolerance(*expected.Kilos, r.TotalKilos, opts.KilosTolerance)
	r.TotalsMatchCSV = expected.Boxes != nil && expected.Kilos != nil && boxesMatch && kilosMatch
	r.RowCountOK = expected.Rows == nil || r.TotalRows >= *expected.Rows

	r.Warnings = warnings(r, boxesMatch, kilosMatch, opts.MinYear)
	return r
}

// withinTolerance compares kilos relative to the expected magnitude
func withinTolerance(expected, actual, tol float64) bool {
	return math.Abs(expected-actual) <= tol*math.Max(1, math.Abs(expected))
}

func worstOffenders(records []audit.Record) []Offender {
	s := audit.Summarize(records)
	out := []Offender{}
	if s.WorstBoxes != nil {
		w := s.WorstBoxes
		out = append(out, Offender{
			Metric: schema.Boxes, File: w.File, CSV: float64(w.BoxesCSV), Parquet: float64(w.BoxesParquet),
			Delta: float64(w.DeltaBoxes), Status: w.Status,
		})
	}
	if s.WorstKilos != nil {
		w := s.WorstKilos
		out = append(out, Offender{
			Metric: schema.NetWeightKg, File: w.File, CSV: w.KilosCSV, Parquet: w.KilosParquet,
			Delta: w.DeltaKilos, Status: w.Status,
		})
	}
	return out
}

func warnings(r Report, boxesMatch, kilosMatch bool, minYear int64) []string {
	var w []string
	sc := r.Schema
	if !sc.OK {
		w = append(w, "schema does not match the canonical schema")
		if len(sc.Missing) > 0 {
			w = append(w, fmt.Sprintf("missing columns: %v", sc.Missing))
		}
		if len(sc.Extra) > 0 {
			w = append(w, fmt.Sprintf("extra columns: %v", sc.Extra))
		}
		if !sc.OrderOK {
			w = append(w, "column order differs from the canonical order")
		}
	}
	for _, ti := range sc.TypeIssues {
		w = append(w, fmt.Sprintf("column %s: expected %s, got %s", ti.Column, ti.Expected, ti.Actual))
	}

	var required []string
	for _, f := range schema.Canonical {
		if f.Required && r.MissingValues[f.Name] > 0 {
			required = append(required, f.Name)
		}
	}
	for _, name := range required {
		w = append(w, fmt.Sprintf("required column %s has %d null values", name, r.MissingValues[name]))
	}

	o := r.Outliers
	if o.WeekOutOfRange > 0 {
		w = append(w, fmt.Sprintf("week outside 1-53: %d rows", o.WeekOutOfRange))
	}
	if o.YearOutOfRange > 0 {
		w = append(w, fmt.Sprintf("year outside %d-%d: %d rows", minYear, r.GeneratedAt.Year(), o.YearOutOfRange))
	}
	if o.NegativeBoxes > 0 {
		w = append(w, fmt.Sprintf("negative boxes: %d rows", o.NegativeBoxes))
	}
	if o.NegativeKilos > 0 {
		w = append(w, fmt.Sprintf("negative kilos: %d rows", o.NegativeKilos))
	}
	if r.Duplicates > 0 {
		w = append(w, fmt.Sprintf("duplicate rows: %d", r.Duplicates))
	}

	if r.ExpectedBoxes == nil || r.ExpectedKilos == nil {
		w = append(w, "no expected totals available")
	} else if !r.TotalsMatchCSV {
		w = append(w, "totals do not match the raw files")
		if !boxesMatch {
			w = append(w, fmt.Sprintf("boxes: expected %d, got %d", *r.ExpectedBoxes, r.TotalBoxes))
		}
		if !kilosMatch {
			w = append(w, fmt.Sprintf("kilos: expected %.2f, got %.2f", *r.ExpectedKilos, r.TotalKilos))
		}
	}

	if r.ExpectedRows != nil {
		switch {
		case r.TotalRows < *r.ExpectedRows:
			w = append(w, fmt.Sprintf("row count %d is below the expected %d", r.TotalRows, *r.ExpectedRows))
		case r.TotalRows > *r.ExpectedRows:
			w = append(w, fmt.Sprintf("row count %d is above the expected %d", r.TotalRows, *r.ExpectedRows))
		}
	}
	if w == nil {
		w = []string{}
	}
	return w
}

// WriteReport writes the report as indented JSON
func WriteReport(path string, r Report) error {
	return io.WriteJSON(path, r)
}

// ReadReport reads a report written by WriteReport
func ReadReport(path string) (Report, error) {
	var r Report
	err := io.ReadJSON(path, &r)
	return r, err
}
