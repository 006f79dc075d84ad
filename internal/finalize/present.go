package finalize

import (
	"math"
	"slices"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/season"
	"github.com/paveg/fruitflow/internal/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Presentation columns
const (
	SeasonStartYear    = "season_start_year"
	SeasonEndYear      = "season_end_year"
	AbsoluteSeasonWeek = "absolute_season_week"
	UnitWeightKg       = "unit_weight_kg"
	IsDataOutlier      = "is_data_outlier"
)

// PresentOptions configures the presentation transform
type PresentOptions struct {
	PivotWeek     int64
	MinUnitWeight float64
	MaxUnitWeight float64
}

// DefaultPresentOptions returns the standard season pivot and unit weight bounds
func DefaultPresentOptions() PresentOptions {
	return PresentOptions{PivotWeek: season.DefaultPivotWeek, MinUnitWeight: 1, MaxUnitWeight: 25}
}

// retitled are re-cased so that ranking keys collapse
var retitled = []string{schema.Variety, schema.Importer, schema.Exporter, schema.Market, schema.Region}

// Present builds the dashboard table: entity names are re-cased, season
// years, the absolute season week and unit weight metrics are added, and rows
// are stably sorted by (season, absolute_season_week).
func Present(t *table.Table, opts PresentOptions, mem memory.Allocator) (*table.Table, error) {
	title := cases.Title(language.Und)

	cols := make([]*table.Column, 0, t.Width()+5)
	for _, name := range t.Columns() {
		c, _ := t.Column(name)
		if c.Type() == table.String && slices.Contains(retitled, name) {
			cols = append(cols, mapStrings(c, func(s string) string {
				return title.String(strings.TrimSpace(s))
			}, mem))
			continue
		}
		c.Retain()
		cols = append(cols, c)
	}

	if c, ok := t.Column(schema.Season); ok {
		start, end := seasonYears(c, mem)
		cols = append(cols, start, end)
	}
	if c, ok := t.Column(schema.Week); ok {
		cols = append(cols, absoluteWeeks(c, opts.PivotWeek, mem))
	}
	boxes, hasBoxes := t.Column(schema.Boxes)
	kilos, hasKilos := t.Column(schema.NetWeightKg)
	if hasBoxes && hasKilos {
		weight, outlier := unitWeights(boxes, kilos, opts, mem)
		cols = append(cols, weight, outlier)
	}

	derived, err := table.New(cols...)
	if err != nil {
		for _, c := range cols {
			c.Release()
		}
		return nil, err
	}
	defer derived.Release()

	keys := make([]table.SortKey, 0, 2)
	for _, k := range []string{schema.Season, AbsoluteSeasonWeek} {
		if derived.HasColumn(k) {
			keys = append(keys, table.SortKey{Column: k})
		}
	}
	return derived.Sort(mem, keys...)
}

func mapStrings(c *table.Column, fn func(string) string, mem memory.Allocator) *table.Column {
	b := table.NewBuilder(c.Name(), table.String, mem)
	b.Reserve(c.Len())
	for i := range c.Len() {
		if s, ok := c.Str(i); ok {
			b.AppendString(fn(s))
		} else {
			b.AppendNull()
		}
	}
	return b.Finish()
}

func seasonYears(c *table.Column, mem memory.Allocator) (*table.Column, *table.Column) {
	start := table.NewBuilder(SeasonStartYear, table.Int32, mem)
	end := table.NewBuilder(SeasonEndYear, table.Int32, mem)
	start.Reserve(c.Len())
	end.Reserve(c.Len())
	for i := range c.Len() {
		s, ok := c.Str(i)
		if !ok {
			start.AppendNull()
			end.AppendNull()
			continue
		}
		sy, sok, ey, eok := season.SplitSeason(s)
		appendOptional(start, sy, sok)
		appendOptional(end, ey, eok)
	}
	return start.Finish(), end.Finish()
}

func appendOptional(b *table.Builder, v int64, ok bool) {
	if ok {
		b.AppendInt(v)
	} else {
		b.AppendNull()
	}
}

func absoluteWeeks(c *table.Column, pivot int64, mem memory.Allocator) *table.Column {
	b := table.NewBuilder(AbsoluteSeasonWeek, table.Int64, mem)
	b.Reserve(c.Len())
	for i := range c.Len() {
		w, ok := c.Int(i)
		appendOptional(b, season.AbsoluteWeek(w, pivot), ok)
	}
	return b.Finish()
}

// unitWeights computes kilos per box. 0/0 is reported as weight 0 and, like
// x/0, flagged as an outlier. Rows with a null operand have a null weight and
// are not outliers.
func unitWeights(boxes, kilos *table.Column, opts PresentOptions, mem memory.Allocator) (*table.Column, *table.Column) {
	weight := table.NewBuilder(UnitWeightKg, table.Float64, mem)
	outlier := table.NewBuilder(IsDataOutlier, table.Bool, mem)
	weight.Reserve(boxes.Len())
	outlier.Reserve(boxes.Len())
	for i := range boxes.Len() {
		bx, bok := numeric(boxes, i)
		kg, kok := numeric(kilos, i)
		if !bok || !kok {
			weight.AppendNull()
			outlier.AppendBool(false)
			continue
		}
		ratio := kg / bx
		nan := math.IsNaN(ratio)
		outlier.AppendBool(nan || ratio < opts.MinUnitWeight || ratio > opts.MaxUnitWeight)
		if nan {
			ratio = 0
		}
		weight.AppendFloat(ratio)
	}
	return weight.Finish(), outlier.Finish()
}

func numeric(c *table.Column, i int) (float64, bool) {
	if c.Type() == table.Float64 {
		return c.Float(i)
	}
	v, ok := c.Int(i)
	return float64(v), ok
}
