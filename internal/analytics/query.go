package analytics

import (
	"cmp"
	"slices"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/errors"
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/table"
	"golang.org/x/exp/constraints"
)

// Number is a numeric value a range filter can compare
type Number interface {
	constraints.Integer | constraints.Float
}

// Filter selects rows whose column equals Value
type Filter struct {
	Column string
	Value  any
}

// Eq builds an equality filter
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func matcher(t *table.Table, filters []Filter) (func(row int) bool, error) {
	cols := make([]*table.Column, len(filters))
	values := make([]any, len(filters))
	for i, f := range filters {
		c, ok := t.Column(f.Column)
		if !ok {
			return nil, errors.NewColumnNotFoundError("Filter", f.Column)
		}
		cols[i] = c
		values[i] = normalizeValue(f.Value)
	}
	return func(row int) bool {
		for i, c := range cols {
			if c.Value(row) != values[i] {
				return false
			}
		}
		return true
	}, nil
}

// FilterEq keeps the rows matching every filter
func FilterEq(t *table.Table, mem memory.Allocator, filters ...Filter) (*table.Table, error) {
	keep, err := matcher(t, filters)
	if err != nil {
		return nil, err
	}
	return t.Filter(keep, mem), nil
}

// FilterRange keeps the rows whose numeric column lies in [lo, hi]
func FilterRange[T Number](t *table.Table, column string, lo, hi T, mem memory.Allocator) (*table.Table, error) {
	c, ok := t.Column(column)
	if !ok {
		return nil, errors.NewColumnNotFoundError("FilterRange", column)
	}
	return t.Filter(func(row int) bool {
		v, ok := numericAt(c, row)
		return ok && v >= float64(lo) && v <= float64(hi)
	}, mem), nil
}

func numericAt(c *table.Column, row int) (float64, bool) {
	if c.Type() == table.Float64 {
		return c.Float(row)
	}
	v, ok := c.Int(row)
	return float64(v), ok
}

// Distinct returns the sorted non-null values of a column
func Distinct(t *table.Table, column string) ([]any, error) {
	c, ok := t.Column(column)
	if !ok {
		return nil, errors.NewColumnNotFoundError("Distinct", column)
	}
	seen := make(map[any]bool)
	var out []any
	for i := range c.Len() {
		v := c.Value(i)
		if v == nil || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	slices.SortFunc(out, compareValues)
	return out, nil
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case int64:
		return cmp.Compare(x, b.(int64))
	case float64:
		return cmp.Compare(x, b.(float64))
	case string:
		return cmp.Compare(x, b.(string))
	case bool:
		switch {
		case x == b.(bool):
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	default:
		return 0
	}
}

// UniqueCount counts distinct values, null counting as one value
func UniqueCount(t *table.Table, column string) (int, error) {
	c, ok := t.Column(column)
	if !ok {
		return 0, errors.NewColumnNotFoundError("UniqueCount", column)
	}
	seen := make(map[any]struct{})
	for i := range c.Len() {
		seen[c.Value(i)] = struct{}{}
	}
	return len(seen), nil
}

// Totals are boxes, kilos and rows of a selection
type Totals struct {
	Boxes int64   `json:"boxes"`
	Kilos float64 `json:"kilos"`
	Rows  int     `json:"rows"`
}

// TotalsOf sums boxes and kilos over the whole table
func TotalsOf(t *table.Table) Totals {
	return Totals{
		Boxes: t.ColumnSumInt(schema.Boxes),
		Kilos: t.ColumnSumFloat(schema.NetWeightKg),
		Rows:  t.Len(),
	}
}

// TotalsBy sums boxes and kilos over the rows where dim equals value
func TotalsBy(t *table.Table, dim string, value any) (Totals, error) {
	groups, err := GroupSum(t, dim, Eq(dim, value))
	if err != nil {
		return Totals{}, err
	}
	if len(groups) == 0 {
		return Totals{}, nil
	}
	return groups[0].Totals, nil
}

// KPIs are the headline figures of a table
type KPIs struct {
	Totals
	Exporters int `json:"exporters"`
	Products  int `json:"products"`
	Countries int `json:"countries"`
}

// ComputeKPIs returns totals and distinct entity counts
func ComputeKPIs(t *table.Table) (KPIs, error) {
	k := KPIs{Totals: TotalsOf(t)}
	var err error
	if k.Exporters, err = UniqueCount(t, schema.Exporter); err != nil {
		return k, err
	}
	if k.Products, err = UniqueCount(t, schema.Product); err != nil {
		return k, err
	}
	if k.Countries, err = UniqueCount(t, schema.Country); err != nil {
		return k, err
	}
	return k, nil
}

// Group is the aggregate for one key of a dimension
type Group struct {
	Key any `json:"key"`
	Totals
}

func addNumber[T Number](dst *T, v T, ok bool) {
	if ok {
		*dst += v
	}
}

// GroupSum sums boxes and kilos per value of dim over the rows matching the
// filters. Groups are in first-appearance order; null is a key of its own.
func GroupSum(t *table.Table, dim string, filters ...Filter) ([]Group, error) {
	key, ok := t.Column(dim)
	if !ok {
		return nil, errors.NewColumnNotFoundError("GroupSum", dim)
	}
	keep, err := matcher(t, filters)
	if err != nil {
		return nil, err
	}
	boxes, _ := t.Column(schema.Boxes)
	kilos, _ := t.Column(schema.NetWeightKg)

	index := make(map[any]int)
	var groups []Group
	for row := range t.Len() {
		if !keep(row) {
			continue
		}
		k := key.Value(row)
		gi, seen := index[k]
		if !seen {
			gi = len(groups)
			index[k] = gi
			groups = append(groups, Group{Key: k})
		}
		g := &groups[gi]
		g.Rows++
		if boxes != nil {
			v, ok := boxes.Int(row)
			addNumber(&g.Boxes, v, ok)
		}
		if kilos != nil {
			v, ok := numericAt(kilos, row)
			addNumber(&g.Kilos, v, ok)
		}
	}
	return groups, nil
}

// TopN ranks the values of dim by boxes, descending, over the rows matching
// the filters. Ties keep first-appearance order.
func TopN(t *table.Table, dim string, n int, filters ...Filter) ([]Group, error) {
	groups, err := GroupSum(t, dim, filters...)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(groups, func(a, b Group) int {
		return cmp.Compare(b.Boxes, a.Boxes)
	})
	if n >= 0 && len(groups) > n {
		groups = groups[:n]
	}
	return groups, nil
}

// TimeSeries aggregates boxes and kilos per year, ascending, over the rows
// matching the filters
func TimeSeries(t *table.Table, filters ...Filter) ([]Group, error) {
	groups, err := GroupSum(t, schema.Year, filters...)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(groups, func(a, b Group) int {
		switch {
		case a.Key == nil && b.Key == nil:
			return 0
		case a.Key == nil:
			return -1
		case b.Key == nil:
			return 1
		}
		return compareValues(a.Key, b.Key)
	})
	return groups, nil
}
