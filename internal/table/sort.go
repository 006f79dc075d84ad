package table

import (
	"cmp"
	"slices"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/errors"
)

// SortKey names one sort column
type SortKey struct {
	Column     string
	Descending bool
}

// Asc builds ascending sort keys for the given columns
func Asc(columns ...string) []SortKey {
	keys := make([]SortKey, len(columns))
	for i, c := range columns {
		keys[i] = SortKey{Column: c}
	}
	return keys
}

// Sort returns a stably sorted copy of the table. Nulls sort first in
// ascending order and last in descending order.
func (t *Table) Sort(mem memory.Allocator, keys ...SortKey) (*Table, error) {
	cols := make([]*Column, len(keys))
	for i, k := range keys {
		c, ok := t.Column(k.Column)
		if !ok {
			return nil, errors.NewColumnNotFoundError("Sort", k.Column)
		}
		cols[i] = c
	}

	indices := make([]int, t.length)
	for i := range indices {
		indices[i] = i
	}
	slices.SortStableFunc(indices, func(a, b int) int {
		for i, c := range cols {
			r := compareRows(c, a, b)
			if r == 0 {
				continue
			}
			if keys[i].Descending {
				return -r
			}
			return r
		}
		return 0
	})
	return t.Take(indices, mem), nil
}

func compareRows(c *Column, a, b int) int {
	an, bn := c.IsNull(a), c.IsNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	switch c.Type() {
	case Int32, Int64:
		av, _ := c.Int(a)
		bv, _ := c.Int(b)
		return cmp.Compare(av, bv)
	case Float64:
		av, _ := c.Float(a)
		bv, _ := c.Float(b)
		return cmp.Compare(av, bv)
	case Bool:
		av, _ := c.Bool(a)
		bv, _ := c.Bool(b)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	default:
		av, _ := c.Str(a)
		bv, _ := c.Str(b)
		return cmp.Compare(av, bv)
	}
}
