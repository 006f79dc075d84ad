// Package finalize derives the downstream tables from the master table: the
// null-filled master, the presentation table and the season subset.
package finalize

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/schema"
	"github.com/paveg/fruitflow/internal/table"
)

// FillPolicy controls which nulls FillNulls replaces
type FillPolicy struct {
	// StringSentinel replaces nulls in string columns
	StringSentinel string
	// FillNumeric replaces nulls in numeric columns with zero
	FillNumeric bool
}

// FillReport records nulls per column before and after filling
type FillReport struct {
	Before   map[string]int `json:"before"`
	After    map[string]int `json:"after"`
	Filled   map[string]int `json:"filled"`
	Rows     int            `json:"rows"`
	Modified bool           `json:"modified"`
}

// FillNulls replaces nulls according to policy. Rows are never added or
// removed, duplicates included, and source_week is left untouched.
func FillNulls(t *table.Table, policy FillPolicy, mem memory.Allocator) (*table.Table, FillReport) {
	report := FillReport{
		Before: make(map[string]int),
		After:  make(map[string]int),
		Filled: make(map[string]int),
		Rows:   t.Len(),
	}

	cols := make([]*table.Column, 0, t.Width())
	for _, name := range t.Columns() {
		c, _ := t.Column(name)
		nulls := c.NullN()
		if nulls > 0 && !schema.IsMetadata(name) {
			report.Before[name] = nulls
		}

		if nulls == 0 || schema.IsMetadata(name) || !fillable(c.Type(), policy) {
			if nulls > 0 && !schema.IsMetadata(name) {
				report.After[name] = nulls
			}
			c.Retain()
			cols = append(cols, c)
			continue
		}

		cols = append(cols, fillColumn(c, policy, mem))
		report.Filled[name] = nulls
		report.Modified = true
	}

	out, _ := table.New(cols...)
	return out, report
}

func fillable(typ table.DataType, policy FillPolicy) bool {
	switch typ {
	case table.String:
		return true
	case table.Int32, table.Int64, table.Float64:
		return policy.FillNumeric
	default:
		return false
	}
}

func fillColumn(c *table.Column, policy FillPolicy, mem memory.Allocator) *table.Column {
	b := table.NewBuilder(c.Name(), c.Type(), mem)
	b.Reserve(c.Len())
	for i := range c.Len() {
		if !c.IsNull(i) {
			b.AppendFrom(c, i)
			continue
		}
		switch c.Type() {
		case table.String:
			b.AppendString(policy.StringSentinel)
		case table.Float64:
			b.AppendFloat(0)
		default:
			b.AppendInt(0)
		}
	}
	return b.Finish()
}
