package table

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/errors"
)

// Table is an ordered set of equal-length nullable columns.
// Operations return new tables; the receiver is never modified.
type Table struct {
	columns []*Column
	index   map[string]int
	length  int
}

// New creates a table from columns. Ownership of the columns moves to the table.
func New(columns ...*Column) (*Table, error) {
	t := &Table{
		columns: make([]*Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if i == 0 {
			t.length = c.Len()
		} else if c.Len() != t.length {
			return nil, errors.ErrMismatchedLength
		}
		if _, dup := t.index[c.Name()]; dup {
			return nil, errors.NewInvalidInputError("New", fmt.Sprintf("duplicate column %q", c.Name()))
		}
		t.index[c.Name()] = len(t.columns)
		t.columns = append(t.columns, c)
	}
	return t, nil
}

// Empty returns a table with no columns and no rows
func Empty() *Table {
	t, _ := New()
	return t
}

// Len returns the number of rows
func (t *Table) Len() int { return t.length }

// Width returns the number of columns
func (t *Table) Width() int { return len(t.columns) }

// Columns returns the column names in order
func (t *Table) Columns() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name()
	}
	return names
}

// Fields returns name and type of each column in order
func (t *Table) Fields() []Field {
	fields := make([]Field, len(t.columns))
	for i, c := range t.columns {
		fields[i] = Field{Name: c.Name(), Type: c.Type()}
	}
	return fields
}

// HasColumn reports whether a column exists
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a column by name
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// ColumnAt returns the i-th column
func (t *Table) ColumnAt(i int) *Column { return t.columns[i] }

// Select returns a table holding the named columns in the given order.
// Names that do not exist are an error.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]*Column, 0, len(names))
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			for _, prev := range cols {
				prev.Release()
			}
			return nil, errors.NewColumnNotFoundError("Select", name)
		}
		c.Retain()
		cols = append(cols, c)
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		out.length = t.length
	}
	return out, nil
}

// SelectPresent is Select restricted to the names that exist
func (t *Table) SelectPresent(names ...string) *Table {
	present := make([]string, 0, len(names))
	for _, name := range names {
		if t.HasColumn(name) {
			present = append(present, name)
		}
	}
	out, _ := t.Select(present...)
	return out
}

// With returns a table with col added, or replacing a column of the same name
// in place. Ownership of col moves to the returned table.
func (t *Table) With(col *Column) (*Table, error) {
	if t.Width() > 0 && col.Len() != t.length {
		return nil, errors.ErrMismatchedLength
	}
	cols := make([]*Column, 0, len(t.columns)+1)
	replaced := false
	for _, c := range t.columns {
		if c.Name() == col.Name() {
			cols = append(cols, col)
			replaced = true
			continue
		}
		c.Retain()
		cols = append(cols, c)
	}
	if !replaced {
		cols = append(cols, col)
	}
	return New(cols...)
}

// Take returns a table holding the rows at the given indices, in that order
func (t *Table) Take(indices []int, mem memory.Allocator) *Table {
	cols := make([]*Column, len(t.columns))
	for ci, c := range t.columns {
		b := NewBuilder(c.Name(), c.Type(), mem)
		b.Reserve(len(indices))
		for _, i := range indices {
			b.AppendFrom(c, i)
		}
		cols[ci] = b.Finish()
	}
	out, _ := New(cols...)
	if len(cols) == 0 {
		out.length = len(indices)
	}
	return out
}

// Filter returns the rows for which keep returns true, preserving order
func (t *Table) Filter(keep func(row int) bool, mem memory.Allocator) *Table {
	indices := make([]int, 0, t.length)
	for i := range t.length {
		if keep(i) {
			indices = append(indices, i)
		}
	}
	return t.Take(indices, mem)
}

// Release releases every column
func (t *Table) Release() {
	if t == nil {
		return
	}
	for _, c := range t.columns {
		c.Release()
	}
}

// Concat stacks tables vertically. The result holds the union of columns in
// first-appearance order; a table lacking a column contributes nulls for it.
// When two tables disagree on a column type the first type wins and
// mismatching values are cast non-strictly.
func Concat(mem memory.Allocator, tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, errors.ErrEmptyTable
	}
	var fields []Field
	seen := make(map[string]int)
	total := 0
	for _, t := range tables {
		total += t.Len()
		for _, f := range t.Fields() {
			if _, ok := seen[f.Name]; !ok {
				seen[f.Name] = len(fields)
				fields = append(fields, f)
			}
		}
	}

	cols := make([]*Column, len(fields))
	for fi, f := range fields {
		b := NewBuilder(f.Name, f.Type, mem)
		b.Reserve(total)
		for _, t := range tables {
			src, ok := t.Column(f.Name)
			if !ok {
				for range t.Len() {
					b.AppendNull()
				}
				continue
			}
			if src.Type() != f.Type {
				casted, _ := Cast(src, f.Type, mem)
				for i := range casted.Len() {
					b.AppendFrom(casted, i)
				}
				casted.Release()
				continue
			}
			for i := range src.Len() {
				b.AppendFrom(src, i)
			}
		}
		cols[fi] = b.Finish()
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		out.length = total
	}
	return out, nil
}
