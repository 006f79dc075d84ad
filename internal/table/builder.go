package table

import (
	"math"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Builder accumulates values for one column
type Builder struct {
	name string
	typ  DataType
	b    array.Builder
}

// NewBuilder creates a builder for a column of the given type
func NewBuilder(name string, typ DataType, mem memory.Allocator) *Builder {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Builder{
		name: name,
		typ:  typ,
		b:    array.NewBuilder(mem, typ.ArrowType()),
	}
}

// Reserve preallocates room for n values
func (b *Builder) Reserve(n int) { b.b.Reserve(n) }

// AppendNull appends a null
func (b *Builder) AppendNull() { b.b.AppendNull() }

// AppendInt appends an integer. Float and string builders receive the
// converted value; Int32 builders null out values that do not fit.
func (b *Builder) AppendInt(v int64) {
	switch bb := b.b.(type) {
	case *array.Int64Builder:
		bb.Append(v)
	case *array.Int32Builder:
		if v < math.MinInt32 || v > math.MaxInt32 {
			bb.AppendNull()
			return
		}
		bb.Append(int32(v))
	case *array.Float64Builder:
		bb.Append(float64(v))
	default:
		b.b.AppendNull()
	}
}

// AppendFloat appends a float to a Float64 builder
func (b *Builder) AppendFloat(v float64) {
	if bb, ok := b.b.(*array.Float64Builder); ok {
		bb.Append(v)
		return
	}
	b.b.AppendNull()
}

// AppendString appends a string to a String builder
func (b *Builder) AppendString(v string) {
	if bb, ok := b.b.(*array.StringBuilder); ok {
		bb.Append(v)
		return
	}
	b.b.AppendNull()
}

// AppendBool appends a boolean to a Bool builder
func (b *Builder) AppendBool(v bool) {
	if bb, ok := b.b.(*array.BooleanBuilder); ok {
		bb.Append(v)
		return
	}
	b.b.AppendNull()
}

// AppendFrom copies row i of src, which must have the builder's type
func (b *Builder) AppendFrom(src *Column, i int) {
	if src.IsNull(i) {
		b.b.AppendNull()
		return
	}
	switch b.typ {
	case Int32, Int64:
		v, _ := src.Int(i)
		b.AppendInt(v)
	case Float64:
		v, _ := src.Float(i)
		b.AppendFloat(v)
	case Bool:
		v, _ := src.Bool(i)
		b.AppendBool(v)
	default:
		v, _ := src.Str(i)
		b.AppendString(v)
	}
}

// Finish builds the column and releases the builder
func (b *Builder) Finish() *Column {
	arr := b.b.NewArray()
	b.b.Release()
	return &Column{name: b.name, typ: b.typ, arr: arr}
}

// Int64s builds an Int64 column; valid may be nil when every value is present
func Int64s(name string, values []int64, valid []bool, mem memory.Allocator) *Column {
	b := NewBuilder(name, Int64, mem)
	b.Reserve(len(values))
	for i, v := range values {
		if valid != nil && !valid[i] {
			b.AppendNull()
			continue
		}
		b.AppendInt(v)
	}
	return b.Finish()
}

// Float64s builds a Float64 column
func Float64s(name string, values []float64, valid []bool, mem memory.Allocator) *Column {
	b := NewBuilder(name, Float64, mem)
	b.Reserve(len(values))
	for i, v := range values {
		if valid != nil && !valid[i] {
			b.AppendNull()
			continue
		}
		b.AppendFloat(v)
	}
	return b.Finish()
}

// Strings builds a String column
func Strings(name string, values []string, valid []bool, mem memory.Allocator) *Column {
	b := NewBuilder(name, String, mem)
	b.Reserve(len(values))
	for i, v := range values {
		if valid != nil && !valid[i] {
			b.AppendNull()
			continue
		}
		b.AppendString(v)
	}
	return b.Finish()
}

// Nulls builds an all-null column of length n
func Nulls(name string, typ DataType, n int, mem memory.Allocator) *Column {
	b := NewBuilder(name, typ, mem)
	b.Reserve(n)
	for range n {
		b.AppendNull()
	}
	return b.Finish()
}

// Constant builds an Int64 column repeating v n times
func Constant(name string, v int64, n int, mem memory.Allocator) *Column {
	b := NewBuilder(name, Int64, mem)
	b.Reserve(n)
	for range n {
		b.AppendInt(v)
	}
	return b.Finish()
}
