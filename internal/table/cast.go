package table

import (
	"math"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/fruitflow/internal/coerce"
)

// Cast converts a column to another type without failing. Values that cannot
// be represented become null and are counted in the returned failure count.
// Nulls stay null and are not counted.
func Cast(col *Column, to DataType, mem memory.Allocator) (*Column, int) {
	if col.Type() == to {
		col.Retain()
		return &Column{name: col.name, typ: col.typ, arr: col.arr}, 0
	}

	b := NewBuilder(col.Name(), to, mem)
	b.Reserve(col.Len())
	failed := 0
	for i := range col.Len() {
		if col.IsNull(i) {
			b.AppendNull()
			continue
		}
		if !castValue(b, col, i, to) {
			b.AppendNull()
			failed++
		}
	}
	return b.Finish(), failed
}

func castValue(b *Builder, col *Column, i int, to DataType) bool {
	switch col.Type() {
	case String:
		s, _ := col.Str(i)
		return castString(b, s, to)
	case Int32, Int64:
		v, _ := col.Int(i)
		switch to {
		case Int32:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return false
			}
			b.AppendInt(v)
		case Int64:
			b.AppendInt(v)
		case Float64:
			b.AppendFloat(float64(v))
		case Bool:
			b.AppendBool(v != 0)
		default:
			b.AppendString(strconv.FormatInt(v, 10))
		}
		return true
	case Float64:
		v, _ := col.Float(i)
		switch to {
		case Int32, Int64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
			t := math.Trunc(v)
			if to == Int32 && (t < math.MinInt32 || t > math.MaxInt32) {
				return false
			}
			if t < math.MinInt64 || t >= math.MaxInt64 {
				return false
			}
			b.AppendInt(int64(t))
		case Bool:
			b.AppendBool(v != 0)
		default:
			b.AppendString(strconv.FormatFloat(v, 'f', -1, 64))
		}
		return true
	case Bool:
		v, _ := col.Bool(i)
		n := int64(0)
		if v {
			n = 1
		}
		switch to {
		case Int32, Int64:
			b.AppendInt(n)
		case Float64:
			b.AppendFloat(float64(n))
		default:
			b.AppendString(strconv.FormatBool(v))
		}
		return true
	}
	return false
}

func castString(b *Builder, s string, to DataType) bool {
	switch to {
	case Int32, Int64:
		r := coerce.Int(s)
		if !r.Valid {
			return false
		}
		if to == Int32 && (r.Value < math.MinInt32 || r.Value > math.MaxInt32) {
			return false
		}
		b.AppendInt(r.Value)
	case Float64:
		r := coerce.Float(s)
		if !r.Valid {
			return false
		}
		b.AppendFloat(r.Value)
	case Bool:
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return false
		}
		b.AppendBool(v)
	default:
		b.AppendString(s)
	}
	return true
}
