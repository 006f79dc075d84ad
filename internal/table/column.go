// Package table provides a small nullable columnar table backed by Apache Arrow
// arrays. It is the in-memory form of every pipeline artifact: per-file
// normalized tables, the master table and the presentation table.
//
// Memory management: columns hold arrow arrays and must be released with
// Release when no longer needed. Tables own their columns.
package table

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// DataType is the logical type of a column
type DataType int

const (
	String DataType = iota
	Int32
	Int64
	Float64
	Bool
)

// String returns the canonical type name used in schema artifacts
func (t DataType) String() string {
	switch t {
	case String:
		return "string"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseDataType parses a type name as written by String
func ParseDataType(name string) (DataType, error) {
	switch name {
	case "string", "utf8", "str":
		return String, nil
	case "int32":
		return Int32, nil
	case "int64", "int":
		return Int64, nil
	case "float64", "float":
		return Float64, nil
	case "bool", "boolean":
		return Bool, nil
	default:
		return String, fmt.Errorf("unknown data type %q", name)
	}
}

// ArrowType returns the arrow type backing the logical type
func (t DataType) ArrowType() arrow.DataType {
	switch t {
	case Int32:
		return arrow.PrimitiveTypes.Int32
	case Int64:
		return arrow.PrimitiveTypes.Int64
	case Float64:
		return arrow.PrimitiveTypes.Float64
	case Bool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

func fromArrow(dt arrow.DataType) (DataType, error) {
	//nolint:exhaustive // Only handling supported types
	switch dt.ID() {
	case arrow.STRING, arrow.LARGE_STRING:
		return String, nil
	case arrow.INT32:
		return Int32, nil
	case arrow.INT64:
		return Int64, nil
	case arrow.FLOAT64:
		return Float64, nil
	case arrow.BOOL:
		return Bool, nil
	default:
		return String, fmt.Errorf("unsupported arrow type: %s", dt)
	}
}

// Field describes one column of a table
type Field struct {
	Name string
	Type DataType
}

// Column is a named, typed, nullable arrow array
type Column struct {
	name string
	typ  DataType
	arr  arrow.Array
}

// NewColumn wraps an arrow array. The column retains the array.
func NewColumn(name string, arr arrow.Array) (*Column, error) {
	typ, err := fromArrow(arr.DataType())
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", name, err)
	}
	arr.Retain()
	return &Column{name: name, typ: typ, arr: arr}, nil
}

// Name returns the column name
func (c *Column) Name() string { return c.name }

// Type returns the logical type
func (c *Column) Type() DataType { return c.typ }

// Len returns the number of values including nulls
func (c *Column) Len() int { return c.arr.Len() }

// NullN returns the number of nulls
func (c *Column) NullN() int { return c.arr.NullN() }

// IsNull reports whether row i is null
func (c *Column) IsNull(i int) bool { return c.arr.IsNull(i) }

// Array exposes the backing arrow array
func (c *Column) Array() arrow.Array { return c.arr }

// Retain increments the reference count of the backing array
func (c *Column) Retain() { c.arr.Retain() }

// Release decrements the reference count of the backing array
func (c *Column) Release() {
	if c != nil && c.arr != nil {
		c.arr.Release()
	}
}

// Int returns an integer value for Int32 and Int64 columns
func (c *Column) Int(i int) (int64, bool) {
	if c.arr.IsNull(i) {
		return 0, false
	}
	switch a := c.arr.(type) {
	case *array.Int64:
		return a.Value(i), true
	case *array.Int32:
		return int64(a.Value(i)), true
	default:
		return 0, false
	}
}

// Float returns a float value for Float64 columns
func (c *Column) Float(i int) (float64, bool) {
	if c.arr.IsNull(i) {
		return 0, false
	}
	if a, ok := c.arr.(*array.Float64); ok {
		return a.Value(i), true
	}
	return 0, false
}

// Str returns a string value for String columns
func (c *Column) Str(i int) (string, bool) {
	if c.arr.IsNull(i) {
		return "", false
	}
	switch a := c.arr.(type) {
	case *array.String:
		return a.Value(i), true
	case *array.LargeString:
		return a.Value(i), true
	default:
		return "", false
	}
}

// Bool returns a boolean value for Bool columns
func (c *Column) Bool(i int) (bool, bool) {
	if c.arr.IsNull(i) {
		return false, false
	}
	if a, ok := c.arr.(*array.Boolean); ok {
		return a.Value(i), true
	}
	return false, false
}

// Value returns row i as a Go value, or nil when null
func (c *Column) Value(i int) any {
	if c.arr.IsNull(i) {
		return nil
	}
	switch c.typ {
	case Int32, Int64:
		v, _ := c.Int(i)
		return v
	case Float64:
		v, _ := c.Float(i)
		return v
	case Bool:
		v, _ := c.Bool(i)
		return v
	default:
		v, _ := c.Str(i)
		return v
	}
}

// Format renders row i as text; nulls render as the empty string
func (c *Column) Format(i int) string {
	switch v := c.Value(i).(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
