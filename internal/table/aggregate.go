package table

// SumInt adds the non-null values of an integer column
func SumInt(c *Column) int64 {
	var total int64
	for i := range c.Len() {
		if v, ok := c.Int(i); ok {
			total += v
		}
	}
	return total
}

// SumFloat adds the non-null values of a numeric column as float64
func SumFloat(c *Column) float64 {
	var total float64
	for i := range c.Len() {
		switch c.Type() {
		case Float64:
			if v, ok := c.Float(i); ok {
				total += v
			}
		case Int32, Int64:
			if v, ok := c.Int(i); ok {
				total += float64(v)
			}
		}
	}
	return total
}

// ColumnSumInt sums a named integer column; a missing column sums to zero
func (t *Table) ColumnSumInt(name string) int64 {
	c, ok := t.Column(name)
	if !ok {
		return 0
	}
	return SumInt(c)
}

// ColumnSumFloat sums a named numeric column; a missing column sums to zero
func (t *Table) ColumnSumFloat(name string) float64 {
	c, ok := t.Column(name)
	if !ok {
		return 0
	}
	return SumFloat(c)
}
