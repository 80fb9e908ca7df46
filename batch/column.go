package batch

import "time"

// Column is a contiguous typed array plus a null bitmap. Only the slice
// matching Type is populated; the others are nil. Valid[i] == false means
// row i is null for this column.
type Column struct {
	Type Type

	Int64s     []int64
	Float64s   []float64
	Bools      []bool
	Strings    []string
	Timestamps []time.Time

	Valid []bool
}

// NewColumn allocates a Column of the given type with capacity rows
// preallocated.
func NewColumn(t Type, capacity int) Column {
	c := Column{Type: t, Valid: make([]bool, 0, capacity)}
	switch t {
	case Int64:
		c.Int64s = make([]int64, 0, capacity)
	case Float64:
		c.Float64s = make([]float64, 0, capacity)
	case Bool:
		c.Bools = make([]bool, 0, capacity)
	case String:
		c.Strings = make([]string, 0, capacity)
	case Timestamp:
		c.Timestamps = make([]time.Time, 0, capacity)
	}
	return c
}

// Len returns the row count held by the column.
func (c Column) Len() int { return len(c.Valid) }

// AppendNull appends a null row.
func (c *Column) AppendNull() {
	c.Valid = append(c.Valid, false)
	switch c.Type {
	case Int64:
		c.Int64s = append(c.Int64s, 0)
	case Float64:
		c.Float64s = append(c.Float64s, 0)
	case Bool:
		c.Bools = append(c.Bools, false)
	case String:
		c.Strings = append(c.Strings, "")
	case Timestamp:
		c.Timestamps = append(c.Timestamps, time.Time{})
	}
}

// Append appends v, which must match the column's Type unless v is null.
func (c *Column) Append(v Value) {
	if v.Null {
		c.AppendNull()
		return
	}
	c.Valid = append(c.Valid, true)
	switch c.Type {
	case Int64:
		c.Int64s = append(c.Int64s, v.I)
	case Float64:
		c.Float64s = append(c.Float64s, v.F)
	case Bool:
		c.Bools = append(c.Bools, v.B)
	case String:
		c.Strings = append(c.Strings, v.S)
	case Timestamp:
		c.Timestamps = append(c.Timestamps, v.T)
	}
}

// At returns the value at row i as a Value, with Null set per the bitmap.
func (c Column) At(i int) Value {
	if !c.Valid[i] {
		return NullValue(c.Type)
	}
	switch c.Type {
	case Int64:
		return IntValue(c.Int64s[i])
	case Float64:
		return FloatValue(c.Float64s[i])
	case Bool:
		return BoolValue(c.Bools[i])
	case String:
		return StringValue(c.Strings[i])
	case Timestamp:
		return TimeValue(c.Timestamps[i])
	default:
		return Value{}
	}
}

// SelectRows returns a new Column containing only the rows where keep[i]
// is true, preserving order. The result is an independent owner: slices
// are freshly allocated, not shared.
func (c Column) SelectRows(keep []bool) Column {
	out := NewColumn(c.Type, 0)
	for i, k := range keep {
		if k {
			out.Append(c.At(i))
		}
	}
	return out
}

// ByteSize estimates the in-memory footprint of the column, used to derive
// Batch.ByteSize for the executor's memory budget.
func (c Column) ByteSize() int64 {
	n := int64(c.Len())
	switch c.Type {
	case Int64, Float64, Timestamp:
		return n * 8
	case Bool:
		return n * 1
	case String:
		var total int64
		for _, s := range c.Strings {
			total += int64(len(s))
		}
		return total + n*16 // string header overhead estimate
	default:
		return n * 8
	}
}
