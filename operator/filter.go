package operator

import (
	"context"
	"fmt"
	"strings"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/errs"
)

// FilterOp is the closed set of comparison operators a filter step may use,
// of this engine.
type FilterOp string

const (
	FilterEq       FilterOp = "eq"
	FilterNe       FilterOp = "ne"
	FilterLt       FilterOp = "lt"
	FilterLe       FilterOp = "le"
	FilterGt       FilterOp = "gt"
	FilterGe       FilterOp = "ge"
	FilterIn       FilterOp = "in"
	FilterContains FilterOp = "contains"
	FilterIsNull   FilterOp = "is_null"
	FilterNotNull  FilterOp = "not_null"
)

// Comparable reports whether op requires an ordering (lt/le/gt/ge), which is
// rejected by the compiler against bool columns.
func Comparable(op FilterOp) bool {
	switch op {
	case FilterLt, FilterLe, FilterGt, FilterGe:
		return true
	default:
		return false
	}
}

// Filter implements the filter operator: three-valued
// comparison logic where a null operand always yields a non-match, except
// through is_null/not_null, the only ways to select nulls.
type Filter struct {
	step     int
	colIndex int
	schema   batch.Schema
	op       FilterOp
	value    batch.Value
	values   []batch.Value // for FilterIn
}

// NewFilter builds a Filter against schema. stepIndex is recorded for
// OperatorError reporting.
func NewFilter(stepIndex int, schema batch.Schema, column string, op FilterOp, value batch.Value, values []batch.Value) (*Filter, error) {
	idx := schema.IndexOf(column)
	if idx < 0 {
		return nil, errs.PipelineErr(stepIndex, "filter: unknown column "+column)
	}
	field := schema.Fields[idx]
	if Comparable(op) && field.Type == batch.Bool {
		return nil, errs.PipelineErr(stepIndex, "filter: ordering comparison not valid on bool column "+column)
	}
	return &Filter{step: stepIndex, colIndex: idx, schema: schema, op: op, value: value, values: values}, nil
}

func (f *Filter) OutputSchema() batch.Schema { return f.schema }

func (f *Filter) Apply(ctx context.Context, b *batch.Batch) (*batch.Batch, error) {
	col := &b.Columns[f.colIndex]
	keep := make([]bool, b.RowCount)
	for i := 0; i < b.RowCount; i++ {
		v := col.At(i)
		match, err := f.matches(v)
		if err != nil {
			return nil, errs.OperatorErr(f.step, int64(i), err.Error())
		}
		keep[i] = match
	}
	return b.SelectRows(keep), nil
}

func (f *Filter) matches(v batch.Value) (bool, error) {
	switch f.op {
	case FilterIsNull:
		return v.Null, nil
	case FilterNotNull:
		return !v.Null, nil
	}
	if v.Null {
		// Three-valued logic: a null operand never matches eq/ne/ordering/in/contains.
		return false, nil
	}
	switch f.op {
	case FilterEq:
		return v.Equal(f.value), nil
	case FilterNe:
		return !v.Equal(f.value), nil
	case FilterLt:
		return v.Less(f.value), nil
	case FilterLe:
		return v.Less(f.value) || v.Equal(f.value), nil
	case FilterGt:
		return f.value.Less(v), nil
	case FilterGe:
		return f.value.Less(v) || v.Equal(f.value), nil
	case FilterIn:
		for _, candidate := range f.values {
			if v.Equal(candidate) {
				return true, nil
			}
		}
		return false, nil
	case FilterContains:
		if v.Type != batch.String || f.value.Type != batch.String {
			return false, fmt.Errorf("contains requires string operands")
		}
		return strings.Contains(v.S, f.value.S), nil
	default:
		return false, fmt.Errorf("unknown filter op %q", f.op)
	}
}
