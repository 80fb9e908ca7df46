package operator

import (
	"context"
	"strconv"
	"time"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/errs"
)

// Cast implements the cast operator: casts one column to a
// target type. A value that fails to cast becomes null, unless strict is
// set, in which case the run fails with an OperatorError carrying the
// offending row's offset.
type Cast struct {
	step     int
	colIndex int
	to       batch.Type
	strict   bool
	schema   batch.Schema
}

func NewCast(stepIndex int, schema batch.Schema, column string, to batch.Type, strict bool) (*Cast, error) {
	idx := schema.IndexOf(column)
	if idx < 0 {
		return nil, errs.PipelineErr(stepIndex, "cast: unknown column "+column)
	}
	fields := make([]batch.Field, len(schema.Fields))
	copy(fields, schema.Fields)
	fields[idx] = batch.Field{Name: fields[idx].Name, Type: to, Nullable: true}
	return &Cast{step: stepIndex, colIndex: idx, to: to, strict: strict, schema: batch.Schema{Fields: fields}}, nil
}

func (c *Cast) OutputSchema() batch.Schema { return c.schema }

func (c *Cast) Apply(ctx context.Context, b *batch.Batch) (*batch.Batch, error) {
	src := b.Columns[c.colIndex]
	out := batch.NewColumn(c.to, src.Len())
	for i := 0; i < src.Len(); i++ {
		v := src.At(i)
		if v.Null {
			out.AppendNull()
			continue
		}
		casted, ok := castValue(v, c.to)
		if !ok {
			if c.strict {
				return nil, errs.OperatorErr(c.step, int64(i), "cannot cast value to "+c.to.String())
			}
			out.AppendNull()
			continue
		}
		out.Append(casted)
	}

	cols := make([]batch.Column, len(b.Columns))
	copy(cols, b.Columns)
	cols[c.colIndex] = out
	return &batch.Batch{Schema: c.schema, RowCount: b.RowCount, Columns: cols}, nil
}

// castValue converts v (never null) to t: timestamp casts
// parse RFC 3339 with timezone; naive timestamps (no zone designator) are
// interpreted as UTC.
func castValue(v batch.Value, t batch.Type) (batch.Value, bool) {
	if v.Type == t {
		return v, true
	}
	switch t {
	case batch.Int64:
		switch v.Type {
		case batch.Float64:
			return batch.IntValue(int64(v.F)), true
		case batch.Bool:
			if v.B {
				return batch.IntValue(1), true
			}
			return batch.IntValue(0), true
		case batch.String:
			n, err := strconv.ParseInt(v.S, 10, 64)
			if err != nil {
				return batch.Value{}, false
			}
			return batch.IntValue(n), true
		}
	case batch.Float64:
		switch v.Type {
		case batch.Int64:
			return batch.FloatValue(float64(v.I)), true
		case batch.String:
			f, err := strconv.ParseFloat(v.S, 64)
			if err != nil {
				return batch.Value{}, false
			}
			return batch.FloatValue(f), true
		}
	case batch.Bool:
		switch v.Type {
		case batch.String:
			b, err := strconv.ParseBool(v.S)
			if err != nil {
				return batch.Value{}, false
			}
			return batch.BoolValue(b), true
		case batch.Int64:
			return batch.BoolValue(v.I != 0), true
		}
	case batch.String:
		return batch.StringValue(formatAsString(v)), true
	case batch.Timestamp:
		if v.Type == batch.String {
			ts, err := batch.ParseTimestamp(v.S)
			if err != nil {
				return batch.Value{}, false
			}
			return batch.TimeValue(ts), true
		}
	}
	return batch.Value{}, false
}

func formatAsString(v batch.Value) string {
	switch v.Type {
	case batch.Int64:
		return strconv.FormatInt(v.I, 10)
	case batch.Float64:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case batch.Bool:
		return strconv.FormatBool(v.B)
	case batch.Timestamp:
		return v.T.UTC().Format(time.RFC3339)
	default:
		return v.S
	}
}
