// Package parquet implements the Parquet reader/writer,
// using github.com/parquet-go/parquet-go — sourced from the retrieval pack's
// arrow/parquet manifest rather than hand-rolled, since Parquet's footer and
// encoding scheme is not something worth reimplementing.
package parquet

import (
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/vegafs/streamengine/batch"
)

func leafNode(t batch.Type) parquet.Node {
	switch t {
	case batch.Int64:
		return parquet.Leaf(parquet.Int64Type)
	case batch.Float64:
		return parquet.Leaf(parquet.DoubleType)
	case batch.Bool:
		return parquet.Leaf(parquet.BooleanType)
	case batch.Timestamp:
		return parquet.Timestamp(parquet.Millisecond)
	case batch.String:
		fallthrough
	default:
		return parquet.String()
	}
}

// toParquetSchema translates a batch.Schema into the parquet-go group node
// the writer needs. Field order is preserved; parquet-go orders leaf columns
// the same way they're declared in the group.
func toParquetSchema(s batch.Schema) *parquet.Schema {
	group := make(parquet.Group, len(s.Fields))
	for _, f := range s.Fields {
		node := leafNode(f.Type)
		if f.Nullable {
			node = node.Optional()
		}
		group[f.Name] = node
	}
	return parquet.NewSchema("batch", group)
}

func parquetKind(t parquet.Type) batch.Type {
	switch t.Kind() {
	case parquet.Boolean:
		return batch.Bool
	case parquet.Int32, parquet.Int64:
		return batch.Int64
	case parquet.Float, parquet.Double:
		return batch.Float64
	default:
		return batch.String
	}
}

// fromParquetSchema inverts toParquetSchema for the reader, recovering a
// batch.Schema from a Parquet file's embedded schema. Timestamp columns are
// distinguished by their logical annotation; everything else falls back to
// the physical Kind.
func fromParquetSchema(s *parquet.Schema) batch.Schema {
	pfields := s.Fields()
	fields := make([]batch.Field, len(pfields))
	for i, f := range pfields {
		t := parquetKind(f.Type())
		if lt := f.Type().LogicalType(); lt != nil && lt.Timestamp != nil {
			t = batch.Timestamp
		}
		fields[i] = batch.Field{Name: f.Name(), Type: t, Nullable: f.Optional()}
	}
	return batch.Schema{Fields: fields}
}

func valueToAny(v batch.Value) any {
	switch v.Type {
	case batch.Int64:
		return v.I
	case batch.Float64:
		return v.F
	case batch.Bool:
		return v.B
	case batch.Timestamp:
		return v.T.UTC()
	case batch.String:
		return v.S
	default:
		return nil
	}
}

func valueFromParquet(v parquet.Value, t batch.Type) (batch.Value, error) {
	if v.IsNull() {
		return batch.NullValue(t), nil
	}
	switch t {
	case batch.Int64:
		return batch.IntValue(v.Int64()), nil
	case batch.Float64:
		return batch.FloatValue(v.Double()), nil
	case batch.Bool:
		return batch.BoolValue(v.Boolean()), nil
	case batch.Timestamp:
		return batch.TimeValue(time.UnixMilli(v.Int64()).UTC()), nil
	case batch.String:
		return batch.StringValue(v.String()), nil
	default:
		return batch.Value{}, fmt.Errorf("parquet: unsupported type %s", t)
	}
}
