package operator

import (
	"context"
	"fmt"
	"strings"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/errs"
)

// AggFn is the closed set of aggregation functions.
type AggFn string

const (
	AggSum   AggFn = "sum"
	AggCount AggFn = "count"
	AggMin   AggFn = "min"
	AggMax   AggFn = "max"
	AggMean  AggFn = "mean"
)

// AggSpec is one {column, fn, as} entry of an aggregate step. Column may be
// "*" only with AggCount, matching "counts rows if column is *".
type AggSpec struct {
	Column string
	Fn     AggFn
	As     string
}

type aggPlan struct {
	spec    AggSpec
	colIdx  int // -1 for "*"
	colType batch.Type
}

// groupState accumulates one group's aggregate values, in the order its
// aggPlans appear.
type groupState struct {
	keyValues []batch.Value
	sumInt    []int64
	sumFloat  []float64
	isInt     []bool
	count     []int64 // non-null observations, used for count and mean
	min       []batch.Value
	max       []batch.Value
	seen      []bool
}

// Aggregate implements the aggregate terminal stage: a hash map from group
// key to accumulator state. It holds no lock of its own; the executor
// guards it with one mutex, the same "map keyed by a stable ID, guarded by
// one mutex" shape used elsewhere in this codebase. Group-key tuples
// are ordered by first insertion, so Finalize's output order is determined
// entirely by the order rows were first observed, never by map iteration.
type Aggregate struct {
	step        int
	groupByIdx  []int
	groupByName []string
	plans       []aggPlan
	schema      batch.Schema

	order []string
	state map[string]*groupState
}

// NewAggregate builds an Aggregate stage against schema. groupBy and specs
// come from the compiled pipeline step; the output schema is
// group_by-columns ++ aggregation aliases.
func NewAggregate(stepIndex int, schema batch.Schema, groupBy []string, specs []AggSpec) (*Aggregate, error) {
	groupByIdx := make([]int, len(groupBy))
	fields := make([]batch.Field, 0, len(groupBy)+len(specs))
	for i, name := range groupBy {
		idx := schema.IndexOf(name)
		if idx < 0 {
			return nil, errs.PipelineErr(stepIndex, "aggregate: unknown group_by column "+name)
		}
		groupByIdx[i] = idx
		f := schema.Fields[idx]
		fields = append(fields, batch.Field{Name: f.Name, Type: f.Type, Nullable: false})
	}

	plans := make([]aggPlan, len(specs))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		seen[f.Name] = true
	}
	for i, spec := range specs {
		var idx int
		var colType batch.Type
		if spec.Column == "*" {
			if spec.Fn != AggCount {
				return nil, errs.PipelineErr(stepIndex, "aggregate: column * only valid with count")
			}
			idx = -1
			colType = batch.Int64
		} else {
			idx = schema.IndexOf(spec.Column)
			if idx < 0 {
				return nil, errs.PipelineErr(stepIndex, "aggregate: unknown column "+spec.Column)
			}
			colType = schema.Fields[idx].Type
			if (spec.Fn == AggSum || spec.Fn == AggMean) && colType != batch.Int64 && colType != batch.Float64 {
				return nil, errs.PipelineErr(stepIndex, "aggregate: "+string(spec.Fn)+" requires a numeric column")
			}
		}
		if seen[spec.As] {
			return nil, errs.PipelineErr(stepIndex, "aggregate: duplicate output column "+spec.As)
		}
		seen[spec.As] = true
		plans[i] = aggPlan{spec: spec, colIdx: idx, colType: colType}

		outType := colType
		if spec.Fn == AggCount || spec.Fn == AggMean {
			outType = batch.Int64
			if spec.Fn == AggMean {
				outType = batch.Float64
			}
		}
		fields = append(fields, batch.Field{Name: spec.As, Type: outType, Nullable: spec.Fn != AggCount})
	}

	return &Aggregate{
		step:        stepIndex,
		groupByIdx:  groupByIdx,
		groupByName: groupBy,
		plans:       plans,
		schema:      batch.Schema{Fields: fields},
		state:       make(map[string]*groupState),
	}, nil
}

func (a *Aggregate) OutputSchema() batch.Schema { return a.schema }

// EstimateBytes approximates the accumulator's resident memory, used by
// the executor's aggregate-over-budget check. The estimate is
// deliberately coarse: a per-group fixed overhead plus the width of any
// string min/max values retained.
func (a *Aggregate) EstimateBytes() int64 {
	const perGroupOverhead = 64
	var total int64
	for _, gs := range a.state {
		total += perGroupOverhead * int64(len(a.plans)+len(a.groupByIdx)+1)
		for _, v := range gs.min {
			if v.Type == batch.String {
				total += int64(len(v.S))
			}
		}
		for _, v := range gs.max {
			if v.Type == batch.String {
				total += int64(len(v.S))
			}
		}
	}
	return total
}

func keyFor(values []batch.Value) string {
	var sb strings.Builder
	for _, v := range values {
		if v.Null {
			sb.WriteString("\x00N\x1f")
			continue
		}
		fmt.Fprintf(&sb, "%v\x1f", valueKeyPart(v))
	}
	return sb.String()
}

func valueKeyPart(v batch.Value) any {
	switch v.Type {
	case batch.Int64:
		return v.I
	case batch.Float64:
		return v.F
	case batch.Bool:
		return v.B
	case batch.Timestamp:
		return v.T.UnixNano()
	default:
		return v.S
	}
}

// Ingest folds one batch's rows into the accumulator. It is not safe for
// concurrent use: the executor serializes access to a single Aggregate
// instance.
func (a *Aggregate) Ingest(ctx context.Context, b *batch.Batch) error {
	keyValues := make([]batch.Value, len(a.groupByIdx))
	for row := 0; row < b.RowCount; row++ {
		for i, idx := range a.groupByIdx {
			keyValues[i] = b.Columns[idx].At(row)
		}
		key := keyFor(keyValues)
		gs, ok := a.state[key]
		if !ok {
			gs = &groupState{
				keyValues: append([]batch.Value(nil), keyValues...),
				sumInt:    make([]int64, len(a.plans)),
				sumFloat:  make([]float64, len(a.plans)),
				isInt:     make([]bool, len(a.plans)),
				count:     make([]int64, len(a.plans)),
				min:       make([]batch.Value, len(a.plans)),
				max:       make([]batch.Value, len(a.plans)),
				seen:      make([]bool, len(a.plans)),
			}
			for i, p := range a.plans {
				gs.isInt[i] = p.colType == batch.Int64
			}
			a.state[key] = gs
			a.order = append(a.order, key)
		}

		for i, p := range a.plans {
			var v batch.Value
			if p.colIdx == -1 {
				v = batch.IntValue(0) // presence marker only, never null
			} else {
				v = b.Columns[p.colIdx].At(row)
			}
			if p.colIdx != -1 && v.Null {
				continue
			}
			gs.count[i]++
			if p.spec.Fn != AggSum && p.spec.Fn != AggMean {
				if err := a.foldMinMax(gs, i, p, v); err != nil {
					return errs.OperatorErr(a.step, int64(row), err.Error())
				}
				continue
			}
			if err := a.foldSum(gs, i, p, v); err != nil {
				return errs.OperatorErr(a.step, int64(row), err.Error())
			}
		}
	}
	return nil
}

func (a *Aggregate) foldMinMax(gs *groupState, i int, p aggPlan, v batch.Value) error {
	if p.spec.Fn != AggMin && p.spec.Fn != AggMax {
		return nil
	}
	if !gs.seen[i] {
		gs.min[i] = v
		gs.max[i] = v
		gs.seen[i] = true
		return nil
	}
	if v.Less(gs.min[i]) {
		gs.min[i] = v
	}
	if gs.max[i].Less(v) {
		gs.max[i] = v
	}
	return nil
}

func addOverflows(a, b int64) bool {
	sum := a + b
	return ((a ^ sum) & (b ^ sum)) < 0
}

func (a *Aggregate) foldSum(gs *groupState, i int, p aggPlan, v batch.Value) error {
	if gs.isInt[i] {
		if addOverflows(gs.sumInt[i], v.I) {
			return fmt.Errorf("sum overflow on column %s", p.spec.Column)
		}
		gs.sumInt[i] += v.I
	} else {
		gs.sumFloat[i] += v.F
	}
	return nil
}

// Finalize emits one row per group, in first-insertion order, in batches of
// at most batch.DefaultMaxRows rows. Groups that fit in a single batch (the
// common case) produce exactly one *batch.Batch.
func (a *Aggregate) Finalize(ctx context.Context) ([]*batch.Batch, error) {
	if len(a.order) == 0 {
		return nil, nil
	}
	var out []*batch.Batch
	max := batch.DefaultMaxRows
	for start := 0; start < len(a.order); start += max {
		end := start + max
		if end > len(a.order) {
			end = len(a.order)
		}
		b := batch.New(a.schema, end-start)
		for _, key := range a.order[start:end] {
			gs := a.state[key]
			for gi := range a.groupByIdx {
				b.Columns[gi].Append(gs.keyValues[gi])
			}
			for i, p := range a.plans {
				col := &b.Columns[len(a.groupByIdx)+i]
				switch p.spec.Fn {
				case AggCount:
					col.Append(batch.IntValue(gs.count[i]))
				case AggSum:
					if gs.count[i] == 0 {
						col.AppendNull()
					} else if gs.isInt[i] {
						col.Append(batch.IntValue(gs.sumInt[i]))
					} else {
						col.Append(batch.FloatValue(gs.sumFloat[i]))
					}
				case AggMean:
					if gs.count[i] == 0 {
						col.AppendNull()
					} else if gs.isInt[i] {
						col.Append(batch.FloatValue(float64(gs.sumInt[i]) / float64(gs.count[i])))
					} else {
						col.Append(batch.FloatValue(gs.sumFloat[i] / float64(gs.count[i])))
					}
				case AggMin:
					if gs.count[i] == 0 {
						col.AppendNull()
					} else {
						col.Append(gs.min[i])
					}
				case AggMax:
					if gs.count[i] == 0 {
						col.AppendNull()
					} else {
						col.Append(gs.max[i])
					}
				}
			}
		}
		if err := b.Seal(); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
