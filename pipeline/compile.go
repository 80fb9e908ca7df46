package pipeline

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/errs"
	"github.com/vegafs/streamengine/format"
	"github.com/vegafs/streamengine/operator"
)

// Compiled is a CompiledPipeline: an ordered chain of
// row-scoped operators, an optional terminal aggregate stage, the final
// output schema, and a streaming flag.
type Compiled struct {
	Ops          []operator.Op
	Aggregate    *operator.Aggregate
	InputSchema  batch.Schema
	OutputSchema batch.Schema
	IsStreaming  bool

	HasConvertFormat bool
	OutputFormat     format.Kind
}

// Compile validates spec against inputSchema and produces a Compiled
// pipeline validation walk. Compile is pure and
// deterministic: identical specs and input schemas always compile to the
// same output schema and streaming flag, which is what makes fingerprinting
// stable.
func Compile(spec Spec, inputSchema batch.Schema) (*Compiled, error) {
	schema := inputSchema
	var ops []operator.Op
	var agg *operator.Aggregate
	aggregateSeen := false
	convertSeen := false
	hasConvert := false
	var outputFormat format.Kind

	for i, step := range spec {
		if convertSeen {
			return nil, errs.PipelineErr(i, "no steps allowed after convert_format")
		}

		switch step.Type {
		case StepFilter:
			if aggregateSeen {
				return nil, errs.PipelineErr(i, "filter not allowed after aggregate")
			}
			f, err := compileFilter(i, schema, step)
			if err != nil {
				return nil, err
			}
			ops = append(ops, f)
			schema = f.OutputSchema()

		case StepProject:
			if aggregateSeen {
				return nil, errs.PipelineErr(i, "project not allowed after aggregate")
			}
			p, err := operator.NewProject(i, schema, step.Columns)
			if err != nil {
				return nil, err
			}
			ops = append(ops, p)
			schema = p.OutputSchema()

		case StepRename:
			if aggregateSeen {
				return nil, errs.PipelineErr(i, "rename not allowed after aggregate")
			}
			r, err := operator.NewRename(i, schema, step.Mapping)
			if err != nil {
				return nil, err
			}
			ops = append(ops, r)
			schema = r.OutputSchema()

		case StepCast:
			if aggregateSeen {
				return nil, errs.PipelineErr(i, "cast not allowed after aggregate")
			}
			to, err := batch.ParseType(step.ToType)
			if err != nil {
				return nil, errs.PipelineErr(i, "cast: "+err.Error())
			}
			c, err := operator.NewCast(i, schema, step.Column, to, step.Strict)
			if err != nil {
				return nil, err
			}
			ops = append(ops, c)
			schema = c.OutputSchema()

		case StepAggregate:
			if aggregateSeen {
				return nil, errs.PipelineErr(i, "at most one aggregate step allowed")
			}
			specs := make([]operator.AggSpec, len(step.Aggregations))
			for j, a := range step.Aggregations {
				specs[j] = operator.AggSpec{Column: a.Column, Fn: operator.AggFn(a.Fn), As: a.As}
			}
			a, err := operator.NewAggregate(i, schema, step.GroupBy, specs)
			if err != nil {
				return nil, err
			}
			agg = a
			aggregateSeen = true
			schema = a.OutputSchema()

		case StepConvertFormat:
			k, err := parseFormatKind(step.ToFormat)
			if err != nil {
				return nil, errs.PipelineErr(i, err.Error())
			}
			outputFormat = k
			hasConvert = true
			convertSeen = true

		default:
			return nil, errs.PipelineErr(i, "unknown step type "+string(step.Type))
		}
	}

	return &Compiled{
		Ops:              ops,
		Aggregate:        agg,
		InputSchema:      inputSchema,
		OutputSchema:     schema,
		IsStreaming:      agg == nil,
		HasConvertFormat: hasConvert,
		OutputFormat:     outputFormat,
	}, nil
}

func parseFormatKind(s string) (format.Kind, error) {
	switch format.Kind(s) {
	case format.CSV, format.JSONL, format.Parquet:
		return format.Kind(s), nil
	default:
		return "", fmt.Errorf("convert_format: unknown format %q", s)
	}
}

func compileFilter(stepIndex int, schema batch.Schema, step Step) (*operator.Filter, error) {
	op := operator.FilterOp(step.Op)
	if op == operator.FilterIsNull || op == operator.FilterNotNull {
		return operator.NewFilter(stepIndex, schema, step.Column, op, batch.Value{}, nil)
	}

	idx := schema.IndexOf(step.Column)
	if idx < 0 {
		return nil, errs.PipelineErr(stepIndex, "filter: unknown column "+step.Column)
	}
	colType := schema.Fields[idx].Type

	if op == operator.FilterIn {
		values := make([]batch.Value, len(step.Values))
		for i, raw := range step.Values {
			v, err := valueFromJSON(raw, colType)
			if err != nil {
				return nil, errs.PipelineErr(stepIndex, "filter: "+err.Error())
			}
			values[i] = v
		}
		return operator.NewFilter(stepIndex, schema, step.Column, op, batch.Value{}, values)
	}

	v, err := valueFromJSON(step.Value, colType)
	if err != nil {
		return nil, errs.PipelineErr(stepIndex, "filter: "+err.Error())
	}
	return operator.NewFilter(stepIndex, schema, step.Column, op, v, nil)
}

// valueFromJSON converts a JSON-decoded scalar (float64/string/bool from
// goccy/go-json's any-typed unmarshal) into a batch.Value matching t.
func valueFromJSON(raw any, t batch.Type) (batch.Value, error) {
	switch t {
	case batch.Int64:
		switch n := raw.(type) {
		case float64:
			return batch.IntValue(int64(n)), nil
		case string:
			iv, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return batch.Value{}, err
			}
			return batch.IntValue(iv), nil
		}
	case batch.Float64:
		if n, ok := raw.(float64); ok {
			return batch.FloatValue(n), nil
		}
	case batch.Bool:
		if b, ok := raw.(bool); ok {
			return batch.BoolValue(b), nil
		}
	case batch.String:
		if s, ok := raw.(string); ok {
			return batch.StringValue(s), nil
		}
	case batch.Timestamp:
		if s, ok := raw.(string); ok {
			ts, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return batch.Value{}, err
			}
			return batch.TimeValue(ts.UTC()), nil
		}
	}
	return batch.Value{}, fmt.Errorf("value %v incompatible with column type %s", raw, t)
}
