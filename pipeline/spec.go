// Package pipeline implements the pipeline parser and compiler: JSON in, a
// typed operator chain and output schema (or a PipelineError) out.
package pipeline

import (
	json "github.com/goccy/go-json"

	"github.com/vegafs/streamengine/errs"
)

// StepType is the closed set of step kinds.
type StepType string

const (
	StepFilter        StepType = "filter"
	StepProject       StepType = "project"
	StepRename        StepType = "rename"
	StepCast          StepType = "cast"
	StepAggregate     StepType = "aggregate"
	StepConvertFormat StepType = "convert_format"
)

// AggregationSpec is one {column, fn, as} entry of an aggregate step.
type AggregationSpec struct {
	Column string `json:"column"`
	Fn     string `json:"fn"`
	As     string `json:"as"`
}

// Step is one pipeline step, discriminated by Type. Only the fields
// relevant to Type are populated; this mirrors the wire format's flat
// parameter-object shape rather than a Go union type, since JSON has no
// tagged unions.
type Step struct {
	Type StepType `json:"type"`

	// filter
	Column string `json:"column,omitempty"`
	Op     string `json:"op,omitempty"`
	Value  any    `json:"value,omitempty"`
	Values []any  `json:"values,omitempty"`

	// project
	Columns []string `json:"columns,omitempty"`

	// rename
	Mapping map[string]string `json:"mapping,omitempty"`

	// cast
	ToType string `json:"to_type,omitempty"`
	Strict bool   `json:"strict,omitempty"`

	// aggregate
	GroupBy      []string          `json:"group_by,omitempty"`
	Aggregations []AggregationSpec `json:"aggregations,omitempty"`

	// convert_format
	ToFormat string         `json:"to_format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// Spec is a pipeline: the top-level wire format is a bare JSON array of
// step objects.
type Spec []Step

// ParseSpec decodes a wire-format pipeline. It does not validate step
// semantics; that's Compile's job.
func ParseSpec(data []byte) (Spec, error) {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, errs.Wrap(errs.KindPipeline, "malformed pipeline spec JSON", err)
	}
	for i, step := range spec {
		switch step.Type {
		case StepFilter, StepProject, StepRename, StepCast, StepAggregate, StepConvertFormat:
		default:
			return nil, errs.PipelineErr(i, "unknown step type \""+string(step.Type)+"\"")
		}
	}
	return spec, nil
}
