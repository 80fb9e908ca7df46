package operator

import (
	"context"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/errs"
)

// Project implements the project operator: a 1-to-1
// column-narrowing, reordering row mapping. Columns are reference-shared,
// per batch.Batch.SelectColumns.
type Project struct {
	columns []string
	schema  batch.Schema
}

func NewProject(stepIndex int, schema batch.Schema, columns []string) (*Project, error) {
	seen := make(map[string]bool, len(columns))
	for _, name := range columns {
		if seen[name] {
			return nil, errs.PipelineErr(stepIndex, "project: duplicate output column "+name)
		}
		seen[name] = true
	}
	out, err := schema.Select(columns)
	if err != nil {
		return nil, errs.PipelineErr(stepIndex, "project: "+err.Error())
	}
	return &Project{columns: columns, schema: out}, nil
}

func (p *Project) OutputSchema() batch.Schema { return p.schema }

func (p *Project) Apply(ctx context.Context, b *batch.Batch) (*batch.Batch, error) {
	return b.SelectColumns(p.columns)
}

// Rename implements the rename operator: renames columns
// in place, preserving the input's column order. The from->to mapping must
// produce no duplicate output names, enforced at compile time.
type Rename struct {
	schema batch.Schema
}

func NewRename(stepIndex int, schema batch.Schema, mapping map[string]string) (*Rename, error) {
	fields := make([]batch.Field, len(schema.Fields))
	seen := make(map[string]bool, len(schema.Fields))
	for i, f := range schema.Fields {
		name := f.Name
		if to, ok := mapping[name]; ok {
			name = to
		}
		if seen[name] {
			return nil, errs.PipelineErr(stepIndex, "rename: duplicate output column "+name)
		}
		seen[name] = true
		fields[i] = batch.Field{Name: name, Type: f.Type, Nullable: f.Nullable}
	}
	return &Rename{schema: batch.Schema{Fields: fields}}, nil
}

func (r *Rename) OutputSchema() batch.Schema { return r.schema }

// Apply is a schema-only transform: the underlying columns are unchanged,
// only their names differ, so the input batch is reused with the new schema
// attached.
func (r *Rename) Apply(ctx context.Context, b *batch.Batch) (*batch.Batch, error) {
	return &batch.Batch{Schema: r.schema, RowCount: b.RowCount, Columns: b.Columns}, nil
}
