package batch

import "fmt"

// DefaultMaxRows is MAX_BATCH_ROWS: the default upper bound on
// rows per Batch.
const DefaultMaxRows = 65536

// Batch is a columnar container: a Schema plus one Column per field, all
// sharing the same RowCount. Batches are owned exclusively by whichever
// pipeline stage currently holds them: consuming a Batch and producing a
// new one never aliases the input's mutable state.
type Batch struct {
	Schema   Schema
	RowCount int
	Columns  []Column
}

// New allocates an empty Batch for schema with room for capacity rows.
func New(schema Schema, capacity int) *Batch {
	cols := make([]Column, len(schema.Fields))
	for i, f := range schema.Fields {
		cols[i] = NewColumn(f.Type, capacity)
	}
	return &Batch{Schema: schema, Columns: cols}
}

// Column returns the column for name, or an error if it doesn't exist.
func (b *Batch) Column(name string) (*Column, error) {
	i := b.Schema.IndexOf(name)
	if i < 0 {
		return nil, fmt.Errorf("batch: unknown column %q", name)
	}
	return &b.Columns[i], nil
}

// Seal finalizes RowCount from the columns after rows have been appended.
// All columns in a fully built Batch must agree on length.
func (b *Batch) Seal() error {
	if len(b.Columns) == 0 {
		b.RowCount = 0
		return nil
	}
	n := b.Columns[0].Len()
	for i, c := range b.Columns {
		if c.Len() != n {
			return fmt.Errorf("batch: column %q has %d rows, want %d", b.Schema.Fields[i].Name, c.Len(), n)
		}
	}
	b.RowCount = n
	return nil
}

// SelectRows produces a new Batch containing only rows where keep[i] is
// set, preserving order. The returned Batch is an independent owner.
// Returns nil if no rows match, matching operator.Apply's nullable-batch
// return contract.
func (b *Batch) SelectRows(keep []bool) *Batch {
	out := &Batch{Schema: b.Schema, Columns: make([]Column, len(b.Columns))}
	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	if kept == 0 {
		return nil
	}
	for i, c := range b.Columns {
		out.Columns[i] = c.SelectRows(keep)
	}
	out.RowCount = kept
	return out
}

// SelectColumns produces a new Batch with the same RowCount and a
// narrower, reordered Schema. Columns are reference-shared: the
// underlying slices are not copied, only re-referenced, since column
// values are never mutated in place once sealed.
func (b *Batch) SelectColumns(names []string) (*Batch, error) {
	schema, err := b.Schema.Select(names)
	if err != nil {
		return nil, err
	}
	cols := make([]Column, len(names))
	for i, n := range names {
		c, err := b.Column(n)
		if err != nil {
			return nil, err
		}
		cols[i] = *c
	}
	return &Batch{Schema: schema, RowCount: b.RowCount, Columns: cols}, nil
}

// ByteSize estimates the Batch's in-memory footprint, used by the executor
// to auto-tune MAX_BATCH_ROWS downward.
func (b *Batch) ByteSize() int64 {
	var total int64
	for _, c := range b.Columns {
		total += c.ByteSize()
	}
	return total
}
