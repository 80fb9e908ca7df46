// Package operator implements the per-batch transforms of
// this engine: filter, project, rename, cast, and the
// aggregate terminal stage. Each row-scoped operator is a small interface
// around one Apply method, the same "a small interface, one method, pure
// function of its input" shape the rest of this codebase uses for
// per-record work.
package operator

import (
	"context"

	"github.com/vegafs/streamengine/batch"
)

// Op is a row-scoped, per-batch transform. Apply consumes its input batch
// and produces one owned output batch, or nil when every row is filtered
// out — batches are never mutated in place, matching the ownership
// rule.
type Op interface {
	Apply(ctx context.Context, b *batch.Batch) (*batch.Batch, error)
	OutputSchema() batch.Schema
}

// Aggregator is the terminal, stateful stage aggregate steps compile to. It
// is not an Op: it consumes every upstream batch before producing any
// output, so the executor drives it separately from the row-scoped chain.
type Aggregator interface {
	Ingest(ctx context.Context, b *batch.Batch) error
	Finalize(ctx context.Context) ([]*batch.Batch, error)
	OutputSchema() batch.Schema
	EstimateBytes() int64
}
