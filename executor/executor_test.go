package executor

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/errs"
	"github.com/vegafs/streamengine/operator"
	"github.com/vegafs/streamengine/pipeline"
)

// fakeReader replays a fixed slice of batches, one per Next call, then EOF.
type fakeReader struct {
	mu      sync.Mutex
	batches []*batch.Batch
	idx     int
}

func (r *fakeReader) Next(ctx context.Context) (*batch.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.idx >= len(r.batches) {
		return nil, io.EOF
	}
	b := r.batches[r.idx]
	r.idx++
	return b, nil
}

func (r *fakeReader) Close() error { return nil }

// fakeWriter records every batch written, in the order Write was called.
type fakeWriter struct {
	mu      sync.Mutex
	written []*batch.Batch
	closed  bool
}

func (w *fakeWriter) Write(ctx context.Context, b *batch.Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, b)
	return nil
}

func (w *fakeWriter) Flush(ctx context.Context) error { return nil }

func (w *fakeWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func intBatch(schema batch.Schema, n, start int) *batch.Batch {
	b := batch.New(schema, n)
	for i := 0; i < n; i++ {
		b.Columns[0].Append(batch.IntValue(int64(start + i)))
	}
	if err := b.Seal(); err != nil {
		panic(err)
	}
	return b
}

func TestRunStreamingPreservesOrderUnderParallelism(t *testing.T) {
	schema := batch.NewSchema(batch.Field{Name: "v", Type: batch.Int64})
	var batches []*batch.Batch
	for i := 0; i < 20; i++ {
		batches = append(batches, intBatch(schema, 1, i))
	}
	reader := &fakeReader{batches: batches}
	writer := &fakeWriter{}

	compiled := &pipeline.Compiled{
		Ops:          nil,
		InputSchema:  schema,
		OutputSchema: schema,
		IsStreaming:  true,
	}

	exec := New(compiled, reader, writer, Options{Parallelism: 8})
	if _, err := exec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(writer.written) != 20 {
		t.Fatalf("expected 20 batches written, got %d", len(writer.written))
	}
	for i, b := range writer.written {
		col, _ := b.Column("v")
		if col.At(0).I != int64(i) {
			t.Fatalf("batch %d out of order: got value %d", i, col.At(0).I)
		}
	}
	if !writer.closed {
		t.Error("expected writer to be closed")
	}
}

func TestRunAggregateFinalizesThenWrites(t *testing.T) {
	schema := batch.NewSchema(
		batch.Field{Name: "group", Type: batch.String},
		batch.Field{Name: "v", Type: batch.Int64},
	)
	b := batch.New(schema, 4)
	groups := []string{"a", "b", "a", "b"}
	vals := []int64{1, 2, 3, 4}
	for i := range groups {
		b.Columns[0].Append(batch.StringValue(groups[i]))
		b.Columns[1].Append(batch.IntValue(vals[i]))
	}
	if err := b.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	agg, err := operator.NewAggregate(0, schema, []string{"group"}, []operator.AggSpec{
		{Column: "v", Fn: operator.AggSum, As: "total"},
	})
	if err != nil {
		t.Fatalf("NewAggregate: %v", err)
	}

	reader := &fakeReader{batches: []*batch.Batch{b}}
	writer := &fakeWriter{}
	compiled := &pipeline.Compiled{
		Aggregate:    agg,
		InputSchema:  schema,
		OutputSchema: agg.OutputSchema(),
		IsStreaming:  false,
	}

	exec := New(compiled, reader, writer, Options{Parallelism: 2})
	if _, err := exec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(writer.written) == 0 {
		t.Fatal("expected finalize to write at least one batch")
	}
	if !writer.closed {
		t.Error("expected writer to be closed after finalize")
	}
}

func TestRunCancelStopsBeforeFinishing(t *testing.T) {
	schema := batch.NewSchema(batch.Field{Name: "v", Type: batch.Int64})
	var batches []*batch.Batch
	for i := 0; i < 1000; i++ {
		batches = append(batches, intBatch(schema, 1, i))
	}
	reader := &fakeReader{batches: batches}
	writer := &fakeWriter{}
	compiled := &pipeline.Compiled{InputSchema: schema, OutputSchema: schema, IsStreaming: true}

	exec := New(compiled, reader, writer, Options{Parallelism: 1})
	exec.Cancel()
	_, err := exec.Run(context.Background())
	if !errs.IsKind(err, errs.KindCancelled) {
		t.Fatalf("expected Cancelled error, got %v", err)
	}
	if len(writer.written) == 1000 {
		t.Error("expected cancellation before the reader was fully drained")
	}
}

func TestProgressIsMonotonicNonDecreasing(t *testing.T) {
	schema := batch.NewSchema(batch.Field{Name: "v", Type: batch.Int64})
	var batches []*batch.Batch
	for i := 0; i < 5; i++ {
		batches = append(batches, intBatch(schema, 1, i))
	}
	reader := &fakeReader{batches: batches}
	writer := &fakeWriter{}
	compiled := &pipeline.Compiled{InputSchema: schema, OutputSchema: schema, IsStreaming: true}

	exec := New(compiled, reader, writer, Options{Parallelism: 1})
	prev := exec.Progress()
	if _, err := exec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	final := exec.Progress()
	if final.RowsIn < prev.RowsIn || final.RowsOut < prev.RowsOut {
		t.Errorf("expected monotonic progress, got prev=%+v final=%+v", prev, final)
	}
	if final.RowsIn != 5 {
		t.Errorf("expected final RowsIn 5, got %d", final.RowsIn)
	}
}

func TestRunFailsWhenAggregateStateExceedsBudget(t *testing.T) {
	schema := batch.NewSchema(
		batch.Field{Name: "group", Type: batch.String},
		batch.Field{Name: "v", Type: batch.Int64},
	)
	b := batch.New(schema, 2)
	b.Columns[0].Append(batch.StringValue("a"))
	b.Columns[1].Append(batch.IntValue(1))
	b.Columns[0].Append(batch.StringValue("b"))
	b.Columns[1].Append(batch.IntValue(2))
	if err := b.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	agg, err := operator.NewAggregate(0, schema, []string{"group"}, []operator.AggSpec{
		{Column: "v", Fn: operator.AggSum, As: "total"},
	})
	if err != nil {
		t.Fatalf("NewAggregate: %v", err)
	}

	reader := &fakeReader{batches: []*batch.Batch{b}}
	writer := &fakeWriter{}
	compiled := &pipeline.Compiled{Aggregate: agg, InputSchema: schema, OutputSchema: agg.OutputSchema(), IsStreaming: false}

	exec := New(compiled, reader, writer, Options{Parallelism: 1, MaxMemoryBytes: 1})
	_, err = exec.Run(context.Background())
	if !errs.IsKind(err, errs.KindResourceExhausted) {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
}
