package parquet

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/format"
)

type memSink struct {
	buf bytes.Buffer
}

func (s *memSink) AppendPart(ctx context.Context, data []byte) error {
	s.buf.Write(data)
	return nil
}

func TestWriterThenReaderRoundTrip(t *testing.T) {
	schema := batch.NewSchema(
		batch.Field{Name: "name", Type: batch.String},
		batch.Field{Name: "age", Type: batch.Int64},
	)
	b := batch.New(schema, 4)
	names := []string{"Alice", "Bob", "Charlie", "David"}
	ages := []int64{30, 24, 35, 29}
	for i := range names {
		b.Columns[0].Append(batch.StringValue(names[i]))
		b.Columns[1].Append(batch.IntValue(ages[i]))
	}
	if err := b.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	sink := &memSink{}
	w := NewWriter(sink, schema, format.WriteOptions{})
	if err := w.Write(context.Background(), b); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sink.buf.Len() == 0 {
		t.Fatal("expected writer to produce bytes on Close")
	}

	data := sink.buf.Bytes()
	r, err := NewReader(bytes.NewReader(data), int64(len(data)), format.ReadOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if got := r.Schema().Names(); len(got) != 2 || got[0] != "name" || got[1] != "age" {
		t.Fatalf("unexpected schema: %v", got)
	}

	var rowCount int
	var gotNames []string
	for {
		rb, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rowCount += rb.RowCount
		col, err := rb.Column("name")
		if err != nil {
			t.Fatalf("Column: %v", err)
		}
		for i := 0; i < rb.RowCount; i++ {
			gotNames = append(gotNames, col.At(i).S)
		}
	}
	if rowCount != 4 {
		t.Errorf("expected 4 rows round-tripped, got %d", rowCount)
	}
	for i, want := range names {
		if i >= len(gotNames) || gotNames[i] != want {
			t.Errorf("row %d: expected name %q, got names %v", i, want, gotNames)
			break
		}
	}
}

func TestWriterFlushIsNoop(t *testing.T) {
	schema := batch.NewSchema(batch.Field{Name: "x", Type: batch.Int64})
	sink := &memSink{}
	w := NewWriter(sink, schema, format.WriteOptions{})
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sink.buf.Len() != 0 {
		t.Error("expected Flush to emit nothing before Close; parquet footer is written once")
	}
}
