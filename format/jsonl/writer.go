package jsonl

import (
	"bytes"
	"context"

	json "github.com/goccy/go-json"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/format"
)

// Writer implements format.Writer, emitting one JSON object per line.
type Writer struct {
	sink   format.Sink
	schema batch.Schema

	buf      bytes.Buffer
	partSize int64
}

func NewWriter(sink format.Sink, schema batch.Schema, opts format.WriteOptions) *Writer {
	partSize := opts.PartSizeBytes
	if partSize <= 0 {
		partSize = format.DefaultPartSizeBytes
	}
	return &Writer{sink: sink, schema: schema, partSize: partSize}
}

func (w *Writer) Write(ctx context.Context, b *batch.Batch) error {
	for i := 0; i < b.RowCount; i++ {
		obj := make(map[string]any, len(b.Schema.Fields))
		for c, f := range b.Schema.Fields {
			v := b.Columns[c].At(i)
			if v.Null {
				obj[f.Name] = nil
				continue
			}
			obj[f.Name] = valueToAny(v)
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return err
		}
		w.buf.Write(data)
		w.buf.WriteByte('\n')
	}
	if int64(w.buf.Len()) >= w.partSize {
		return w.flushPart(ctx)
	}
	return nil
}

func (w *Writer) flushPart(ctx context.Context) error {
	if w.buf.Len() == 0 {
		return nil
	}
	data := make([]byte, w.buf.Len())
	copy(data, w.buf.Bytes())
	w.buf.Reset()
	return w.sink.AppendPart(ctx, data)
}

func (w *Writer) Flush(ctx context.Context) error {
	return w.flushPart(ctx)
}

func (w *Writer) Close(ctx context.Context) error {
	return w.Flush(ctx)
}

var _ format.Writer = (*Writer)(nil)
