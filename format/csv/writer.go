package csv

import (
	"bytes"
	stdcsv "encoding/csv"
	"context"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/format"
)

// Writer implements format.Writer, encoding batches as CSV and flushing
// completed parts through a format.Sink once the buffered part crosses
// PartSizeBytes.
type Writer struct {
	sink   format.Sink
	schema batch.Schema
	opts   format.WriteOptions

	buf         bytes.Buffer
	cw          *stdcsv.Writer
	wroteHeader bool
	partSize    int64
}

func NewWriter(sink format.Sink, schema batch.Schema, opts format.WriteOptions) *Writer {
	partSize := opts.PartSizeBytes
	if partSize <= 0 {
		partSize = format.DefaultPartSizeBytes
	}
	w := &Writer{sink: sink, schema: schema, opts: opts, partSize: partSize}
	w.cw = stdcsv.NewWriter(&w.buf)
	return w
}

func (w *Writer) Write(ctx context.Context, b *batch.Batch) error {
	if !w.wroteHeader {
		if err := w.cw.Write(w.schema.Names()); err != nil {
			return err
		}
		w.wroteHeader = true
	}

	row := make([]string, len(b.Schema.Fields))
	for i := 0; i < b.RowCount; i++ {
		for c := range b.Columns {
			v := b.Columns[c].At(i)
			if v.Null {
				row[c] = w.opts.NullString
			} else {
				row[c] = formatValue(v)
			}
		}
		if err := w.cw.Write(row); err != nil {
			return err
		}
	}
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return err
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
	w.cw.Flush()
	return w.flushPart(ctx)
}

func (w *Writer) Close(ctx context.Context) error {
	return w.Flush(ctx)
}

var _ format.Writer = (*Writer)(nil)
