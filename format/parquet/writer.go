package parquet

import (
	"bytes"
	"context"

	"github.com/parquet-go/parquet-go"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/errs"
	"github.com/vegafs/streamengine/format"
)

// Writer implements format.Writer over parquet-go. Parquet's footer can
// only be written once the whole file is known, so rows are buffered in
// memory until Close; a failed or cancelled job therefore never publishes a
// truncated Parquet object, matching the note that partial
// Parquet output is always invalid.
type Writer struct {
	sink     format.Sink
	buf      bytes.Buffer
	pw       *parquet.Writer
	partSize int64
}

func compressionFor(name string) parquet.Compression {
	switch name {
	case "gzip":
		return &parquet.Gzip
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Snappy
	}
}

func NewWriter(sink format.Sink, schema batch.Schema, opts format.WriteOptions) *Writer {
	partSize := opts.PartSizeBytes
	if partSize <= 0 {
		partSize = format.DefaultPartSizeBytes
	}
	w := &Writer{sink: sink, partSize: partSize}
	pschema := toParquetSchema(schema)
	w.pw = parquet.NewWriter(&w.buf, pschema,
		parquet.Compression(compressionFor(opts.Compression)),
		parquet.MaxRowsPerRowGroup(int64(batch.DefaultMaxRows)),
	)
	return w
}

func (w *Writer) Write(ctx context.Context, b *batch.Batch) error {
	for i := 0; i < b.RowCount; i++ {
		row := make(map[string]any, len(b.Schema.Fields))
		for c, f := range b.Schema.Fields {
			v := b.Columns[c].At(i)
			if v.Null {
				row[f.Name] = nil
				continue
			}
			row[f.Name] = valueToAny(v)
		}
		if _, err := w.pw.Write(row); err != nil {
			return errs.Wrap(errs.KindInternal, "parquet row write failed", err)
		}
	}
	return nil
}

// Flush is a no-op: parquet-go manages row-group boundaries internally and
// the footer can't be emitted until Close.
func (w *Writer) Flush(ctx context.Context) error { return nil }

func (w *Writer) Close(ctx context.Context) error {
	if err := w.pw.Close(); err != nil {
		return errs.Wrap(errs.KindInternal, "parquet footer write failed", err)
	}
	data := w.buf.Bytes()
	for len(data) > 0 {
		n := int(w.partSize)
		if n > len(data) {
			n = len(data)
		}
		if err := w.sink.AppendPart(ctx, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

var _ format.Writer = (*Writer)(nil)
