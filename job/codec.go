package job

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/format"
	"github.com/vegafs/streamengine/format/csv"
	"github.com/vegafs/streamengine/format/jsonl"
	"github.com/vegafs/streamengine/format/parquet"
	"github.com/vegafs/streamengine/objectstore"
)

// openReader builds the codec reader for kind over the input object. CSV and
// JSON-lines stream directly off a ranged GET; Parquet needs random access
// for its footer and row groups, so the whole object is buffered into
// memory first; memory use for a Parquet input grows with the object's
// total size.
func openReader(ctx context.Context, store *objectstore.Store, key string, kind format.Kind, opts format.ReadOptions) (format.SchemaReader, error) {
	switch kind {
	case format.CSV:
		r, err := store.GetRange(ctx, key, 0, -1)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return csv.NewReader(r, opts)

	case format.JSONL:
		r, err := store.GetRange(ctx, key, 0, -1)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return jsonl.NewReader(r, opts)

	case format.Parquet:
		r, err := store.GetRange(ctx, key, 0, -1)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return parquet.NewReader(bytes.NewReader(data), int64(len(data)), opts)

	default:
		return nil, fmt.Errorf("job: unknown input format %q", kind)
	}
}

// openWriter builds the codec writer for kind over sink.
func openWriter(sink format.Sink, schema batch.Schema, kind format.Kind, opts format.WriteOptions) (format.Writer, error) {
	switch kind {
	case format.CSV:
		return csv.NewWriter(sink, schema, opts), nil
	case format.JSONL:
		return jsonl.NewWriter(sink, schema, opts), nil
	case format.Parquet:
		return parquet.NewWriter(sink, schema, opts), nil
	default:
		return nil, fmt.Errorf("job: unknown output format %q", kind)
	}
}

// extensionFor returns the file extension the output key uses for each
// format kind.
func extensionFor(kind format.Kind) string {
	switch kind {
	case format.JSONL:
		return "jsonl"
	case format.Parquet:
		return "parquet"
	default:
		return "csv"
	}
}
