package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"io"

	json "github.com/goccy/go-json"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/errs"
	"github.com/vegafs/streamengine/format"
)

// Reader implements format.Reader over a newline-delimited JSON stream. The
// schema is inferred from the first batch's rows at construction time (so
// Schema() is available before the first Next call, matching the csv and
// parquet readers) and locked afterward: keys absent from that first batch
// are rejected (strict) or dropped (lenient) in later batches, matching
// the schema-extension rule.
type Reader struct {
	scanner *bufio.Scanner
	opts    format.ReadOptions
	schema  batch.Schema
	maxRows int

	buffered  []map[string]json.RawMessage
	rowOffset int64
}

func NewReader(r io.Reader, opts format.ReadOptions) (*Reader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	maxRows := opts.MaxBatchRows
	if maxRows <= 0 {
		maxRows = batch.DefaultMaxRows
	}
	rd := &Reader{scanner: scanner, opts: opts, maxRows: maxRows}

	rawRows, err := rd.scanRows()
	if err != nil {
		return nil, err
	}
	rd.buffered = rawRows
	rd.schema = inferSchema(rawRows)
	return rd, nil
}

// scanRows reads up to maxRows non-blank lines, decoding each into a raw
// field map without yet casting to the inferred schema.
func (r *Reader) scanRows() ([]map[string]json.RawMessage, error) {
	var rawRows []map[string]json.RawMessage
	for len(rawRows) < r.maxRows && r.scanner.Scan() {
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(line, &obj); err != nil {
			return nil, errs.Decode(r.rowOffset+int64(len(rawRows)), "malformed JSON line: "+err.Error())
		}
		rawRows = append(rawRows, obj)
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return rawRows, nil
}

// Schema returns the schema inferred from the first batch's rows.
func (r *Reader) Schema() batch.Schema { return r.schema }

func (r *Reader) Next(ctx context.Context) (*batch.Batch, error) {
	var rawRows []map[string]json.RawMessage
	if len(r.buffered) > 0 {
		rawRows = r.buffered
		r.buffered = nil
	} else {
		var err error
		rawRows, err = r.scanRows()
		if err != nil {
			return nil, err
		}
	}
	if len(rawRows) == 0 {
		return nil, io.EOF
	}

	b := batch.New(r.schema, len(rawRows))
	for _, obj := range rawRows {
		for i, f := range r.schema.Fields {
			raw, ok := obj[f.Name]
			col := &b.Columns[i]
			if !ok || isJSONNull(raw) {
				col.AppendNull()
				continue
			}
			v, err := decodeValue(raw, f.Type)
			if err != nil {
				if r.opts.Strict {
					return nil, errs.OperatorErr(-1, r.rowOffset, err.Error())
				}
				col.AppendNull()
				continue
			}
			col.Append(v)
		}
		if r.opts.Strict {
			for k := range obj {
				if r.schema.IndexOf(k) < 0 {
					return nil, errs.PipelineErr(-1, "unexpected field outside locked schema: "+k)
				}
			}
		}
		r.rowOffset++
	}
	if err := b.Seal(); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Reader) Close() error { return nil }

var _ format.Reader = (*Reader)(nil)
