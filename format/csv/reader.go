package csv

import (
	stdcsv "encoding/csv"
	"context"
	"fmt"
	"io"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/errs"
	"github.com/vegafs/streamengine/format"
)

// Reader implements format.Reader over a CSV byte stream. The first
// SampleRows (or format.DefaultSampleRows) rows are buffered to infer a
// schema before any batch is emitted; those buffered rows become the first
// batch rather than being discarded.
type Reader struct {
	cr      *stdcsv.Reader
	opts    format.ReadOptions
	schema  batch.Schema
	maxRows int

	buffered  [][]string
	rowOffset int64
	done      bool
}

// NewReader builds a Reader over r, detecting (or honoring opts.HasHeader)
// the header row and inferring a schema from the configured sample size.
func NewReader(r io.Reader, opts format.ReadOptions) (*Reader, error) {
	cr := stdcsv.NewReader(r)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.FieldsPerRecord = -1

	maxRows := opts.MaxBatchRows
	if maxRows <= 0 {
		maxRows = batch.DefaultMaxRows
	}
	sample := opts.SampleRows
	if sample <= 0 {
		sample = format.DefaultSampleRows
	}

	rd := &Reader{cr: cr, opts: opts, maxRows: maxRows}

	first, err := cr.Read()
	if err == io.EOF {
		rd.done = true
		return rd, nil
	}
	if err != nil {
		return nil, errs.Decode(0, "reading CSV header: "+err.Error())
	}

	var header []string
	var sampleRows [][]string
	if detectHeader(opts.HasHeader, first) {
		header = first
	} else {
		header = syntheticNames(len(first))
		sampleRows = append(sampleRows, first)
	}

	for len(sampleRows) < sample {
		row, rerr := cr.Read()
		if rerr == io.EOF {
			rd.done = true
			break
		}
		if rerr != nil {
			return nil, errs.Decode(int64(len(sampleRows)), "malformed CSV row: "+rerr.Error())
		}
		sampleRows = append(sampleRows, row)
	}

	rd.schema = inferSchema(header, sampleRows)
	rd.buffered = sampleRows
	return rd, nil
}

// Next returns the next batch, drawing first from the buffered sample rows
// and then reading fresh rows directly from the underlying CSV stream.
func (r *Reader) Next(ctx context.Context) (*batch.Batch, error) {
	if len(r.schema.Fields) == 0 {
		return nil, io.EOF
	}

	var rows [][]string
	if len(r.buffered) > 0 {
		take := r.maxRows
		if take > len(r.buffered) {
			take = len(r.buffered)
		}
		rows = r.buffered[:take]
		r.buffered = r.buffered[take:]
	} else if !r.done {
		for len(rows) < r.maxRows {
			row, err := r.cr.Read()
			if err == io.EOF {
				r.done = true
				break
			}
			if err != nil {
				return nil, errs.Decode(r.rowOffset, "malformed CSV row: "+err.Error())
			}
			rows = append(rows, row)
		}
	}

	if len(rows) == 0 {
		return nil, io.EOF
	}

	b := batch.New(r.schema, len(rows))
	for _, row := range rows {
		for i, f := range r.schema.Fields {
			var raw string
			if i < len(row) {
				raw = row[i]
			}
			col := &b.Columns[i]
			if raw == "" {
				col.AppendNull()
				continue
			}
			v, ok := castString(raw, f.Type)
			if !ok {
				if r.opts.Strict {
					return nil, errs.OperatorErr(-1, r.rowOffset, fmt.Sprintf("cannot cast %q to %s", raw, f.Type))
				}
				col.AppendNull()
				continue
			}
			col.Append(v)
		}
		r.rowOffset++
	}
	if err := b.Seal(); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Reader) Close() error { return nil }

// Schema returns the schema inferred from the sampled header/rows.
func (r *Reader) Schema() batch.Schema { return r.schema }

var _ format.Reader = (*Reader)(nil)
