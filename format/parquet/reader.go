package parquet

import (
	"context"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/errs"
	"github.com/vegafs/streamengine/format"
)

// Reader implements format.Reader over a Parquet file, yielding one batch
// per row group — the row-group boundary the writer aligns to
// batch.DefaultMaxRows, so this stays a 1:1 mapping in the common case.
type Reader struct {
	pf      *parquet.File
	schema  batch.Schema
	maxRows int
	rg      int
}

func NewReader(ra io.ReaderAt, size int64, opts format.ReadOptions) (*Reader, error) {
	pf, err := parquet.OpenFile(ra, size)
	if err != nil {
		return nil, errs.Decode(0, "invalid parquet file: "+err.Error())
	}
	maxRows := opts.MaxBatchRows
	if maxRows <= 0 {
		maxRows = batch.DefaultMaxRows
	}
	return &Reader{
		pf:      pf,
		schema:  fromParquetSchema(pf.Schema()),
		maxRows: maxRows,
	}, nil
}

func (r *Reader) Next(ctx context.Context) (*batch.Batch, error) {
	groups := r.pf.RowGroups()
	for r.rg < len(groups) {
		group := groups[r.rg]
		r.rg++

		rows := group.Rows()
		buf := make([]parquet.Row, r.maxRows)
		n, err := rows.ReadRows(buf)
		closeErr := rows.Close()
		if err != nil && err != io.EOF {
			return nil, errs.Wrap(errs.KindDecode, "parquet row-group read failed", err)
		}
		if closeErr != nil {
			return nil, errs.Wrap(errs.KindDecode, "parquet row-group close failed", closeErr)
		}
		if n == 0 {
			continue
		}
		return r.convert(buf[:n])
	}
	return nil, io.EOF
}

func (r *Reader) convert(rows []parquet.Row) (*batch.Batch, error) {
	b := batch.New(r.schema, len(rows))
	for _, row := range rows {
		for i, f := range r.schema.Fields {
			if i >= len(row) {
				b.Columns[i].AppendNull()
				continue
			}
			v, err := valueFromParquet(row[i], f.Type)
			if err != nil {
				return nil, errs.OperatorErr(-1, 0, err.Error())
			}
			b.Columns[i].Append(v)
		}
	}
	if err := b.Seal(); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Reader) Close() error { return nil }

// Schema returns the schema read from the Parquet file's embedded footer.
func (r *Reader) Schema() batch.Schema { return r.schema }

var _ format.Reader = (*Reader)(nil)
