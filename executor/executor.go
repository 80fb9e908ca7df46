// Package executor implements the chunked execution engine: reader ->
// bounded channel -> P parallel workers -> reorder buffer -> writer, or
// reader -> workers -> single-owner aggregate -> finalize -> writer. It
// runs on bounded channels, golang.org/x/sync/errgroup for first-error
// propagation, and progress snapshots published inline at most once per
// 500ms (the final counts are always published when Run returns), over an arbitrary
// compiled operator chain of batches.
package executor

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/errs"
	"github.com/vegafs/streamengine/format"
	"github.com/vegafs/streamengine/pipeline"
)

const progressInterval = 500 * time.Millisecond

type seqBatch struct {
	seq int64
	b   *batch.Batch
}

// Executor runs one Compiled pipeline against a reader and writer. It is
// single-use: create a new Executor per JobRun.
type Executor struct {
	compiled *pipeline.Compiled
	reader   format.Reader
	writer   format.Writer
	opts     Options

	cancelled   atomic.Bool
	snapshot    atomic.Pointer[Progress]
	lastPublish atomic.Int64

	aggMu sync.Mutex // serializes Aggregate.Ingest across workers
}

// New builds an Executor. opts zero-values are filled with the
// defaults (parallelism = min(cores, 8)).
func New(compiled *pipeline.Compiled, reader format.Reader, writer format.Writer, opts Options) *Executor {
	e := &Executor{
		compiled: compiled,
		reader:   reader,
		writer:   writer,
		opts:     opts.withDefaults(),
	}
	e.snapshot.Store(&Progress{})
	return e
}

// Cancel requests cooperative cancellation. Safe to call from any
// goroutine, any number of times; idempotent.
func (e *Executor) Cancel() { e.cancelled.Store(true) }

// Progress returns a non-blocking snapshot of current progress.
func (e *Executor) Progress() Progress { return *e.snapshot.Load() }

func (e *Executor) publish(p Progress) {
	now := time.Now().UnixNano()
	last := e.lastPublish.Load()
	if now-last < int64(progressInterval) {
		return
	}
	if e.lastPublish.CompareAndSwap(last, now) {
		// Never let a partial snapshot (readLoop reports no output counts)
		// move a field backwards.
		cur := e.snapshot.Load()
		p.BytesIn = max(p.BytesIn, cur.BytesIn)
		p.RowsIn = max(p.RowsIn, cur.RowsIn)
		p.RowsOut = max(p.RowsOut, cur.RowsOut)
		p.BytesOut = max(p.BytesOut, cur.BytesOut)
		e.snapshot.Store(&p)
	}
}

// Run drives the pipeline to completion (or cancellation, or failure). On
// any failure the caller is responsible for aborting the writer's
// underlying multipart upload; Run itself never double-closes the writer
// on an error path, matching close() being the sole atomic publication
// point.
func (e *Executor) Run(ctx context.Context) (Progress, error) {
	g, gctx := errgroup.WithContext(ctx)

	in := make(chan seqBatch, e.opts.Parallelism)
	out := make(chan seqBatch, e.opts.Parallelism)

	var rowsIn, bytesIn, rowsOut, bytesOut atomic.Int64

	g.Go(func() error { return e.readLoop(gctx, in, &rowsIn, &bytesIn) })

	var workers sync.WaitGroup
	for w := 0; w < e.opts.Parallelism; w++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			return e.workerLoop(gctx, in, out)
		})
	}
	go func() {
		workers.Wait()
		close(out)
	}()

	streaming := e.compiled.IsStreaming
	if streaming {
		g.Go(func() error {
			return e.reorderAndWrite(gctx, out, &rowsOut, &bytesOut, &rowsIn, &bytesIn)
		})
	} else {
		// Workers never send to out in aggregate mode; drain defensively so
		// a misbehaving worker can't deadlock the group.
		g.Go(func() error {
			for range out {
			}
			return nil
		})
	}

	snap := func() Progress {
		return Progress{
			BytesIn:  bytesIn.Load(),
			RowsIn:   rowsIn.Load(),
			RowsOut:  rowsOut.Load(),
			BytesOut: bytesOut.Load(),
		}
	}
	// The final counts are stored unthrottled, whichever way Run returns.
	defer func() {
		final := snap()
		e.snapshot.Store(&final)
	}()

	if err := g.Wait(); err != nil {
		return snap(), err
	}
	if e.cancelled.Load() {
		return snap(), errs.New(errs.KindCancelled, "run cancelled")
	}

	if !streaming {
		batches, err := e.compiled.Aggregate.Finalize(ctx)
		if err != nil {
			return snap(), err
		}
		for _, b := range batches {
			if e.cancelled.Load() {
				return snap(), errs.New(errs.KindCancelled, "run cancelled during finalize")
			}
			if err := e.writer.Write(ctx, b); err != nil {
				return snap(), err
			}
			rowsOut.Add(int64(b.RowCount))
			bytesOut.Add(b.ByteSize())
			e.opts.Metrics.ObserveBatch(b.RowCount, b.ByteSize(), "out")
			e.publish(snap())
		}
	}

	if err := e.writer.Close(ctx); err != nil {
		return snap(), err
	}
	return snap(), nil
}

func (e *Executor) readLoop(ctx context.Context, in chan<- seqBatch, rowsIn, bytesIn *atomic.Int64) error {
	defer close(in)
	var seq int64
	for {
		if e.cancelled.Load() {
			return nil
		}
		b, err := e.reader.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		rowsIn.Add(int64(b.RowCount))
		bytesIn.Add(b.ByteSize())
		e.opts.Metrics.ObserveBatch(b.RowCount, b.ByteSize(), "in")
		e.publish(Progress{BytesIn: bytesIn.Load(), RowsIn: rowsIn.Load()})

		select {
		case in <- seqBatch{seq: seq, b: b}:
		case <-ctx.Done():
			return ctx.Err()
		}
		seq++
	}
}

func (e *Executor) workerLoop(ctx context.Context, in <-chan seqBatch, out chan<- seqBatch) error {
	for sb := range in {
		if e.cancelled.Load() {
			return nil
		}
		cur := sb.b
		var err error
		for _, op := range e.compiled.Ops {
			if cur == nil {
				break
			}
			cur, err = op.Apply(ctx, cur)
			if err != nil {
				return err
			}
		}

		if e.compiled.Aggregate != nil {
			if cur == nil {
				continue
			}
			e.aggMu.Lock()
			err = e.compiled.Aggregate.Ingest(ctx, cur)
			e.aggMu.Unlock()
			if err != nil {
				return err
			}
			if e.compiled.Aggregate.EstimateBytes() > e.opts.MaxMemoryBytes/2 {
				return errs.New(errs.KindResourceExhausted, "aggregate state exceeds memory budget")
			}
			continue
		}

		select {
		case out <- seqBatch{seq: sb.seq, b: cur}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// reorderAndWrite is the single-owner writer position: it buffers
// out-of-order results in a map and writes them in original read order.
// The map's size is not bounded: while the batch with the oldest unwritten
// sequence number is still being processed, every later result that
// arrives is held in it.
func (e *Executor) reorderAndWrite(ctx context.Context, out <-chan seqBatch, rowsOut, bytesOut, rowsIn, bytesIn *atomic.Int64) error {
	pending := make(map[int64]*batch.Batch)
	next := int64(0)
	for sb := range out {
		if e.cancelled.Load() {
			return nil
		}
		pending[sb.seq] = sb.b
		for {
			b, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if b != nil {
				if err := e.writer.Write(ctx, b); err != nil {
					return err
				}
				rowsOut.Add(int64(b.RowCount))
				bytesOut.Add(b.ByteSize())
				e.opts.Metrics.ObserveBatch(b.RowCount, b.ByteSize(), "out")
			}
			e.publish(Progress{
				BytesIn:  bytesIn.Load(),
				RowsIn:   rowsIn.Load(),
				RowsOut:  rowsOut.Load(),
				BytesOut: bytesOut.Load(),
			})
		}
	}
	return nil
}
