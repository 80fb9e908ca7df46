package job

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vegafs/streamengine/cache"
	"github.com/vegafs/streamengine/config"
	"github.com/vegafs/streamengine/errs"
	"github.com/vegafs/streamengine/executor"
	"github.com/vegafs/streamengine/format"
	"github.com/vegafs/streamengine/metrics"
	"github.com/vegafs/streamengine/objectstore"
	"github.com/vegafs/streamengine/pipeline"
)

// StartKind is the discriminant of StartResult: a new run, a cache hit
// with an existing output location, or a duplicate of an in-flight run.
type StartKind string

const (
	StartNew       StartKind = "new"
	StartCacheHit  StartKind = "cache_hit"
	StartDuplicate StartKind = "duplicate"
)

// StartResult is the result of Driver.Start.
type StartResult struct {
	Kind           StartKind
	JobRunID       string
	OutputLocation string // set when Kind == StartCacheHit
}

// Driver implements start/progress/cancel/await. It owns the in-flight
// dedup map, protected by a single mutex, and every Run it has ever
// started, keyed by run ID.
type Driver struct {
	client        objectstore.Client
	cacheStore    cache.Store
	engineVersion string
	metrics       metrics.Recorder
	defaults      config.Defaults

	mu         sync.Mutex
	runs       map[string]*Run
	inflight   map[string]*Run // fingerprint hex -> run
	idSeq      atomic.Int64
	activeJobs atomic.Int64
}

// activeCount adjusts the active-job counter by delta and returns the new
// value, for the ActiveJobs gauge.
func (d *Driver) activeCount(delta int64) int {
	return int(d.activeJobs.Add(delta))
}

// NewDriver builds a Driver. client is the raw S3-shaped client the engine
// binds to input and output buckets as needed; cacheStore is the
// orchestrator's fingerprint cache.
func NewDriver(client objectstore.Client, cacheStore cache.Store, engineVersion string) *Driver {
	return &Driver{
		client:        client,
		cacheStore:    cacheStore,
		engineVersion: engineVersion,
		metrics:       metrics.Noop{},
		runs:          make(map[string]*Run),
		inflight:      make(map[string]*Run),
	}
}

// WithMetrics attaches a metrics.Recorder the driver reports job-run
// counters and durations to; by default a Driver reports to a no-op
// recorder. Returns d for chaining at construction time.
func (d *Driver) WithMetrics(m metrics.Recorder) *Driver {
	d.metrics = m
	return d
}

// WithDefaults attaches process-wide ENGINE_* defaults (normally from
// config.FromEnv), overlaid by any per-job options that are non-zero.
// Returns d for chaining at construction time.
func (d *Driver) WithDefaults(defaults config.Defaults) *Driver {
	d.defaults = defaults
	return d
}

func (d *Driver) newID() string {
	return "run-" + strconv.FormatInt(d.idSeq.Add(1), 10)
}

// Start computes the input's fingerprint, checks the cache, then the
// in-flight map, in that order. The returned Run's executor runs on an
// internal context derived from context.Background, not ctx: a caller
// whose own request context is cancelled after Start returns must not
// abort a job other callers may be sharing via a Duplicate result.
func (d *Driver) Start(ctx context.Context, spec Spec) (StartResult, error) {
	inStore := objectstore.New(d.client, spec.Input.Bucket)
	head, err := inStore.Head(ctx, spec.Input.Key)
	if err != nil {
		return StartResult{}, err
	}

	fp, err := pipeline.ComputeFingerprint(head.ETag, spec.Pipeline, d.engineVersion)
	if err != nil {
		return StartResult{}, errs.Wrap(errs.KindPipeline, "fingerprint computation failed", err)
	}
	fpHex := fp.String()

	entry, hit, err := d.cacheStore.Lookup(ctx, fp)
	if err != nil {
		return StartResult{}, err
	}
	if hit {
		run := newRun(d.newID(), fpHex)
		run.finish(StateSucceeded, entry.OutputLocation(), nil)
		d.mu.Lock()
		d.runs[run.ID] = run
		d.mu.Unlock()
		return StartResult{Kind: StartCacheHit, JobRunID: run.ID, OutputLocation: entry.OutputLocation()}, nil
	}

	d.mu.Lock()
	if existing, ok := d.inflight[fpHex]; ok {
		d.mu.Unlock()
		return StartResult{Kind: StartDuplicate, JobRunID: existing.ID}, nil
	}
	run := newRun(d.newID(), fpHex)
	d.inflight[fpHex] = run
	d.runs[run.ID] = run
	d.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	run.setCancelFunc(cancel)
	go d.execute(runCtx, spec, head, fp, run)

	return StartResult{Kind: StartNew, JobRunID: run.ID}, nil
}

// execute runs one job to completion: it spawns the executor, and on
// success writes a cache entry and clears the in-flight sentinel; on
// failure it clears the sentinel without writing an entry.
func (d *Driver) execute(ctx context.Context, spec Spec, head objectstore.Head, fp pipeline.Fingerprint, run *Run) {
	fpHex := fp.String()
	start := time.Now()
	d.metrics.SetActiveJobs(d.activeCount(1))
	defer func() {
		d.mu.Lock()
		delete(d.inflight, fpHex)
		d.mu.Unlock()
		d.metrics.SetActiveJobs(d.activeCount(-1))
		view := run.snapshot()
		d.metrics.ObserveJob(string(view.State), time.Since(start))
		if view.Err != nil {
			var e *errs.Error
			if errors.As(view.Err, &e) {
				d.metrics.ObserveError(e.Kind.String())
			} else {
				d.metrics.ObserveError(errs.KindInternal.String())
			}
		}
	}()

	run.setRunning()

	inStore := objectstore.New(d.client, spec.Input.Bucket)
	kind := format.Kind(spec.Input.Format)
	if kind == "" {
		detected, err := format.Detect(ctx, inStore, spec.Input.Key, spec.Options.FormatDetectionBytes)
		if err != nil {
			run.finish(StateFailed, "", err)
			return
		}
		kind = detected
	}

	readOpts := format.ReadOptions{MaxBatchRows: d.defaults.MaxBatchRows()}
	reader, err := openReader(ctx, inStore, spec.Input.Key, kind, readOpts)
	if err != nil {
		run.finish(StateFailed, "", err)
		return
	}
	defer reader.Close()

	compiled, err := pipeline.Compile(spec.Pipeline, reader.Schema())
	if err != nil {
		run.finish(StateFailed, "", err)
		return
	}

	outputKind := kind
	if compiled.HasConvertFormat {
		outputKind = compiled.OutputFormat
	}
	outputKey := fmt.Sprintf("%s/%s.%s", spec.Output.KeyPrefix, fpHex, extensionFor(outputKind))

	outStore := objectstore.New(d.client, spec.Output.Bucket)
	handle, err := outStore.MultipartPut(ctx, outputKey)
	if err != nil {
		run.finish(StateFailed, "", err)
		return
	}

	writer, err := openWriter(handle, compiled.OutputSchema, outputKind, d.defaults.WriteOptions())
	if err != nil {
		_ = handle.Abort(ctx)
		run.finish(StateFailed, "", err)
		return
	}

	execOpts := d.defaults.ExecutorOptions(spec.Options.MaxMemoryBytes, spec.Options.Parallelism)
	execOpts.Metrics = d.metrics
	exec := executor.New(compiled, reader, writer, execOpts)
	run.setCancelFunc(exec.Cancel)

	progressDone := make(chan struct{})
	go d.pollProgress(exec, run, progressDone)

	finalProgress, runErr := exec.Run(ctx)
	close(progressDone)
	run.setProgress(finalProgress)

	if runErr != nil {
		_ = handle.Abort(ctx)
		if errs.IsKind(runErr, errs.KindCancelled) || errors.Is(runErr, context.Canceled) {
			run.finish(StateCancelled, "", nil)
			return
		}
		run.finish(StateFailed, "", runErr)
		return
	}

	loc, err := handle.Complete(ctx)
	if err != nil {
		run.finish(StateFailed, "", err)
		return
	}
	location := "s3://" + loc.Bucket + "/" + loc.Key

	entry := cache.Entry{
		Fingerprint:   fpHex,
		OutputBucket:  loc.Bucket,
		OutputKey:     loc.Key,
		RowCount:      finalProgress.RowsOut,
		ByteSize:      finalProgress.BytesOut,
		EngineVersion: d.engineVersion,
	}
	if err := d.cacheStore.Insert(ctx, entry); err != nil {
		run.finish(StateFailed, "", err)
		return
	}

	run.finish(StateSucceeded, location, nil)
}

const pollInterval = 250 * time.Millisecond

// pollProgress copies the executor's throttled progress snapshot into the
// Run on a ticker, so Progress reads never block on the executor directly.
func (d *Driver) pollProgress(exec *executor.Executor, run *Run, done <-chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			run.setProgress(exec.Progress())
		}
	}
}

// Progress returns the current snapshot for a run.
func (d *Driver) Progress(id string) (View, error) {
	d.mu.Lock()
	run, ok := d.runs[id]
	d.mu.Unlock()
	if !ok {
		return View{}, fmt.Errorf("job: unknown run %s", id)
	}
	return run.snapshot(), nil
}

// Cancel requests that a run stop. Cancellation is cooperative and takes
// effect at the run's next batch boundary.
func (d *Driver) Cancel(id string) error {
	d.mu.Lock()
	run, ok := d.runs[id]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("job: unknown run %s", id)
	}
	run.requestCancel()
	return nil
}

// Await blocks until the run reaches a terminal state. Call Progress
// instead for a non-blocking poll.
func (d *Driver) Await(ctx context.Context, id string) (View, error) {
	d.mu.Lock()
	run, ok := d.runs[id]
	d.mu.Unlock()
	if !ok {
		return View{}, fmt.Errorf("job: unknown run %s", id)
	}

	for {
		v := run.snapshot()
		if v.State.Terminal() {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
