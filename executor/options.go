package executor

import (
	"runtime"

	"github.com/vegafs/streamengine/metrics"
)

// DefaultMaxMemoryBytes is used when Options.MaxMemoryBytes is unset.
const DefaultMaxMemoryBytes = 512 * 1024 * 1024

// Options configures one Executor run and the
// ENGINE_* environment variables.
type Options struct {
	MaxMemoryBytes int64
	Parallelism    int
	MaxBatchRows   int
	Metrics        metrics.Recorder
}

// withDefaults fills zero-valued fields: parallelism
// defaults to min(cores, 8).
func (o Options) withDefaults() Options {
	if o.Parallelism <= 0 {
		o.Parallelism = defaultParallelism()
	}
	if o.MaxMemoryBytes <= 0 {
		o.MaxMemoryBytes = DefaultMaxMemoryBytes
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Noop{}
	}
	return o
}

func defaultParallelism() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}

// TunedMaxBatchRows applies the auto-tune rule: MAX_BATCH_ROWS is
// reduced if a batch's byte-size estimate would exceed
// max_memory_bytes / (4 * parallelism), assuming avgRowBytes per row.
func (o Options) TunedMaxBatchRows(defaultRows int, avgRowBytes int64) int {
	if avgRowBytes <= 0 {
		return defaultRows
	}
	budget := o.MaxMemoryBytes / int64(4*o.Parallelism)
	capRows := int(budget / avgRowBytes)
	if capRows > 0 && capRows < defaultRows {
		return capRows
	}
	return defaultRows
}
