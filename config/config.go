// Package config implements the environment-variable defaults for the
// engine: ENGINE_MAX_MEMORY_BYTES, ENGINE_PARALLELISM,
// ENGINE_PART_SIZE_BYTES, and ENGINE_BATCH_ROWS. One struct, field-by-field
// validation returning the first error found, sourced from os.Getenv.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/vegafs/streamengine/batch"
	"github.com/vegafs/streamengine/executor"
	"github.com/vegafs/streamengine/format"
)

// EnvMaxMemoryBytes, EnvParallelism, EnvPartSizeBytes, and EnvBatchRows are
// the four optional environment variables this package documents.
const (
	EnvMaxMemoryBytes = "ENGINE_MAX_MEMORY_BYTES"
	EnvParallelism    = "ENGINE_PARALLELISM"
	EnvPartSizeBytes  = "ENGINE_PART_SIZE_BYTES"
	EnvBatchRows      = "ENGINE_BATCH_ROWS"
)

// Defaults holds the engine-wide defaults read at start, before any
// per-job options override. Zero fields fall back to the package-level
// built-in defaults (executor.DefaultMaxMemoryBytes,
// format.DefaultPartSizeBytes, batch.DefaultMaxRows, min(cores, 8)).
type Defaults struct {
	MaxMemoryBytes int64
	Parallelism    int
	PartSizeBytes  int64
	BatchRows      int
}

// FromEnv reads Defaults from the process environment. Unset
// variables leave the corresponding field zero; only variables that are
// present are parsed and validated, distinguishing "unset" from "explicitly zero".
func FromEnv() (Defaults, error) {
	var d Defaults
	var err error

	if v, ok := os.LookupEnv(EnvMaxMemoryBytes); ok {
		if d.MaxMemoryBytes, err = parsePositiveInt64(EnvMaxMemoryBytes, v); err != nil {
			return Defaults{}, err
		}
	}
	if v, ok := os.LookupEnv(EnvParallelism); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Defaults{}, fmt.Errorf("config: %s must be a positive integer, got %q", EnvParallelism, v)
		}
		d.Parallelism = n
	}
	if v, ok := os.LookupEnv(EnvPartSizeBytes); ok {
		if d.PartSizeBytes, err = parsePositiveInt64(EnvPartSizeBytes, v); err != nil {
			return Defaults{}, err
		}
	}
	if v, ok := os.LookupEnv(EnvBatchRows); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Defaults{}, fmt.Errorf("config: %s must be a positive integer, got %q", EnvBatchRows, v)
		}
		d.BatchRows = n
	}
	return d, nil
}

func parsePositiveInt64(name, v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", name, v)
	}
	return n, nil
}

// ExecutorOptions renders Defaults, overlaid with any non-zero per-job
// override, as executor.Options. A zero override field defers to the
// process-wide default, which in turn defers to the built-ins via
// executor.Options.withDefaults.
func (d Defaults) ExecutorOptions(overrideMaxMemory int64, overrideParallelism int) executor.Options {
	opts := executor.Options{
		MaxMemoryBytes: d.MaxMemoryBytes,
		Parallelism:    d.Parallelism,
	}
	if overrideMaxMemory > 0 {
		opts.MaxMemoryBytes = overrideMaxMemory
	}
	if overrideParallelism > 0 {
		opts.Parallelism = overrideParallelism
	}
	return opts
}

// WriteOptions renders Defaults as format.WriteOptions, falling back to
// format.DefaultPartSizeBytes when PartSizeBytes is unset.
func (d Defaults) WriteOptions() format.WriteOptions {
	partSize := d.PartSizeBytes
	if partSize <= 0 {
		partSize = format.DefaultPartSizeBytes
	}
	return format.WriteOptions{PartSizeBytes: partSize}
}

// MaxBatchRows returns BatchRows if set, else batch.DefaultMaxRows.
func (d Defaults) MaxBatchRows() int {
	if d.BatchRows > 0 {
		return d.BatchRows
	}
	return batch.DefaultMaxRows
}
