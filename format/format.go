// Package format implements the streaming codec contract: Reader/Writer
// pairs for CSV, JSON-lines, and Parquet, plus format detection. Concrete
// codecs live in the csv, jsonl, and parquet subpackages; this package
// holds the shared interfaces and options.
package format

import (
	"context"

	"github.com/vegafs/streamengine/batch"
)

// Kind is the closed set of formats the engine understands.
type Kind string

const (
	CSV     Kind = "csv"
	JSONL   Kind = "jsonl"
	Parquet Kind = "parquet"
)

// DefaultPartSizeBytes is the writer part-boundary threshold (also
// overridable via ENGINE_PART_SIZE_BYTES).
const DefaultPartSizeBytes = 8 * 1024 * 1024

// DefaultSampleRows is the CSV type-inference sample size.
const DefaultSampleRows = 8192

// DefaultDetectionBytes is format_detection_bytes's default.
const DefaultDetectionBytes = 64 * 1024

// ReadOptions configures a Reader. Zero value means "use codec defaults".
type ReadOptions struct {
	Delimiter    rune
	Quote        rune
	HasHeader    *bool
	SampleRows   int
	Strict       bool
	MaxBatchRows int
}

// WriteOptions configures a Writer.
type WriteOptions struct {
	PartSizeBytes int64
	NullString    string
	Compression   string
}

// Reader produces a finite sequence of batches from a byte stream.
// Readers are not restartable: Next returns io.EOF once exhausted and
// must not be called again afterward.
type Reader interface {
	Next(ctx context.Context) (*batch.Batch, error)
	Close() error
}

// Writer accepts batches and buffers them into parts.
type Writer interface {
	Write(ctx context.Context, b *batch.Batch) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// SchemaReader is a Reader whose schema is known before the first Next call
// (inferred from samples, or read from an embedded footer). All three
// codecs in this module satisfy it; the pipeline compiler needs the schema
// up front, before any operator chain can be built.
type SchemaReader interface {
	Reader
	Schema() batch.Schema
}

// Sink is the byte-sink side a Writer publishes parts through. It is
// satisfied by *objectstore.UploadHandle; defined narrowly here so format
// codecs don't import the object-store package's AWS SDK dependency.
type Sink interface {
	AppendPart(ctx context.Context, data []byte) error
}
