// Package errs implements the engine's error taxonomy. Every failure that
// can terminate a job run is represented as an errs.Error with a closed
// Kind, so the driver can surface it verbatim to Progress and Await
// without string-matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories a job run can terminate with.
type Kind int

const (
	// KindCancelled is a terminal non-error state, not a failure, but it
	// shares the same carrier type so JobRun.Error can be a single field.
	KindCancelled Kind = iota
	KindStorageTransient
	KindStoragePermanent
	KindDecode
	KindPipeline
	KindOperator
	KindResourceExhausted
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindCancelled:
		return "Cancelled"
	case KindStorageTransient:
		return "StorageTransient"
	case KindStoragePermanent:
		return "StoragePermanent"
	case KindDecode:
		return "DecodeError"
	case KindPipeline:
		return "PipelineError"
	case KindOperator:
		return "OperatorError"
	case KindResourceExhausted:
		return "ResourceExhausted"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error carries a Kind plus whatever positional context that kind defines:
// DecodeError and OperatorError report row_offset; OperatorError and
// PipelineError additionally report step_index.
type Error struct {
	Kind      Kind
	StepIndex int
	RowOffset int64
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a bare Error of the given kind.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap constructs an Error of the given kind wrapping an underlying error.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// WithStep annotates an Error with the pipeline step index that produced it.
func (e *Error) WithStep(step int) *Error {
	e.StepIndex = step
	return e
}

// WithRow annotates an Error with the input row offset that produced it.
func (e *Error) WithRow(row int64) *Error {
	e.RowOffset = row
	return e
}

// Decode builds a DecodeError.
func Decode(rowOffset int64, reason string) *Error {
	return &Error{Kind: KindDecode, RowOffset: rowOffset, Reason: reason}
}

// OperatorErr builds an OperatorError.
func OperatorErr(step int, rowOffset int64, reason string) *Error {
	return &Error{Kind: KindOperator, StepIndex: step, RowOffset: rowOffset, Reason: reason}
}

// PipelineErr builds a PipelineError.
func PipelineErr(step int, reason string) *Error {
	return &Error{Kind: KindPipeline, StepIndex: step, Reason: reason}
}

// IsKind reports whether err (or any error it wraps) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == k
}
