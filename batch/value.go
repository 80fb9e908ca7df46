package batch

import (
	"fmt"
	"time"
)

// Value is a single typed cell, used by operators (filter predicates, cast,
// aggregate accumulators) that need to read or write one row at a time
// without switching on the concrete column slice themselves.
type Value struct {
	Type Type
	Null bool

	I int64
	F float64
	B bool
	S string
	T time.Time
}

// naiveTimestampLayouts are tried, in order, when a value fails to parse as
// RFC 3339: a timestamp with no zone designator is interpreted as UTC, per
// the cast operator's contract.
var naiveTimestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses s as RFC 3339. A naive timestamp (no zone
// designator) is interpreted as UTC rather than rejected.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	for _, layout := range naiveTimestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("value %q is not a valid RFC 3339 or naive timestamp", s)
}

// NullValue returns a null Value of the given type.
func NullValue(t Type) Value { return Value{Type: t, Null: true} }

func IntValue(v int64) Value       { return Value{Type: Int64, I: v} }
func FloatValue(v float64) Value   { return Value{Type: Float64, F: v} }
func BoolValue(v bool) Value       { return Value{Type: Bool, B: v} }
func StringValue(v string) Value   { return Value{Type: String, S: v} }
func TimeValue(v time.Time) Value  { return Value{Type: Timestamp, T: v} }

// Less reports whether v < other using type-native ordering, as required
// by aggregate min/max: numeric ordering for numbers, lexicographic over
// Unicode code points for strings, chronological for timestamps.
func (v Value) Less(other Value) bool {
	switch v.Type {
	case Int64:
		return v.I < other.I
	case Float64:
		return v.F < other.F
	case Bool:
		return !v.B && other.B
	case String:
		return v.S < other.S
	case Timestamp:
		return v.T.Before(other.T)
	default:
		return false
	}
}

// Equal reports value equality for same-typed, non-null values.
func (v Value) Equal(other Value) bool {
	if v.Null || other.Null {
		return false
	}
	switch v.Type {
	case Int64:
		return v.I == other.I
	case Float64:
		return v.F == other.F
	case Bool:
		return v.B == other.B
	case String:
		return v.S == other.S
	case Timestamp:
		return v.T.Equal(other.T)
	default:
		return false
	}
}
