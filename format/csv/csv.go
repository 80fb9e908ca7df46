// Package csv implements the CSV reader/writer, using stdlib encoding/csv.
// Type inference widens each column across a bool -> int64 -> float64 ->
// string lattice as values are observed.
package csv

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vegafs/streamengine/batch"
)

var typeRank = map[batch.Type]int{
	batch.Bool:    0,
	batch.Int64:   1,
	batch.Float64: 2,
	batch.String:  3,
}

func classify(v string) batch.Type {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return batch.Int64
	}
	if _, err := strconv.ParseBool(v); err == nil {
		return batch.Bool
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return batch.Float64
	}
	return batch.String
}

func widen(a, b batch.Type) batch.Type {
	if typeRank[b] > typeRank[a] {
		return b
	}
	return a
}

func detectHeader(override *bool, fields []string) bool {
	if override != nil {
		return *override
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if _, err := strconv.ParseFloat(f, 64); err == nil {
			return false
		}
		if seen[f] {
			return false
		}
		seen[f] = true
	}
	return true
}

func syntheticNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("column_%d", i+1)
	}
	return names
}

// inferSchema implements the type-inference lattice:
// bool -> int64 -> float64 -> string, promoted to timestamp only when every
// non-empty sample value in the column parses as RFC 3339.
func inferSchema(header []string, rows [][]string) batch.Schema {
	n := len(header)
	types := make([]batch.Type, n)
	allTimestamp := make([]bool, n)
	anyValue := make([]bool, n)
	nullable := make([]bool, n)
	for i := range allTimestamp {
		allTimestamp[i] = true
	}

	for _, row := range rows {
		for i := 0; i < n; i++ {
			if i >= len(row) || row[i] == "" {
				nullable[i] = true
				continue
			}
			v := row[i]
			if _, err := time.Parse(time.RFC3339, v); err != nil {
				allTimestamp[i] = false
			}
			if !anyValue[i] {
				types[i] = classify(v)
			} else {
				types[i] = widen(types[i], classify(v))
			}
			anyValue[i] = true
		}
	}

	fields := make([]batch.Field, n)
	for i, name := range header {
		t := types[i]
		if anyValue[i] && allTimestamp[i] {
			t = batch.Timestamp
		}
		fields[i] = batch.Field{Name: name, Type: t, Nullable: nullable[i]}
	}
	return batch.Schema{Fields: fields}
}

// castString parses raw per t, returning ok=false when the value cannot be
// cast (the caller resolves this to null or a strict-mode failure).
func castString(raw string, t batch.Type) (batch.Value, bool) {
	switch t {
	case batch.Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return batch.Value{}, false
		}
		return batch.BoolValue(v), true
	case batch.Int64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return batch.Value{}, false
		}
		return batch.IntValue(v), true
	case batch.Float64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return batch.Value{}, false
		}
		return batch.FloatValue(v), true
	case batch.Timestamp:
		ts, err := batch.ParseTimestamp(raw)
		if err != nil {
			return batch.Value{}, false
		}
		return batch.TimeValue(ts), true
	case batch.String:
		return batch.StringValue(raw), true
	default:
		return batch.Value{}, false
	}
}

func formatValue(v batch.Value) string {
	switch v.Type {
	case batch.Int64:
		return strconv.FormatInt(v.I, 10)
	case batch.Float64:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case batch.Bool:
		return strconv.FormatBool(v.B)
	case batch.Timestamp:
		return v.T.UTC().Format(time.RFC3339)
	case batch.String:
		return v.S
	default:
		return ""
	}
}
