// Package jsonl implements the JSON-lines reader/writer, using
// goccy/go-json as a drop-in replacement for encoding/json at every JSON
// touch point.
package jsonl

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vegafs/streamengine/batch"
)

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// classify maps a raw JSON scalar to the narrowest batch.Type that can hold
// it, distinguishing integers from floats by the presence of a decimal
// point or exponent.
func classify(raw json.RawMessage) batch.Type {
	s := strings.TrimSpace(string(raw))
	if s == "true" || s == "false" {
		return batch.Bool
	}
	if len(s) > 0 && s[0] == '"' {
		return batch.String
	}
	if strings.ContainsAny(s, ".eE") {
		return batch.Float64
	}
	return batch.Int64
}

func widen(a, b batch.Type) batch.Type {
	if a == b {
		return a
	}
	if (a == batch.Int64 && b == batch.Float64) || (a == batch.Float64 && b == batch.Int64) {
		return batch.Float64
	}
	return batch.String
}

// inferSchema builds a schema from the union of keys seen across rows, in
// first-appearance order: extra fields extend the schema
// only within this (first) batch, then it locks.
func inferSchema(rows []map[string]json.RawMessage) batch.Schema {
	var order []string
	seen := make(map[string]bool)
	types := make(map[string]batch.Type)
	nullable := make(map[string]bool)

	for _, row := range rows {
		for k, raw := range row {
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
			if isJSONNull(raw) {
				nullable[k] = true
				continue
			}
			t := classify(raw)
			if cur, ok := types[k]; ok {
				types[k] = widen(cur, t)
			} else {
				types[k] = t
			}
		}
	}

	fields := make([]batch.Field, len(order))
	for i, k := range order {
		t, ok := types[k]
		if !ok {
			t = batch.String
			nullable[k] = true
		}
		fields[i] = batch.Field{Name: k, Type: t, Nullable: nullable[k]}
	}
	return batch.Schema{Fields: fields}
}

func decodeValue(raw json.RawMessage, t batch.Type) (batch.Value, error) {
	switch t {
	case batch.Bool:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return batch.Value{}, err
		}
		return batch.BoolValue(v), nil
	case batch.Int64:
		var v int64
		if err := json.Unmarshal(raw, &v); err == nil {
			return batch.IntValue(v), nil
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return batch.Value{}, err
		}
		return batch.IntValue(int64(f)), nil
	case batch.Float64:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return batch.Value{}, err
		}
		return batch.FloatValue(v), nil
	case batch.String:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return batch.Value{}, err
		}
		return batch.StringValue(v), nil
	case batch.Timestamp:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return batch.Value{}, err
		}
		ts, err := batch.ParseTimestamp(v)
		if err != nil {
			return batch.Value{}, err
		}
		return batch.TimeValue(ts), nil
	default:
		return batch.Value{}, fmt.Errorf("jsonl: unsupported type %s", t)
	}
}

func valueToAny(v batch.Value) any {
	switch v.Type {
	case batch.Int64:
		return v.I
	case batch.Float64:
		return v.F
	case batch.Bool:
		return v.B
	case batch.Timestamp:
		return v.T.UTC().Format(time.RFC3339)
	case batch.String:
		return v.S
	default:
		return nil
	}
}
