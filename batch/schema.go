// Package batch implements the columnar record batch: a schema plus typed
// column arrays and null bitmaps. A Batch is the unit of work passed
// between the reader, the operator chain, and the writer inside the
// executor.
package batch

import "fmt"

// Type is the closed set of column types the engine understands.
type Type int

const (
	Int64 Type = iota
	Float64
	Bool
	String
	Timestamp
)

func (t Type) String() string {
	switch t {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Timestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// ParseType maps the wire-format type names used in cast steps to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "int64":
		return Int64, nil
	case "float64":
		return Float64, nil
	case "bool":
		return Bool, nil
	case "string":
		return String, nil
	case "timestamp":
		return Timestamp, nil
	default:
		return 0, fmt.Errorf("unknown type %q", s)
	}
}

// Field is one (name, type, nullable) entry in a Schema.
type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

// Schema is the ordered sequence of fields produced by a reader or derived
// by an operator. Equality is structural, so that fingerprinting and
// schema-soundness checks are well defined.
type Schema struct {
	Fields []Field
}

// NewSchema builds a Schema from field literals.
func NewSchema(fields ...Field) Schema {
	return Schema{Fields: fields}
}

// IndexOf returns the position of name in the schema, or -1.
func (s Schema) IndexOf(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Field returns the field named name and whether it exists.
func (s Schema) Field(name string) (Field, bool) {
	i := s.IndexOf(name)
	if i < 0 {
		return Field{}, false
	}
	return s.Fields[i], true
}

// Equal reports whether s and other have the same fields in the same
// order.
func (s Schema) Equal(other Schema) bool {
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for i, f := range s.Fields {
		o := other.Fields[i]
		if f.Name != o.Name || f.Type != o.Type || f.Nullable != o.Nullable {
			return false
		}
	}
	return true
}

// Names returns the field names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Select returns a new Schema narrowed and reordered to the given column
// names, preserving the requested order.
func (s Schema) Select(names []string) (Schema, error) {
	fields := make([]Field, len(names))
	for i, n := range names {
		f, ok := s.Field(n)
		if !ok {
			return Schema{}, fmt.Errorf("unknown column %q", n)
		}
		fields[i] = f
	}
	return Schema{Fields: fields}, nil
}
