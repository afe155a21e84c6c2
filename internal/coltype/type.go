// Package coltype defines the semantic column types understood by the
// schema, their native storage types, and the conversion from untyped
// JSON input to typed storage values.
package coltype

import "fmt"

// Type is the closed set of semantic column types. Every Type maps 1:1
// to a native storage type; switches over Type must be exhaustive so
// that adding a type is a compile-visible change.
type Type int

const (
	Bool Type = iota
	Int32
	Int64
	Float32
	Float64
	String
	Timestamp
)

// typeNames maps the configuration vocabulary to semantic types.
var typeNames = map[string]Type{
	"bool":      Bool,
	"i32":       Int32,
	"i64":       Int64,
	"f32":       Float32,
	"f64":       Float64,
	"string":    String,
	"timestamp": Timestamp,
}

// Parse resolves a configuration type name to a Type.
func Parse(name string) (Type, error) {
	t, ok := typeNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown column type %q", name)
	}
	return t, nil
}

// String returns the configuration name of the type.
func (t Type) String() string {
	switch t {
	case Bool:
		return "bool"
	case Int32:
		return "i32"
	case Int64:
		return "i64"
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	case String:
		return "string"
	case Timestamp:
		return "timestamp"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Native returns the declared storage type for t. The mapping is total;
// the reconciler compares these names case-insensitively against the
// live catalog.
func (t Type) Native() string {
	switch t {
	case Bool:
		return "BOOLEAN"
	case Int32:
		return "INTEGER"
	case Int64:
		return "BIGINT"
	case Float32:
		return "REAL"
	case Float64:
		return "DOUBLE"
	case String:
		return "TEXT"
	case Timestamp:
		return "TIMESTAMP"
	}
	panic("coltype: unknown type " + t.String())
}

