package datatype

import (
	"fmt"
	"strings"
)

// DataType is a sealed interface over the closed type variant set.
// Only types in this package implement it. The marker method prevents
// external implementations and keeps type switches exhaustive.
//
// Variants:
//   - Null, Boolean, String, Binary, Date, Time, Interval (singletons)
//   - Integer (width, signedness), Float (width)
//   - Decimal (precision, scale)
//   - Timestamp (unit, optional timezone)
//   - Array, Map, Struct (nested)
//
// Nullability is NOT part of a DataType. It is attached at the point of use
// (see Field) so that the same type value can describe both nullable and
// non-nullable columns.
type DataType interface {
	// Name returns the canonical textual form of the type. Two types are
	// structurally equal exactly when their names are equal, which makes
	// names usable as hash keys for deduplication.
	Name() string

	dataType() // Sealed - only types in this package implement it
}

// Null is the type of the untyped NULL literal.
type Null struct{}

func (Null) dataType()    {}
func (Null) Name() string { return "null" }

// Boolean is a true/false type.
type Boolean struct{}

func (Boolean) dataType()    {}
func (Boolean) Name() string { return "boolean" }

// Integer is a fixed-width integral type.
type Integer struct {
	Width  int  // 8, 16, 32 or 64 bits
	Signed bool // two's complement when true
}

func (Integer) dataType() {}

func (t Integer) Name() string {
	if t.Signed {
		return fmt.Sprintf("int%d", t.Width)
	}
	return fmt.Sprintf("uint%d", t.Width)
}

// Float is an IEEE-754 floating point type.
type Float struct {
	Width int // 32 or 64 bits
}

func (Float) dataType()      {}
func (t Float) Name() string { return fmt.Sprintf("float%d", t.Width) }

// Decimal is an exact fixed-point numeric type.
type Decimal struct {
	Precision int // total number of digits
	Scale     int // digits after the decimal point
}

func (Decimal) dataType() {}

func (t Decimal) Name() string {
	return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
}

// String is a variable-length UTF-8 text type.
type String struct{}

func (String) dataType()    {}
func (String) Name() string { return "string" }

// Binary is a variable-length byte sequence type.
type Binary struct{}

func (Binary) dataType()    {}
func (Binary) Name() string { return "binary" }

// Date is a calendar date without a time component.
type Date struct{}

func (Date) dataType()    {}
func (Date) Name() string { return "date" }

// Time is a time of day without a date component.
type Time struct{}

func (Time) dataType()    {}
func (Time) Name() string { return "time" }

// TimeUnit is the resolution of a Timestamp.
type TimeUnit string

const (
	UnitSecond TimeUnit = "s"
	UnitMilli  TimeUnit = "ms"
	UnitMicro  TimeUnit = "us"
	UnitNano   TimeUnit = "ns"
)

// finer reports whether a has strictly higher resolution than b.
func (a TimeUnit) finer(b TimeUnit) bool {
	rank := map[TimeUnit]int{UnitSecond: 0, UnitMilli: 1, UnitMicro: 2, UnitNano: 3}
	return rank[a] > rank[b]
}

// Timestamp is a point in time at a given resolution, optionally anchored to
// a timezone. An empty TimeZone means a zone-naive timestamp.
type Timestamp struct {
	Unit     TimeUnit
	TimeZone string
}

func (Timestamp) dataType() {}

func (t Timestamp) Name() string {
	if t.TimeZone == "" {
		return fmt.Sprintf("timestamp(%s)", t.Unit)
	}
	return fmt.Sprintf("timestamp(%s,%q)", t.Unit, t.TimeZone)
}

// Interval is a duration between two temporal values.
type Interval struct{}

func (Interval) dataType()    {}
func (Interval) Name() string { return "interval" }

// Array is a variable-length sequence of elements of a single type.
type Array struct {
	Elem DataType
}

func (Array) dataType()      {}
func (t Array) Name() string { return fmt.Sprintf("array<%s>", t.Elem.Name()) }

// Map is an association from keys of one type to values of another.
type Map struct {
	Key   DataType
	Value DataType
}

func (Map) dataType() {}

func (t Map) Name() string {
	return fmt.Sprintf("map<%s,%s>", t.Key.Name(), t.Value.Name())
}

// StructField is a single named member of a Struct.
type StructField struct {
	Name string
	Type DataType
}

// Struct is an ordered collection of named, typed members.
type Struct struct {
	Fields []StructField
}

func (Struct) dataType() {}

func (t Struct) Name() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, f.Type.Name())
	}
	return "struct<" + strings.Join(parts, ", ") + ">"
}

// Common type values. These are plain values, not singletons; Equal compares
// canonical names, so independently constructed types compare equal.
var (
	Int8    = Integer{Width: 8, Signed: true}
	Int16   = Integer{Width: 16, Signed: true}
	Int32   = Integer{Width: 32, Signed: true}
	Int64   = Integer{Width: 64, Signed: true}
	UInt8   = Integer{Width: 8, Signed: false}
	UInt16  = Integer{Width: 16, Signed: false}
	UInt32  = Integer{Width: 32, Signed: false}
	UInt64  = Integer{Width: 64, Signed: false}
	Float32 = Float{Width: 32}
	Float64 = Float{Width: 64}
)

// Equal reports structural equality of two types.
func Equal(a, b DataType) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Name() == b.Name()
}

// IsNumeric reports whether t participates in numeric widening
// (Integer, Float or Decimal).
func IsNumeric(t DataType) bool {
	switch t.(type) {
	case Integer, Float, Decimal:
		return true
	default:
		return false
	}
}

// IsNested reports whether t is a container type (Array, Map or Struct).
func IsNested(t DataType) bool {
	switch t.(type) {
	case Array, Map, Struct:
		return true
	default:
		return false
	}
}

// IsTemporal reports whether t is a Date, Time or Timestamp.
func IsTemporal(t DataType) bool {
	switch t.(type) {
	case Date, Time, Timestamp:
		return true
	default:
		return false
	}
}

// IsComparable reports whether values of type t support ordering comparisons.
// Nested types compare only for equality and are excluded here.
func IsComparable(t DataType) bool {
	switch t.(type) {
	case Boolean, Integer, Float, Decimal, String, Binary, Date, Time, Timestamp, Interval:
		return true
	default:
		return false
	}
}
