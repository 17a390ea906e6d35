package datatype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName_Canonical(t *testing.T) {
	cases := []struct {
		typ  DataType
		want string
	}{
		{Null{}, "null"},
		{Boolean{}, "boolean"},
		{Int64, "int64"},
		{UInt16, "uint16"},
		{Float32, "float32"},
		{Decimal{Precision: 38, Scale: 9}, "decimal(38,9)"},
		{String{}, "string"},
		{Binary{}, "binary"},
		{Date{}, "date"},
		{Time{}, "time"},
		{Timestamp{Unit: UnitMicro}, "timestamp(us)"},
		{Timestamp{Unit: UnitNano, TimeZone: "UTC"}, `timestamp(ns,"UTC")`},
		{Interval{}, "interval"},
		{Array{Elem: String{}}, "array<string>"},
		{Map{Key: String{}, Value: Int64}, "map<string,int64>"},
		{Struct{Fields: []StructField{{"a", Int64}, {"b", String{}}}}, "struct<a: int64, b: string>"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.typ.Name())
	}
}

func TestEqual_Structural(t *testing.T) {
	// Independently constructed types compare equal.
	a := Array{Elem: Struct{Fields: []StructField{{"x", Int32}}}}
	b := Array{Elem: Struct{Fields: []StructField{{"x", Integer{Width: 32, Signed: true}}}}}
	assert.True(t, Equal(a, b))

	assert.False(t, Equal(Int64, UInt64))
	assert.False(t, Equal(Array{Elem: Int64}, Array{Elem: Int32}))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(Int64, nil))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNumeric(Int8))
	assert.True(t, IsNumeric(Decimal{Precision: 10, Scale: 2}))
	assert.False(t, IsNumeric(String{}))

	assert.True(t, IsNested(Map{Key: String{}, Value: Int64}))
	assert.False(t, IsNested(Binary{}))

	assert.True(t, IsTemporal(Timestamp{Unit: UnitSecond}))
	assert.False(t, IsTemporal(Interval{}))

	assert.True(t, IsComparable(String{}))
	assert.False(t, IsComparable(Struct{}))
}

func TestSchema_OrderAndLookup(t *testing.T) {
	s, err := NewSchema([]Field{
		{Name: "id", Type: Int64},
		{Name: "name", Type: String{}, Nullable: true},
		{Name: "amount", Type: Decimal{Precision: 18, Scale: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"id", "name", "amount"}, s.Names())
	assert.Equal(t, 1, s.Position("name"))
	assert.Equal(t, -1, s.Position("missing"))

	f, ok := s.Lookup("amount")
	require.True(t, ok)
	assert.True(t, Equal(f.Type, Decimal{Precision: 18, Scale: 2}))

	_, ok = s.Lookup("missing")
	assert.False(t, ok)
}

func TestSchema_RejectsDuplicates(t *testing.T) {
	_, err := NewSchema([]Field{
		{Name: "id", Type: Int64},
		{Name: "id", Type: String{}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"id"`)
}

func TestSchema_Equal(t *testing.T) {
	a := MustSchema(Field{Name: "id", Type: Int64}, Field{Name: "v", Type: String{}, Nullable: true})
	b := MustSchema(Field{Name: "id", Type: Int64}, Field{Name: "v", Type: String{}, Nullable: true})
	c := MustSchema(Field{Name: "v", Type: String{}, Nullable: true}, Field{Name: "id", Type: Int64})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c), "field order is significant")
}

func TestSchema_StringRendering(t *testing.T) {
	s := MustSchema(Field{Name: "id", Type: Int64}, Field{Name: "name", Type: String{}, Nullable: true})
	assert.Equal(t, "{id: int64, name: string?}", s.String())
}
