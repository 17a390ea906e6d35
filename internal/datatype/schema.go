package datatype

import (
	"fmt"
	"strings"
)

// Field is one column of a Schema: a name, a type and a nullability flag.
// Nullability lives here rather than on the DataType so the type lattice
// stays independent of where a type is used.
type Field struct {
	Name     string
	Type     DataType
	Nullable bool
}

// Schema is an ordered sequence of uniquely named fields describing the
// shape of a relation. Order is semantically significant: set operations and
// some backends bind columns positionally.
//
// Schemas are constructed once and never mutated. Derived schemas
// (post-projection, post-join) are computed structurally from parents.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from fields, rejecting duplicate names.
// The fields slice is copied; callers may reuse it afterwards.
func NewSchema(fields []Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)
	for i, f := range s.fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema field %d has empty name", i)
		}
		if f.Type == nil {
			return nil, fmt.Errorf("schema field %q has nil type", f.Name)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate schema field name %q", f.Name)
		}
		s.index[f.Name] = i
	}
	return s, nil
}

// MustSchema is NewSchema that panics on error. Intended for fixed schemas
// in tests and examples.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Field returns the field at position i.
func (s *Schema) Field(i int) Field { return s.fields[i] }

// Fields returns a copy of the field list.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Lookup returns the field with the given name, if present.
func (s *Schema) Lookup(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Position returns the ordinal of the named field, or -1.
func (s *Schema) Position(name string) int {
	i, ok := s.index[name]
	if !ok {
		return -1
	}
	return i
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Equal reports whether two schemas have identical names, types and
// nullability in identical order.
func (s *Schema) Equal(other *Schema) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i, f := range s.fields {
		g := other.fields[i]
		if f.Name != g.Name || f.Nullable != g.Nullable || !Equal(f.Type, g.Type) {
			return false
		}
	}
	return true
}

// String renders the schema as "name: type" pairs, with "?" marking
// nullable fields.
func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		null := ""
		if f.Nullable {
			null = "?"
		}
		parts[i] = fmt.Sprintf("%s: %s%s", f.Name, f.Type.Name(), null)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// UnifySchemas computes the result schema of a set operation over two
// inputs. Field counts must match and types must pairwise unify; field
// names need not match, and the output adopts the left-hand names. A field
// is nullable in the output if it is nullable on either side.
func UnifySchemas(left, right *Schema) (*Schema, error) {
	if left.Len() != right.Len() {
		return nil, fmt.Errorf("field count mismatch: %d vs %d", left.Len(), right.Len())
	}
	fields := make([]Field, left.Len())
	for i := range fields {
		lf, rf := left.fields[i], right.fields[i]
		t, err := Unify(lf.Type, rf.Type)
		if err != nil {
			return nil, fmt.Errorf("field %d (%s): %w", i, lf.Name, err)
		}
		fields[i] = Field{Name: lf.Name, Type: t, Nullable: lf.Nullable || rf.Nullable}
	}
	return NewSchema(fields)
}
