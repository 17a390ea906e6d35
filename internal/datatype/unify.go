package datatype

import "fmt"

// Numeric widening precedence: Integer < Float < Decimal. Unifying two
// numeric types yields the higher-precedence side, with widths and
// precision widened as needed.
func numericRank(t DataType) int {
	switch t.(type) {
	case Integer:
		return 1
	case Float:
		return 2
	case Decimal:
		return 3
	default:
		return 0
	}
}

// Unify computes the least-upper-bound type of a and b, used by set
// operations, coalescing and conditional branches.
//
// Rules:
//   - equal types unify to themselves
//   - Null unifies with anything, yielding the other side
//   - numerics widen by precedence (Integer → Float → Decimal); within a
//     rank, widths/precision widen to cover both sides
//   - String and Binary never unify with numeric types, nor with each other
//   - Timestamps unify to the finer unit; mismatched timezones fail
//   - nested types unify element-wise and fail on structural mismatch
//
// Failure returns an error naming both operand types; callers wrap it into
// the construction-time error for the operation at hand.
func Unify(a, b DataType) (DataType, error) {
	if Equal(a, b) {
		return a, nil
	}
	if _, ok := a.(Null); ok {
		return b, nil
	}
	if _, ok := b.(Null); ok {
		return a, nil
	}

	if IsNumeric(a) && IsNumeric(b) {
		return unifyNumeric(a, b), nil
	}

	switch at := a.(type) {
	case Timestamp:
		bt, ok := b.(Timestamp)
		if !ok {
			break
		}
		if at.TimeZone != bt.TimeZone {
			return nil, fmt.Errorf("cannot unify %s with %s: timezone mismatch", a.Name(), b.Name())
		}
		if bt.Unit.finer(at.Unit) {
			return bt, nil
		}
		return at, nil
	case Array:
		bt, ok := b.(Array)
		if !ok {
			break
		}
		elem, err := Unify(at.Elem, bt.Elem)
		if err != nil {
			return nil, fmt.Errorf("array element: %w", err)
		}
		return Array{Elem: elem}, nil
	case Map:
		bt, ok := b.(Map)
		if !ok {
			break
		}
		key, err := Unify(at.Key, bt.Key)
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		val, err := Unify(at.Value, bt.Value)
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		return Map{Key: key, Value: val}, nil
	case Struct:
		bt, ok := b.(Struct)
		if !ok {
			break
		}
		if len(at.Fields) != len(bt.Fields) {
			return nil, fmt.Errorf("cannot unify %s with %s: field count mismatch", a.Name(), b.Name())
		}
		fields := make([]StructField, len(at.Fields))
		for i := range at.Fields {
			if at.Fields[i].Name != bt.Fields[i].Name {
				return nil, fmt.Errorf("cannot unify %s with %s: field %d name mismatch", a.Name(), b.Name(), i)
			}
			ft, err := Unify(at.Fields[i].Type, bt.Fields[i].Type)
			if err != nil {
				return nil, fmt.Errorf("struct field %q: %w", at.Fields[i].Name, err)
			}
			fields[i] = StructField{Name: at.Fields[i].Name, Type: ft}
		}
		return Struct{Fields: fields}, nil
	}

	return nil, fmt.Errorf("cannot unify %s with %s", a.Name(), b.Name())
}

// unifyNumeric widens two numeric types. Both arguments must satisfy
// IsNumeric.
func unifyNumeric(a, b DataType) DataType {
	// Order so that a has the lower (or equal) precedence.
	if numericRank(a) > numericRank(b) {
		a, b = b, a
	}
	switch bt := b.(type) {
	case Decimal:
		if at, ok := a.(Decimal); ok {
			return Decimal{Precision: maxInt(at.Precision, bt.Precision), Scale: maxInt(at.Scale, bt.Scale)}
		}
		return bt
	case Float:
		if at, ok := a.(Float); ok {
			return Float{Width: maxInt(at.Width, bt.Width)}
		}
		return bt
	case Integer:
		at := a.(Integer)
		// Mixing signedness promotes to the signed type wide enough for both.
		if at.Signed != bt.Signed {
			return Integer{Width: minInt(maxInt(at.Width, bt.Width)*2, 64), Signed: true}
		}
		return Integer{Width: maxInt(at.Width, bt.Width), Signed: at.Signed}
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
