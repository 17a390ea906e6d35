package ir

import (
	"github.com/quarryql/quarry/internal/datatype"
)

// The operation registry is closed: every operation is declared once here
// with its type-inference rule, and constructors consult the registry rather
// than open-coding per-operation checks. Adding an operation means adding a
// registry entry, not mutating existing node types.

// BinaryOp identifies a two-operand scalar operation.
type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpMod BinaryOp = "%"

	OpEq BinaryOp = "="
	OpNe BinaryOp = "!="
	OpLt BinaryOp = "<"
	OpLe BinaryOp = "<="
	OpGt BinaryOp = ">"
	OpGe BinaryOp = ">="

	OpAnd BinaryOp = "and"
	OpOr  BinaryOp = "or"

	OpConcat BinaryOp = "||"
)

// UnaryOp identifies a one-operand scalar operation.
type UnaryOp string

const (
	OpNot    UnaryOp = "not"
	OpNeg    UnaryOp = "neg"
	OpAbs    UnaryOp = "abs"
	OpIsNull UnaryOp = "isnull"

	// OpRandom generates a pseudo-random float from an integer seed value.
	// It is the one impure operation in the registry: rewrites must never
	// duplicate it, since duplication would change observable output.
	OpRandom UnaryOp = "random"
)

// AggFunc identifies a reduction applied by an Aggregation.
type AggFunc string

const (
	AggSum   AggFunc = "sum"
	AggCount AggFunc = "count"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
	AggAvg   AggFunc = "avg"
)

// WindowFunc identifies a function evaluated over a window frame.
type WindowFunc string

const (
	WinRowNumber WindowFunc = "row_number"
	WinRank      WindowFunc = "rank"
	WinDenseRank WindowFunc = "dense_rank"
	WinLag       WindowFunc = "lag"
	WinLead      WindowFunc = "lead"
	WinSum       WindowFunc = "sum"
	WinMin       WindowFunc = "min"
	WinMax       WindowFunc = "max"
	WinCount     WindowFunc = "count"
	WinAvg       WindowFunc = "avg"
)

type binarySpec struct {
	infer func(l, r datatype.DataType) (datatype.DataType, error)
}

type unarySpec struct {
	infer func(t datatype.DataType) (datatype.DataType, error)
	pure  bool
}

var binaryOps = map[BinaryOp]binarySpec{
	OpAdd: {infer: inferAdditive(OpAdd)},
	OpSub: {infer: inferAdditive(OpSub)},
	OpMul: {infer: inferArithmetic(OpMul)},
	OpDiv: {infer: inferDivision},
	OpMod: {infer: inferModulo},

	OpEq: {infer: inferEquality(OpEq)},
	OpNe: {infer: inferEquality(OpNe)},
	OpLt: {infer: inferOrdering(OpLt)},
	OpLe: {infer: inferOrdering(OpLe)},
	OpGt: {infer: inferOrdering(OpGt)},
	OpGe: {infer: inferOrdering(OpGe)},

	OpAnd: {infer: inferLogical(OpAnd)},
	OpOr:  {infer: inferLogical(OpOr)},

	OpConcat: {infer: inferConcat},
}

var unaryOps = map[UnaryOp]unarySpec{
	OpNot: {pure: true, infer: func(t datatype.DataType) (datatype.DataType, error) {
		if _, ok := t.(datatype.Boolean); !ok {
			return nil, newTypeError(string(OpNot), "operand must be boolean", t)
		}
		return datatype.Boolean{}, nil
	}},
	OpNeg: {pure: true, infer: func(t datatype.DataType) (datatype.DataType, error) {
		if !datatype.IsNumeric(t) {
			return nil, newTypeError(string(OpNeg), "operand must be numeric", t)
		}
		return t, nil
	}},
	OpAbs: {pure: true, infer: func(t datatype.DataType) (datatype.DataType, error) {
		if !datatype.IsNumeric(t) {
			return nil, newTypeError(string(OpAbs), "operand must be numeric", t)
		}
		return t, nil
	}},
	OpIsNull: {pure: true, infer: func(t datatype.DataType) (datatype.DataType, error) {
		return datatype.Boolean{}, nil
	}},
	OpRandom: {pure: false, infer: func(t datatype.DataType) (datatype.DataType, error) {
		if _, ok := t.(datatype.Integer); !ok {
			return nil, newTypeError(string(OpRandom), "seed must be an integer", t)
		}
		return datatype.Float64, nil
	}},
}

func inferAdditive(op BinaryOp) func(l, r datatype.DataType) (datatype.DataType, error) {
	return func(l, r datatype.DataType) (datatype.DataType, error) {
		if datatype.IsNumeric(l) && datatype.IsNumeric(r) {
			t, err := datatype.Unify(l, r)
			if err != nil {
				return nil, newTypeError(string(op), err.Error(), l, r)
			}
			return t, nil
		}
		// Temporal arithmetic: shifting a date/timestamp by an interval, and
		// timestamp difference for subtraction.
		if datatype.IsTemporal(l) {
			if _, ok := r.(datatype.Interval); ok {
				return l, nil
			}
			if op == OpSub && datatype.Equal(l, r) {
				return datatype.Interval{}, nil
			}
		}
		return nil, newTypeError(string(op), "operands do not support arithmetic", l, r)
	}
}

func inferArithmetic(op BinaryOp) func(l, r datatype.DataType) (datatype.DataType, error) {
	return func(l, r datatype.DataType) (datatype.DataType, error) {
		if !datatype.IsNumeric(l) || !datatype.IsNumeric(r) {
			return nil, newTypeError(string(op), "operands must be numeric", l, r)
		}
		t, err := datatype.Unify(l, r)
		if err != nil {
			return nil, newTypeError(string(op), err.Error(), l, r)
		}
		return t, nil
	}
}

// Division is true division: integer operands produce a float result.
func inferDivision(l, r datatype.DataType) (datatype.DataType, error) {
	t, err := inferArithmetic(OpDiv)(l, r)
	if err != nil {
		return nil, err
	}
	if _, ok := t.(datatype.Integer); ok {
		return datatype.Float64, nil
	}
	return t, nil
}

func inferModulo(l, r datatype.DataType) (datatype.DataType, error) {
	li, lok := l.(datatype.Integer)
	ri, rok := r.(datatype.Integer)
	if !lok || !rok {
		return nil, newTypeError(string(OpMod), "operands must be integers", l, r)
	}
	t, err := datatype.Unify(li, ri)
	if err != nil {
		return nil, newTypeError(string(OpMod), err.Error(), l, r)
	}
	return t, nil
}

// Equality accepts any unifiable pair, nested types included.
func inferEquality(op BinaryOp) func(l, r datatype.DataType) (datatype.DataType, error) {
	return func(l, r datatype.DataType) (datatype.DataType, error) {
		if _, err := datatype.Unify(l, r); err != nil {
			return nil, newTypeError(string(op), err.Error(), l, r)
		}
		return datatype.Boolean{}, nil
	}
}

// Ordering additionally requires the unified type to support comparison;
// nested types are rejected.
func inferOrdering(op BinaryOp) func(l, r datatype.DataType) (datatype.DataType, error) {
	return func(l, r datatype.DataType) (datatype.DataType, error) {
		t, err := datatype.Unify(l, r)
		if err != nil {
			return nil, newTypeError(string(op), err.Error(), l, r)
		}
		if !datatype.IsComparable(t) {
			return nil, newTypeError(string(op), "operands are not orderable", l, r)
		}
		return datatype.Boolean{}, nil
	}
}

func inferLogical(op BinaryOp) func(l, r datatype.DataType) (datatype.DataType, error) {
	return func(l, r datatype.DataType) (datatype.DataType, error) {
		_, lok := l.(datatype.Boolean)
		_, rok := r.(datatype.Boolean)
		if !lok || !rok {
			return nil, newTypeError(string(op), "operands must be boolean", l, r)
		}
		return datatype.Boolean{}, nil
	}
}

func inferConcat(l, r datatype.DataType) (datatype.DataType, error) {
	if _, ok := l.(datatype.String); ok {
		if _, ok := r.(datatype.String); ok {
			return datatype.String{}, nil
		}
	}
	if _, ok := l.(datatype.Binary); ok {
		if _, ok := r.(datatype.Binary); ok {
			return datatype.Binary{}, nil
		}
	}
	return nil, newTypeError(string(OpConcat), "operands must both be string or both binary", l, r)
}

// inferAgg returns the result type and nullability of a reduction. A nil
// argument type means a zero-argument count.
func inferAgg(fn AggFunc, arg datatype.DataType) (datatype.DataType, bool, error) {
	switch fn {
	case AggCount:
		return datatype.Int64, false, nil
	case AggSum:
		switch t := arg.(type) {
		case datatype.Integer:
			return datatype.Int64, true, nil
		case datatype.Float:
			return datatype.Float64, true, nil
		case datatype.Decimal:
			return datatype.Decimal{Precision: 38, Scale: t.Scale}, true, nil
		}
		return nil, false, newTypeError(string(fn), "argument must be numeric", arg)
	case AggAvg:
		switch t := arg.(type) {
		case datatype.Integer, datatype.Float:
			return datatype.Float64, true, nil
		case datatype.Decimal:
			return t, true, nil
		}
		return nil, false, newTypeError(string(fn), "argument must be numeric", arg)
	case AggMin, AggMax:
		if !datatype.IsComparable(arg) {
			return nil, false, newTypeError(string(fn), "argument is not orderable", arg)
		}
		return arg, true, nil
	default:
		return nil, false, &TypeError{Op: string(fn), Message: "unknown aggregate function"}
	}
}

// inferWindowFunc returns the result type and nullability of a window
// function. Ranking functions take no argument; lag/lead and the
// aggregate-shaped functions require one.
func inferWindowFunc(fn WindowFunc, arg datatype.DataType) (datatype.DataType, bool, error) {
	switch fn {
	case WinRowNumber, WinRank, WinDenseRank:
		if arg != nil {
			return nil, false, newTypeError(string(fn), "ranking functions take no argument", arg)
		}
		return datatype.Int64, false, nil
	case WinLag, WinLead:
		if arg == nil {
			return nil, false, &TypeError{Op: string(fn), Message: "argument required"}
		}
		// The frame edge has no preceding/following row, so the result is
		// always nullable.
		return arg, true, nil
	case WinSum, WinMin, WinMax, WinCount, WinAvg:
		if fn != WinCount && arg == nil {
			return nil, false, &TypeError{Op: string(fn), Message: "argument required"}
		}
		return inferAgg(AggFunc(fn), arg)
	default:
		return nil, false, &TypeError{Op: string(fn), Message: "unknown window function"}
	}
}
