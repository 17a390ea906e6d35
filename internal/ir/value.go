package ir

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/quarryql/quarry/internal/datatype"
)

// Literal embeds a constant value together with its declared type.
//
// Supported value representations: nil (the NULL literal), bool, int64,
// float64, string and []byte. The constructor rejects a value that does not
// inhabit the declared type, so a Literal can never carry an unchecked type.
type Literal struct {
	fp  string
	val any
	typ datatype.DataType
}

// NewLiteral builds a literal of the given type from v.
func NewLiteral(v any, t datatype.DataType) (*Literal, error) {
	if err := checkLiteral(v, t); err != nil {
		return nil, err
	}
	l := &Literal{val: v, typ: t}
	l.fp = fingerprint(KindLiteral, []string{t.Name(), renderLiteralParam(v)})
	return l, nil
}

func checkLiteral(v any, t datatype.DataType) error {
	if v == nil {
		if _, ok := t.(datatype.Null); ok {
			return nil
		}
		return newTypeError("literal", "nil value requires the null type", t)
	}
	ok := false
	switch v.(type) {
	case bool:
		_, ok = t.(datatype.Boolean)
	case int64:
		switch t.(type) {
		case datatype.Integer, datatype.Decimal:
			ok = true
		}
	case float64:
		switch t.(type) {
		case datatype.Float, datatype.Decimal:
			ok = true
		}
	case string:
		switch t.(type) {
		case datatype.String, datatype.Date, datatype.Time, datatype.Timestamp, datatype.Interval:
			ok = true
		}
	case []byte:
		_, ok = t.(datatype.Binary)
	default:
		return newTypeError("literal", fmt.Sprintf("unsupported literal value %T", v), t)
	}
	if !ok {
		return newTypeError("literal", fmt.Sprintf("value %T does not inhabit the declared type", v), t)
	}
	return nil
}

// renderLiteralParam produces a deterministic textual form of a literal
// value for fingerprinting.
func renderLiteralParam(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return strconv.Quote(val)
	case []byte:
		return "0x" + hex.EncodeToString(val)
	default:
		panic(fmt.Sprintf("unreachable literal value %T", v))
	}
}

func (l *Literal) node()                   {}
func (l *Literal) valueNode()              {}
func (l *Literal) Kind() Kind              { return KindLiteral }
func (l *Literal) Fingerprint() string     { return l.fp }
func (l *Literal) Type() datatype.DataType { return l.typ }
func (l *Literal) Nullable() bool          { return l.val == nil }

// Value returns the embedded Go value.
func (l *Literal) Value() any { return l.val }

// Convenience literal constructors for the common cases. These cannot fail:
// the value always inhabits the paired type.

// Int builds an int64 literal.
func Int(v int64) *Literal {
	l, _ := NewLiteral(v, datatype.Int64)
	return l
}

// Float builds a float64 literal.
func Float(v float64) *Literal {
	l, _ := NewLiteral(v, datatype.Float64)
	return l
}

// Str builds a string literal.
func Str(v string) *Literal {
	l, _ := NewLiteral(v, datatype.String{})
	return l
}

// Bool builds a boolean literal.
func Bool(v bool) *Literal {
	l, _ := NewLiteral(v, datatype.Boolean{})
	return l
}

// NullLiteral builds the untyped NULL literal.
func NullLiteral() *Literal {
	l, _ := NewLiteral(nil, datatype.Null{})
	return l
}

// ColumnRef references a named column of a relation. Its type and
// nullability come from the schema lookup performed at construction, so a
// reference to a name absent from the relation's schema can never exist.
type ColumnRef struct {
	fp       string
	rel      Relation
	name     string
	typ      datatype.DataType
	nullable bool
}

// Column resolves name against the schema of rel. An unresolved name fails
// with UnboundColumnError listing the columns that were available.
func Column(rel Relation, name string) (*ColumnRef, error) {
	f, ok := rel.Schema().Lookup(name)
	if !ok {
		return nil, newUnboundColumnError(name, rel.Schema().Names())
	}
	c := &ColumnRef{rel: rel, name: name, typ: f.Type, nullable: f.Nullable}
	c.fp = fingerprint(KindColumnRef, []string{canonicalName(name)}, rel)
	return c, nil
}

func (c *ColumnRef) node()                   {}
func (c *ColumnRef) valueNode()              {}
func (c *ColumnRef) Kind() Kind              { return KindColumnRef }
func (c *ColumnRef) Fingerprint() string     { return c.fp }
func (c *ColumnRef) Type() datatype.DataType { return c.typ }
func (c *ColumnRef) Nullable() bool          { return c.nullable }

// Name returns the referenced column name.
func (c *ColumnRef) Name() string { return c.name }

// Rel returns the relation that owns the referenced column.
func (c *ColumnRef) Rel() Relation { return c.rel }

// UnaryExpr applies a registered one-operand operation.
type UnaryExpr struct {
	fp       string
	op       UnaryOp
	operand  Value
	typ      datatype.DataType
	nullable bool
}

// NewUnary builds a unary expression, failing with TypeError when the
// operand type does not satisfy the operation's inference rule.
func NewUnary(op UnaryOp, operand Value) (*UnaryExpr, error) {
	spec, ok := unaryOps[op]
	if !ok {
		return nil, &TypeError{Op: string(op), Message: "unknown unary operation"}
	}
	typ, err := spec.infer(operand.Type())
	if err != nil {
		return nil, err
	}
	nullable := operand.Nullable()
	if op == OpIsNull {
		nullable = false
	}
	e := &UnaryExpr{op: op, operand: operand, typ: typ, nullable: nullable}
	e.fp = fingerprint(KindUnary, []string{string(op)}, operand)
	return e, nil
}

func (e *UnaryExpr) node()                   {}
func (e *UnaryExpr) valueNode()              {}
func (e *UnaryExpr) Kind() Kind              { return KindUnary }
func (e *UnaryExpr) Fingerprint() string     { return e.fp }
func (e *UnaryExpr) Type() datatype.DataType { return e.typ }
func (e *UnaryExpr) Nullable() bool          { return e.nullable }

// Op returns the operation tag.
func (e *UnaryExpr) Op() UnaryOp { return e.op }

// Operand returns the single operand.
func (e *UnaryExpr) Operand() Value { return e.operand }

// BinaryExpr applies a registered two-operand operation.
type BinaryExpr struct {
	fp          string
	op          BinaryOp
	left, right Value
	typ         datatype.DataType
	nullable    bool
}

// NewBinary builds a binary expression, failing with TypeError when the
// operand types do not satisfy the operation's inference rule. The error
// names both operand types.
func NewBinary(op BinaryOp, left, right Value) (*BinaryExpr, error) {
	spec, ok := binaryOps[op]
	if !ok {
		return nil, &TypeError{Op: string(op), Message: "unknown binary operation"}
	}
	typ, err := spec.infer(left.Type(), right.Type())
	if err != nil {
		return nil, err
	}
	e := &BinaryExpr{
		op:       op,
		left:     left,
		right:    right,
		typ:      typ,
		nullable: left.Nullable() || right.Nullable(),
	}
	e.fp = fingerprint(KindBinary, []string{string(op)}, left, right)
	return e, nil
}

func (e *BinaryExpr) node()                   {}
func (e *BinaryExpr) valueNode()              {}
func (e *BinaryExpr) Kind() Kind              { return KindBinary }
func (e *BinaryExpr) Fingerprint() string     { return e.fp }
func (e *BinaryExpr) Type() datatype.DataType { return e.typ }
func (e *BinaryExpr) Nullable() bool          { return e.nullable }

// Op returns the operation tag.
func (e *BinaryExpr) Op() BinaryOp { return e.op }

// Left returns the left operand.
func (e *BinaryExpr) Left() Value { return e.left }

// Right returns the right operand.
func (e *BinaryExpr) Right() Value { return e.right }

// AggCall is a reduction over the rows of a group. It may only appear as the
// top level of an Aggregation's reduction list; projection and predicate
// construction reject it everywhere else.
type AggCall struct {
	fp       string
	fn       AggFunc
	arg      Value // nil for zero-argument count
	typ      datatype.DataType
	nullable bool
}

// NewAgg builds a reduction. arg may be nil only for AggCount.
func NewAgg(fn AggFunc, arg Value) (*AggCall, error) {
	if arg == nil && fn != AggCount {
		return nil, &TypeError{Op: string(fn), Message: "argument required"}
	}
	var argType datatype.DataType
	if arg != nil {
		argType = arg.Type()
	}
	typ, nullable, err := inferAgg(fn, argType)
	if err != nil {
		return nil, err
	}
	a := &AggCall{fn: fn, arg: arg, typ: typ, nullable: nullable}
	if arg != nil {
		a.fp = fingerprint(KindAggCall, []string{string(fn)}, arg)
	} else {
		a.fp = fingerprint(KindAggCall, []string{string(fn)})
	}
	return a, nil
}

func (a *AggCall) node()                   {}
func (a *AggCall) valueNode()              {}
func (a *AggCall) Kind() Kind              { return KindAggCall }
func (a *AggCall) Fingerprint() string     { return a.fp }
func (a *AggCall) Type() datatype.DataType { return a.typ }
func (a *AggCall) Nullable() bool          { return a.nullable }

// Func returns the reduction tag.
func (a *AggCall) Func() AggFunc { return a.fn }

// Arg returns the reduction argument, nil for a zero-argument count.
func (a *AggCall) Arg() Value { return a.arg }

// WindowExpr evaluates a window function over a partitioned, ordered frame.
// Window functions exist only inside a WindowExpr; constructing one is the
// windowed context the function requires.
type WindowExpr struct {
	fp          string
	fn          WindowFunc
	arg         Value // nil for ranking functions and count()
	partitionBy []Value
	orderBy     []SortKey
	typ         datatype.DataType
	nullable    bool
}

// NewWindow builds a window expression. Ranking functions require at least
// one ordering key, since their result is undefined on an unordered frame.
func NewWindow(fn WindowFunc, arg Value, partitionBy []Value, orderBy []SortKey) (*WindowExpr, error) {
	var argType datatype.DataType
	if arg != nil {
		argType = arg.Type()
	}
	typ, nullable, err := inferWindowFunc(fn, argType)
	if err != nil {
		return nil, err
	}
	switch fn {
	case WinRowNumber, WinRank, WinDenseRank, WinLag, WinLead:
		if len(orderBy) == 0 {
			return nil, &TypeError{Op: string(fn), Message: "window function requires an ordered frame"}
		}
	}
	w := &WindowExpr{
		fn:          fn,
		arg:         arg,
		partitionBy: append([]Value(nil), partitionBy...),
		orderBy:     append([]SortKey(nil), orderBy...),
		typ:         typ,
		nullable:    nullable,
	}
	params := []string{string(fn)}
	var children []Node
	if arg != nil {
		children = append(children, arg)
	}
	for _, p := range w.partitionBy {
		children = append(children, p)
	}
	for _, k := range w.orderBy {
		params = append(params, strconv.FormatBool(k.Desc))
		children = append(children, k.Expr)
	}
	w.fp = fingerprint(KindWindow, params, children...)
	return w, nil
}

func (w *WindowExpr) node()                   {}
func (w *WindowExpr) valueNode()              {}
func (w *WindowExpr) Kind() Kind              { return KindWindow }
func (w *WindowExpr) Fingerprint() string     { return w.fp }
func (w *WindowExpr) Type() datatype.DataType { return w.typ }
func (w *WindowExpr) Nullable() bool          { return w.nullable }

// Func returns the window function tag.
func (w *WindowExpr) Func() WindowFunc { return w.fn }

// Arg returns the function argument, nil for ranking functions.
func (w *WindowExpr) Arg() Value { return w.arg }

// PartitionBy returns the partitioning expressions.
func (w *WindowExpr) PartitionBy() []Value { return append([]Value(nil), w.partitionBy...) }

// OrderBy returns the frame ordering keys.
func (w *WindowExpr) OrderBy() []SortKey { return append([]SortKey(nil), w.orderBy...) }
