package ir

// ValueChildren returns the direct value operands of v in a fixed order.
// Leaves (literals, column references) have none.
func ValueChildren(v Value) []Value {
	switch e := v.(type) {
	case *Literal, *ColumnRef:
		return nil
	case *UnaryExpr:
		return []Value{e.operand}
	case *BinaryExpr:
		return []Value{e.left, e.right}
	case *AggCall:
		if e.arg == nil {
			return nil
		}
		return []Value{e.arg}
	case *WindowExpr:
		var out []Value
		if e.arg != nil {
			out = append(out, e.arg)
		}
		out = append(out, e.partitionBy...)
		for _, k := range e.orderBy {
			out = append(out, k.Expr)
		}
		return out
	default:
		return nil
	}
}

// WalkValues visits v and every value beneath it in pre-order. Returning
// false from fn stops the walk.
func WalkValues(v Value, fn func(Value) bool) bool {
	if !fn(v) {
		return false
	}
	for _, c := range ValueChildren(v) {
		if !WalkValues(c, fn) {
			return false
		}
	}
	return true
}

// ColumnRefs collects every column reference beneath v, in visit order.
func ColumnRefs(v Value) []*ColumnRef {
	var refs []*ColumnRef
	WalkValues(v, func(n Value) bool {
		if c, ok := n.(*ColumnRef); ok {
			refs = append(refs, c)
		}
		return true
	})
	return refs
}

// ContainsAgg reports whether v contains a reduction anywhere beneath it.
func ContainsAgg(v Value) bool {
	found := false
	WalkValues(v, func(n Value) bool {
		if n.Kind() == KindAggCall {
			found = true
			return false
		}
		return true
	})
	return found
}

// ContainsWindow reports whether v contains a window expression.
func ContainsWindow(v Value) bool {
	found := false
	WalkValues(v, func(n Value) bool {
		if n.Kind() == KindWindow {
			found = true
			return false
		}
		return true
	})
	return found
}

// Pure reports whether every operation beneath v is deterministic. Rewrites
// consult this before any transformation that would duplicate v.
func Pure(v Value) bool {
	pure := true
	WalkValues(v, func(n Value) bool {
		if u, ok := n.(*UnaryExpr); ok && !unaryOps[u.op].pure {
			pure = false
			return false
		}
		return true
	})
	return pure
}

// ReplaceColumns rebuilds v bottom-up, substituting each column reference
// for which repl returns a non-nil value. The rebuilt tree goes back through
// the validating constructors, so an ill-typed substitution fails rather
// than producing an invalid node. Untouched subtrees are reused as-is.
func ReplaceColumns(v Value, repl func(*ColumnRef) (Value, error)) (Value, error) {
	switch e := v.(type) {
	case *Literal:
		return e, nil
	case *ColumnRef:
		sub, err := repl(e)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return e, nil
		}
		return sub, nil
	case *UnaryExpr:
		operand, err := ReplaceColumns(e.operand, repl)
		if err != nil {
			return nil, err
		}
		if operand == e.operand {
			return e, nil
		}
		return NewUnary(e.op, operand)
	case *BinaryExpr:
		left, err := ReplaceColumns(e.left, repl)
		if err != nil {
			return nil, err
		}
		right, err := ReplaceColumns(e.right, repl)
		if err != nil {
			return nil, err
		}
		if left == e.left && right == e.right {
			return e, nil
		}
		return NewBinary(e.op, left, right)
	case *AggCall:
		if e.arg == nil {
			return e, nil
		}
		arg, err := ReplaceColumns(e.arg, repl)
		if err != nil {
			return nil, err
		}
		if arg == e.arg {
			return e, nil
		}
		return NewAgg(e.fn, arg)
	case *WindowExpr:
		changed := false
		var arg Value
		var err error
		if e.arg != nil {
			arg, err = ReplaceColumns(e.arg, repl)
			if err != nil {
				return nil, err
			}
			changed = changed || arg != e.arg
		}
		parts := make([]Value, len(e.partitionBy))
		for i, p := range e.partitionBy {
			parts[i], err = ReplaceColumns(p, repl)
			if err != nil {
				return nil, err
			}
			changed = changed || parts[i] != p
		}
		keys := make([]SortKey, len(e.orderBy))
		for i, k := range e.orderBy {
			expr, err := ReplaceColumns(k.Expr, repl)
			if err != nil {
				return nil, err
			}
			keys[i] = SortKey{Expr: expr, Desc: k.Desc}
			changed = changed || expr != k.Expr
		}
		if !changed {
			return e, nil
		}
		return NewWindow(e.fn, arg, parts, keys)
	default:
		return v, nil
	}
}
