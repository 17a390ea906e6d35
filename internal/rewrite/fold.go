package rewrite

import (
	"github.com/quarryql/quarry/internal/ir"
)

// simplifyPredicates constant-folds boolean literals combined with AND, OR
// and NOT inside filter predicates. A predicate that folds to true removes
// the filter entirely. The IR is pure, so folding never changes error
// behavior; it only removes vacuous work before pushdown rules inspect the
// predicate shape.
type simplifyPredicates struct{}

func (r *simplifyPredicates) Name() string { return "simplify-predicates" }

func (r *simplifyPredicates) Apply(rel ir.Relation) (ir.Relation, bool, error) {
	f, ok := rel.(*ir.Filter)
	if !ok {
		return rel, false, nil
	}
	folded, changed, err := foldBool(f.Predicate())
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return rel, false, nil
	}
	if lit, ok := folded.(*ir.Literal); ok {
		if b, ok := lit.Value().(bool); ok && b {
			return f.Input(), true, nil
		}
	}
	next, err := ir.NewFilter(f.Input(), folded)
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// boolLiteral extracts a boolean constant, if v is one.
func boolLiteral(v ir.Value) (bool, bool) {
	lit, ok := v.(*ir.Literal)
	if !ok {
		return false, false
	}
	b, ok := lit.Value().(bool)
	return b, ok
}

// foldBool rewrites v bottom-up applying the boolean identities:
//
//	true AND x = x    false AND x = false
//	true OR  x = true false OR  x = x
//	NOT true = false  NOT false = true
func foldBool(v ir.Value) (ir.Value, bool, error) {
	switch e := v.(type) {
	case *ir.BinaryExpr:
		left, lc, err := foldBool(e.Left())
		if err != nil {
			return nil, false, err
		}
		right, rc, err := foldBool(e.Right())
		if err != nil {
			return nil, false, err
		}
		childChanged := lc || rc

		switch e.Op() {
		case ir.OpAnd:
			if b, ok := boolLiteral(left); ok {
				if b {
					return right, true, nil
				}
				return ir.Bool(false), true, nil
			}
			if b, ok := boolLiteral(right); ok {
				if b {
					return left, true, nil
				}
				return ir.Bool(false), true, nil
			}
		case ir.OpOr:
			if b, ok := boolLiteral(left); ok {
				if b {
					return ir.Bool(true), true, nil
				}
				return right, true, nil
			}
			if b, ok := boolLiteral(right); ok {
				if b {
					return ir.Bool(true), true, nil
				}
				return left, true, nil
			}
		}
		if !childChanged {
			return e, false, nil
		}
		next, err := ir.NewBinary(e.Op(), left, right)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	case *ir.UnaryExpr:
		operand, changed, err := foldBool(e.Operand())
		if err != nil {
			return nil, false, err
		}
		if e.Op() == ir.OpNot {
			if b, ok := boolLiteral(operand); ok {
				return ir.Bool(!b), true, nil
			}
		}
		if !changed {
			return e, false, nil
		}
		next, err := ir.NewUnary(e.Op(), operand)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	default:
		return v, false, nil
	}
}
