package rewrite

import (
	"github.com/quarryql/quarry/internal/ir"
)

// pushdownFilter moves filter predicates closer to their source relations.
// Three shapes are handled:
//
//   - Filter over Projection, when every column the predicate touches is a
//     plain rename in the projection. The predicate is rewritten against the
//     projection's input and the two operators swap places.
//   - Filter over inner Join. Conjuncts that touch only one side are pushed
//     into that side; conjuncts that span both sides stay above the join.
//   - Filter over Aggregation. Conjuncts that touch only group keys are
//     rewritten in terms of the grouping expressions and pushed below;
//     conjuncts that touch a reduction stay above.
//
// Only pure conjuncts move: pushing an impure one changes how many times
// it evaluates.
type pushdownFilter struct{}

func (r *pushdownFilter) Name() string { return "pushdown-filter" }

func (r *pushdownFilter) Apply(rel ir.Relation) (ir.Relation, bool, error) {
	f, ok := rel.(*ir.Filter)
	if !ok {
		return rel, false, nil
	}
	switch in := f.Input().(type) {
	case *ir.Projection:
		return pushThroughProjection(f, in)
	case *ir.Join:
		if in.JoinKind() != ir.JoinInner {
			return rel, false, nil
		}
		return pushThroughJoin(f, in)
	case *ir.Aggregation:
		return pushThroughAggregation(f, in)
	default:
		return rel, false, nil
	}
}

func pushThroughProjection(f *ir.Filter, p *ir.Projection) (ir.Relation, bool, error) {
	for _, c := range ir.ColumnRefs(f.Predicate()) {
		v, ok := p.Expr(c.Name())
		if !ok {
			return f, false, nil
		}
		if _, isRef := v.(*ir.ColumnRef); !isRef {
			return f, false, nil
		}
	}
	pred, err := ir.ReplaceColumns(f.Predicate(), func(c *ir.ColumnRef) (ir.Value, error) {
		v, _ := p.Expr(c.Name())
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	filtered, err := ir.NewFilter(p.Input(), pred)
	if err != nil {
		return nil, false, err
	}
	next, err := ir.NewProjection(filtered, p.Exprs())
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// conjunctSide reports which join side a conjunct's columns all come from.
// ok is false when the conjunct spans both sides or touches no columns.
func conjunctSide(c ir.Value, j *ir.Join) (ir.Relation, bool) {
	var side ir.Relation
	for _, ref := range ir.ColumnRefs(c) {
		origin, _, found := j.Origin(ref.Name())
		if !found {
			return nil, false
		}
		if side == nil {
			side = origin
		} else if side != origin {
			return nil, false
		}
	}
	return side, side != nil
}

// sideConjunct rewrites a single-side conjunct so its columns reference the
// join side directly, undoing any rename the join applied.
func sideConjunct(c ir.Value, j *ir.Join) (ir.Value, error) {
	return ir.ReplaceColumns(c, func(ref *ir.ColumnRef) (ir.Value, error) {
		side, col, _ := j.Origin(ref.Name())
		return ir.Column(side, col)
	})
}

func pushThroughJoin(f *ir.Filter, j *ir.Join) (ir.Relation, bool, error) {
	var leftPush, rightPush, residual []ir.Value
	for _, c := range conjuncts(f.Predicate()) {
		side, ok := conjunctSide(c, j)
		switch {
		// Moving an impure conjunct below the join changes how often it
		// evaluates: per base row instead of per joined row.
		case !ok, !ir.Pure(c):
			residual = append(residual, c)
		case side == j.Left():
			leftPush = append(leftPush, c)
		default:
			rightPush = append(rightPush, c)
		}
	}
	if len(leftPush) == 0 && len(rightPush) == 0 {
		return f, false, nil
	}

	left, right := j.Left(), j.Right()
	for _, c := range leftPush {
		pred, err := sideConjunct(c, j)
		if err != nil {
			return nil, false, err
		}
		left, err = ir.NewFilter(left, pred)
		if err != nil {
			return nil, false, err
		}
	}
	for _, c := range rightPush {
		pred, err := sideConjunct(c, j)
		if err != nil {
			return nil, false, err
		}
		right, err = ir.NewFilter(right, pred)
		if err != nil {
			return nil, false, err
		}
	}
	next, err := ir.NewJoin(j.JoinKind(), left, right, j.On())
	if err != nil {
		return nil, false, err
	}
	if len(residual) == 0 {
		return next, true, nil
	}
	pred, err := conjoin(residual)
	if err != nil {
		return nil, false, err
	}
	pred, err = rebase(pred, next)
	if err != nil {
		return nil, false, err
	}
	top, err := ir.NewFilter(next, pred)
	if err != nil {
		return nil, false, err
	}
	return top, true, nil
}

// pushableBelowKeys reports whether a conjunct may move beneath the
// aggregation: it must be pure, reference at least one column (a
// reference-free conjunct would switch from per-group to per-row
// evaluation), and touch only group keys whose own expressions are pure,
// since substitution duplicates the key expression.
func pushableBelowKeys(c ir.Value, a *ir.Aggregation, keyExprs map[string]ir.Value) bool {
	if !ir.Pure(c) {
		return false
	}
	refs := ir.ColumnRefs(c)
	if len(refs) == 0 {
		return false
	}
	for _, ref := range refs {
		if !a.IsGroupKey(ref.Name()) {
			return false
		}
		if !ir.Pure(keyExprs[ref.Name()]) {
			return false
		}
	}
	return true
}

func pushThroughAggregation(f *ir.Filter, a *ir.Aggregation) (ir.Relation, bool, error) {
	keyExprs := make(map[string]ir.Value)
	for _, nv := range a.GroupBy() {
		keyExprs[nv.Name] = nv.Value
	}

	var below, above []ir.Value
	for _, c := range conjuncts(f.Predicate()) {
		if pushableBelowKeys(c, a, keyExprs) {
			below = append(below, c)
		} else {
			above = append(above, c)
		}
	}
	if len(below) == 0 {
		return f, false, nil
	}

	pred, err := conjoin(below)
	if err != nil {
		return nil, false, err
	}
	pred, err = ir.ReplaceColumns(pred, func(ref *ir.ColumnRef) (ir.Value, error) {
		return keyExprs[ref.Name()], nil
	})
	if err != nil {
		return nil, false, err
	}
	filtered, err := ir.NewFilter(a.Input(), pred)
	if err != nil {
		return nil, false, err
	}
	next, err := ir.NewAggregation(filtered, a.GroupBy(), a.Aggs())
	if err != nil {
		return nil, false, err
	}
	if len(above) == 0 {
		return next, true, nil
	}
	rest, err := conjoin(above)
	if err != nil {
		return nil, false, err
	}
	rest, err = rebase(rest, next)
	if err != nil {
		return nil, false, err
	}
	top, err := ir.NewFilter(next, rest)
	if err != nil {
		return nil, false, err
	}
	return top, true, nil
}
