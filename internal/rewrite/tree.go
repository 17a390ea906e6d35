package rewrite

import (
	"fmt"

	"github.com/quarryql/quarry/internal/ir"
)

// accessible returns the fingerprints of every relation whose columns are
// addressable from rel: rel itself plus everything beneath it through
// schema-preserving nodes (filter, sort, limit).
func accessible(rel ir.Relation) map[string]bool {
	set := make(map[string]bool)
	for r := rel; r != nil; {
		set[r.Fingerprint()] = true
		switch t := r.(type) {
		case *ir.Filter:
			r = t.Input()
		case *ir.Sort:
			r = t.Input()
		case *ir.Limit:
			r = t.Input()
		default:
			r = nil
		}
	}
	return set
}

// rebase rewrites the column references of v so they remain valid when a
// node's input changes from oldIn to newIn. References still addressable
// from newIn are kept; the rest re-resolve by name against newIn, going
// back through the validating constructor.
func rebase(v ir.Value, newIn ir.Relation) (ir.Value, error) {
	ok := accessible(newIn)
	return ir.ReplaceColumns(v, func(c *ir.ColumnRef) (ir.Value, error) {
		if ok[c.Rel().Fingerprint()] {
			return nil, nil
		}
		return ir.Column(newIn, c.Name())
	})
}

func rebaseNamed(exprs []ir.NamedValue, newIn ir.Relation) ([]ir.NamedValue, error) {
	out := make([]ir.NamedValue, len(exprs))
	for i, nv := range exprs {
		v, err := rebase(nv.Value, newIn)
		if err != nil {
			return nil, err
		}
		out[i] = ir.NamedValue{Name: nv.Name, Value: v}
	}
	return out, nil
}

func rebaseKeys(keys []ir.SortKey, newIn ir.Relation) ([]ir.SortKey, error) {
	out := make([]ir.SortKey, len(keys))
	for i, k := range keys {
		v, err := rebase(k.Expr, newIn)
		if err != nil {
			return nil, err
		}
		out[i] = ir.SortKey{Expr: v, Desc: k.Desc}
	}
	return out, nil
}

// replaceInputs rebuilds rel over new inputs, rebasing its embedded
// expressions. Inputs must be given in RelationInputs order.
func replaceInputs(rel ir.Relation, inputs []ir.Relation) (ir.Relation, error) {
	old := ir.RelationInputs(rel)
	same := len(old) == len(inputs)
	for i := range old {
		if !same || !ir.Equal(old[i], inputs[i]) {
			same = false
			break
		}
	}
	if same {
		return rel, nil
	}

	switch t := rel.(type) {
	case *ir.Projection:
		exprs, err := rebaseNamed(t.Exprs(), inputs[0])
		if err != nil {
			return nil, err
		}
		return ir.NewProjection(inputs[0], exprs)
	case *ir.Filter:
		pred, err := rebase(t.Predicate(), inputs[0])
		if err != nil {
			return nil, err
		}
		return ir.NewFilter(inputs[0], pred)
	case *ir.Aggregation:
		groupBy, err := rebaseNamed(t.GroupBy(), inputs[0])
		if err != nil {
			return nil, err
		}
		aggs, err := rebaseNamed(t.Aggs(), inputs[0])
		if err != nil {
			return nil, err
		}
		return ir.NewAggregation(inputs[0], groupBy, aggs)
	case *ir.Join:
		on := t.On()
		if on != nil {
			// Which side a predicate reference belongs to was fixed at
			// construction. A stale reference re-resolves against the
			// replacement of the side that used to own it; resolving by
			// name could land a shared name on the wrong side.
			newLeftOK := accessible(inputs[0])
			newRightOK := accessible(inputs[1])
			oldLeftOK := accessible(t.Left())
			var err error
			on, err = ir.ReplaceColumns(on, func(c *ir.ColumnRef) (ir.Value, error) {
				fp := c.Rel().Fingerprint()
				if newLeftOK[fp] || newRightOK[fp] {
					return nil, nil
				}
				if oldLeftOK[fp] {
					return ir.Column(inputs[0], c.Name())
				}
				return ir.Column(inputs[1], c.Name())
			})
			if err != nil {
				return nil, err
			}
		}
		return ir.NewJoin(t.JoinKind(), inputs[0], inputs[1], on)
	case *ir.SetOp:
		return ir.NewSetOp(t.SetKind(), inputs[0], inputs[1], t.All())
	case *ir.Sort:
		keys, err := rebaseKeys(t.Keys(), inputs[0])
		if err != nil {
			return nil, err
		}
		return ir.NewSort(inputs[0], keys)
	case *ir.Limit:
		return ir.NewLimit(inputs[0], t.Count(), t.Offset())
	case *ir.Table:
		return rel, nil
	default:
		return nil, fmt.Errorf("unknown relation kind %s", rel.Kind())
	}
}

// conjuncts splits a predicate on its top-level AND boundaries. Disjunctive
// predicates come back whole: splitting an OR would change selectivity.
func conjuncts(v ir.Value) []ir.Value {
	if b, ok := v.(*ir.BinaryExpr); ok && b.Op() == ir.OpAnd {
		return append(conjuncts(b.Left()), conjuncts(b.Right())...)
	}
	return []ir.Value{v}
}

// conjoin folds predicates back into a left-deep AND chain.
func conjoin(vs []ir.Value) (ir.Value, error) {
	if len(vs) == 0 {
		return nil, nil
	}
	acc := vs[0]
	for _, v := range vs[1:] {
		next, err := ir.NewBinary(ir.OpAnd, acc, v)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}
