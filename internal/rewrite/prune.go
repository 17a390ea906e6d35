package rewrite

import (
	"github.com/quarryql/quarry/internal/ir"
)

// pruneColumns removes projection expressions and aggregation reductions
// whose outputs nothing above consumes. It runs as a global rule: required
// column sets flow top-down from the root, whose entire output is always
// required. Group keys are never pruned, since dropping one changes the
// grouping. Set operations act as a barrier: both sides must keep their full
// schemas so positional alignment holds, though pruning continues underneath.
//
// protected names survive pruning everywhere they appear as an output.
type pruneColumns struct {
	protected map[string]bool
}

func (r *pruneColumns) Name() string { return "prune-columns" }

func (r *pruneColumns) Global() {}

func (r *pruneColumns) Apply(root ir.Relation) (ir.Relation, bool, error) {
	required := make(map[string]bool)
	for _, name := range root.Schema().Names() {
		required[name] = true
	}
	return r.prune(root, required)
}

func (r *pruneColumns) keep(name string, required map[string]bool) bool {
	return required[name] || r.protected[name]
}

// refNames collects the column names a set of expressions touches.
func refNames(into map[string]bool, vs ...ir.Value) {
	for _, v := range vs {
		if v == nil {
			continue
		}
		for _, c := range ir.ColumnRefs(v) {
			into[c.Name()] = true
		}
	}
}

func (r *pruneColumns) prune(rel ir.Relation, required map[string]bool) (ir.Relation, bool, error) {
	switch t := rel.(type) {
	case *ir.Table:
		return rel, false, nil

	case *ir.Projection:
		all := t.Exprs()
		kept := make([]ir.NamedValue, 0, len(all))
		for _, nv := range all {
			if r.keep(nv.Name, required) {
				kept = append(kept, nv)
			}
		}
		// An empty requirement set means the consumer counts rows without
		// reading columns; leave the projection alone.
		if len(kept) == 0 {
			kept = all
		}
		childReq := make(map[string]bool)
		for _, nv := range kept {
			refNames(childReq, nv.Value)
		}
		in, inChanged, err := r.prune(t.Input(), childReq)
		if err != nil {
			return nil, false, err
		}
		if len(kept) == len(all) && !inChanged {
			return rel, false, nil
		}
		exprs, err := rebaseNamed(kept, in)
		if err != nil {
			return nil, false, err
		}
		next, err := ir.NewProjection(in, exprs)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil

	case *ir.Aggregation:
		groupBy := t.GroupBy()
		all := t.Aggs()
		kept := make([]ir.NamedValue, 0, len(all))
		for _, nv := range all {
			if r.keep(nv.Name, required) {
				kept = append(kept, nv)
			}
		}
		if len(groupBy) == 0 && len(kept) == 0 {
			kept = all[:1]
		}
		childReq := make(map[string]bool)
		for _, nv := range groupBy {
			refNames(childReq, nv.Value)
		}
		for _, nv := range kept {
			if call := nv.Value.(*ir.AggCall); call.Arg() != nil {
				refNames(childReq, call.Arg())
			}
		}
		in, inChanged, err := r.prune(t.Input(), childReq)
		if err != nil {
			return nil, false, err
		}
		if len(kept) == len(all) && !inChanged {
			return rel, false, nil
		}
		keys, err := rebaseNamed(groupBy, in)
		if err != nil {
			return nil, false, err
		}
		aggs, err := rebaseNamed(kept, in)
		if err != nil {
			return nil, false, err
		}
		next, err := ir.NewAggregation(in, keys, aggs)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil

	case *ir.Filter:
		childReq := cloneSet(required)
		refNames(childReq, t.Predicate())
		return r.pruneSingle(rel, t.Input(), childReq)

	case *ir.Sort:
		childReq := cloneSet(required)
		for _, k := range t.Keys() {
			refNames(childReq, k.Expr)
		}
		return r.pruneSingle(rel, t.Input(), childReq)

	case *ir.Limit:
		return r.pruneSingle(rel, t.Input(), cloneSet(required))

	case *ir.Join:
		leftReq := make(map[string]bool)
		rightReq := make(map[string]bool)
		for name := range required {
			side, col, ok := t.Origin(name)
			if !ok {
				continue
			}
			if side == t.Right() {
				rightReq[col] = true
				// A renamed right column only keeps its suffixed name if
				// the colliding left column survives too.
				if name != col {
					leftReq[col] = true
				}
			} else {
				leftReq[col] = true
			}
		}
		for _, c := range ir.ColumnRefs(t.On()) {
			if _, ok := t.Left().Schema().Lookup(c.Name()); ok {
				leftReq[c.Name()] = true
			}
			if _, ok := t.Right().Schema().Lookup(c.Name()); ok {
				rightReq[c.Name()] = true
			}
		}
		left, lc, err := r.prune(t.Left(), leftReq)
		if err != nil {
			return nil, false, err
		}
		right, rc, err := r.prune(t.Right(), rightReq)
		if err != nil {
			return nil, false, err
		}
		if !lc && !rc {
			return rel, false, nil
		}
		next, err := replaceInputs(rel, []ir.Relation{left, right})
		if err != nil {
			return nil, false, err
		}
		return next, true, nil

	case *ir.SetOp:
		leftReq := make(map[string]bool)
		for _, name := range t.Left().Schema().Names() {
			leftReq[name] = true
		}
		rightReq := make(map[string]bool)
		for _, name := range t.Right().Schema().Names() {
			rightReq[name] = true
		}
		left, lc, err := r.prune(t.Left(), leftReq)
		if err != nil {
			return nil, false, err
		}
		right, rc, err := r.prune(t.Right(), rightReq)
		if err != nil {
			return nil, false, err
		}
		if !lc && !rc {
			return rel, false, nil
		}
		next, err := replaceInputs(rel, []ir.Relation{left, right})
		if err != nil {
			return nil, false, err
		}
		return next, true, nil

	default:
		return rel, false, nil
	}
}

func (r *pruneColumns) pruneSingle(rel, input ir.Relation, childReq map[string]bool) (ir.Relation, bool, error) {
	in, changed, err := r.prune(input, childReq)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return rel, false, nil
	}
	next, err := replaceInputs(rel, []ir.Relation{in})
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}

func cloneSet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}
