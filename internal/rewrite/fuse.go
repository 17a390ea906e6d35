package rewrite

import (
	"github.com/quarryql/quarry/internal/ir"
)

// fuseProjections collapses a projection stacked directly on another
// projection into a single projection by substituting the inner expressions
// into the outer ones. Fusion is skipped when an impure inner expression is
// referenced more than once above, since substitution would duplicate its
// evaluation.
type fuseProjections struct{}

func (r *fuseProjections) Name() string { return "fuse-projections" }

func (r *fuseProjections) Apply(rel ir.Relation) (ir.Relation, bool, error) {
	outer, ok := rel.(*ir.Projection)
	if !ok {
		return rel, false, nil
	}
	inner, ok := outer.Input().(*ir.Projection)
	if !ok {
		return rel, false, nil
	}

	refs := make(map[string]int)
	for _, nv := range outer.Exprs() {
		for _, c := range ir.ColumnRefs(nv.Value) {
			refs[c.Name()]++
		}
	}
	for _, nv := range inner.Exprs() {
		if !ir.Pure(nv.Value) && refs[nv.Name] > 1 {
			return rel, false, nil
		}
	}

	fused := make([]ir.NamedValue, 0, len(outer.Exprs()))
	for _, nv := range outer.Exprs() {
		sub, err := ir.ReplaceColumns(nv.Value, func(c *ir.ColumnRef) (ir.Value, error) {
			if v, ok := inner.Expr(c.Name()); ok {
				return v, nil
			}
			return c, nil
		})
		if err != nil {
			return nil, false, err
		}
		fused = append(fused, ir.NamedValue{Name: nv.Name, Value: sub})
	}
	next, err := ir.NewProjection(inner.Input(), fused)
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}
