// Package lower renders a rewritten expression tree as SQL for a concrete
// backend.
//
// A Backend descriptor bundles a dialect (pure spelling knobs), a
// capability set (which relational surface the target accepts) and optional
// per-kind translator overrides that replace the shared rendering entirely.
// Lowering is a memoized bottom-up walk keyed by node fingerprint: a
// subtree shared across the plan renders once, derived tables receive
// aliases t0, t1, ... in first-rendered order, and the same tree always
// renders to the same text for a given backend. A tree that asks for
// something the backend cannot accept fails with
// UnsupportedOperationError; everything else renders without consulting the
// target, since construction already proved the tree well formed.
package lower
