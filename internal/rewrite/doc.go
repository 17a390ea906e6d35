// Package rewrite applies semantics-preserving transformations to an
// expression tree before lowering.
//
// Rules are local pattern matches applied bottom-up in a fixed priority
// order; the driver repeats whole passes until no rule fires or a pass cap
// is reached. Reaching the cap is not an error: the partially rewritten tree
// is still a correct tree, rewriting just stops improving it. Because nodes
// are immutable, every rewrite builds replacement nodes through the
// validating constructors and rebases column references onto the replacement
// inputs; a rule can therefore never produce an invalid tree.
package rewrite
