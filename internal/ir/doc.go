// Package ir defines the immutable expression tree that user code builds and
// the compiler lowers.
//
// Every node carries an explicit Kind discriminator and implements one of two
// sealed interfaces: Value (scalar and column expressions) or Relation
// (table-valued operations). Construction functions are the only way to
// produce nodes; they validate operand types against the closed operation
// registry, resolve column references against the schemas of the node's
// relational inputs, compute derived schemas, and return nodes that are never
// mutated afterwards. "Modifying" an expression always builds a new node that
// shares the old nodes as children, so the whole IR is an acyclic graph
// rooted at whatever expressions the caller still holds.
//
// Structural identity is a content fingerprint: two independently built but
// structurally identical subtrees have equal fingerprints, which is what
// rewrite-rule matching, common-subexpression recognition and lowering
// memoization key on.
package ir
