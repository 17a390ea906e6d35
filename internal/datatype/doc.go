// Package datatype defines the closed set of data types understood by the
// query compiler, and the ordered column schemas built from them.
//
// Types are pure immutable values. Two types are interchangeable exactly when
// their canonical names (Name) are equal; nullability is not part of a type
// but an attribute of the schema field that carries it.
//
// The package has no dependencies on the expression IR. Type inference for
// operations lives with the operation registry in internal/ir; this package
// only provides the type lattice (Unify) used by set operations, coalescing
// and conditional branches.
package datatype
