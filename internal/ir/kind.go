package ir

import (
	"fmt"

	"github.com/quarryql/quarry/internal/datatype"
)

// Kind discriminates node variants. The set is closed: lowering and type
// inference switch exhaustively over it, so adding a variant means extending
// every dispatch site, checked at review time rather than at runtime.
type Kind uint32

const (
	_ Kind = iota // zero-value is an invalid kind

	// Value kinds.
	KindLiteral
	KindColumnRef
	KindUnary
	KindBinary
	KindAggCall
	KindWindow

	// Relation kinds.
	KindTable
	KindProjection
	KindFilter
	KindAggregation
	KindJoin
	KindSort
	KindSetOp
	KindLimit
)

// String returns the stable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "Literal"
	case KindColumnRef:
		return "ColumnRef"
	case KindUnary:
		return "Unary"
	case KindBinary:
		return "Binary"
	case KindAggCall:
		return "AggCall"
	case KindWindow:
		return "Window"
	case KindTable:
		return "Table"
	case KindProjection:
		return "Projection"
	case KindFilter:
		return "Filter"
	case KindAggregation:
		return "Aggregation"
	case KindJoin:
		return "Join"
	case KindSort:
		return "Sort"
	case KindSetOp:
		return "SetOp"
	case KindLimit:
		return "Limit"
	default:
		panic(fmt.Sprintf("unknown node kind %d", k))
	}
}

// IsRelation reports whether the kind is table-valued.
func (k Kind) IsRelation() bool { return k >= KindTable }

// Node is the common interface of every IR node.
//
// This is a sealed interface - only types in this package implement it.
// Nodes are immutable after construction; children may be shared between
// parents, and the graph is acyclic by construction since nodes are built
// bottom-up.
type Node interface {
	Kind() Kind

	// Fingerprint is the content hash of the subtree rooted at this node.
	// Equal fingerprints mean structurally identical subtrees.
	Fingerprint() string

	node() // Marker method - seals interface to this package
}

// Value is a scalar or column expression node. Its Type is the data type a
// single output cell carries; Nullable reports whether that cell can be
// NULL.
type Value interface {
	Node
	Type() datatype.DataType
	Nullable() bool

	valueNode()
}

// Relation is a table-valued node. Its Schema describes the ordered, typed
// columns it produces.
type Relation interface {
	Node
	Schema() *datatype.Schema

	relationNode()
}

// Equal reports structural equality of two nodes via their fingerprints.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Fingerprint() == b.Fingerprint()
}

// NamedValue pairs a result-column name with the expression producing it.
// Projection and Aggregation lists are ordered sequences of these.
type NamedValue struct {
	Name  string
	Value Value
}

// SortKey is one ordering term of a Sort or window specification.
type SortKey struct {
	Expr Value
	Desc bool
}
