package ir

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/quarryql/quarry/internal/datatype"
)

// TypeError reports an operand/type mismatch at construction or inference
// time. No node is ever returned alongside a TypeError, so an invalid type
// can never propagate silently into a larger tree.
type TypeError struct {
	// Op names the operation whose inference rule rejected the operands.
	Op string

	// Operands are the canonical names of the offending operand types.
	Operands []string

	// Message describes the specific constraint that was violated.
	Message string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	if len(e.Operands) > 0 {
		return fmt.Sprintf("type error in %s(%s): %s", e.Op, strings.Join(e.Operands, ", "), e.Message)
	}
	return fmt.Sprintf("type error in %s: %s", e.Op, e.Message)
}

func newTypeError(op string, msg string, operands ...datatype.DataType) *TypeError {
	names := make([]string, len(operands))
	for i, t := range operands {
		names[i] = t.Name()
	}
	return &TypeError{Op: op, Operands: names, Message: msg}
}

// UnboundColumnError reports a column reference that resolves to no name in
// the accessible scope. Candidates lists the names that were visible, sorted,
// so diagnostics can suggest alternatives without re-walking the tree.
type UnboundColumnError struct {
	Name       string
	Candidates []string
}

// Error implements the error interface.
func (e *UnboundColumnError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("unbound column %q (no columns in scope)", e.Name)
	}
	return fmt.Sprintf("unbound column %q (available: %s)", e.Name, strings.Join(e.Candidates, ", "))
}

func newUnboundColumnError(name string, candidates []string) *UnboundColumnError {
	sorted := make([]string, len(candidates))
	copy(sorted, candidates)
	sort.Strings(sorted)
	return &UnboundColumnError{Name: name, Candidates: sorted}
}

// SchemaMismatchError reports incompatible schemas at a set operation or
// join, or a duplicate output name in a projection or aggregation list. The
// schema snapshots are attached so callers can build a diagnostic without
// re-deriving them.
type SchemaMismatchError struct {
	Op      string
	Left    *datatype.Schema
	Right   *datatype.Schema
	Message string
}

// Error implements the error interface.
func (e *SchemaMismatchError) Error() string {
	if e.Left != nil && e.Right != nil {
		return fmt.Sprintf("schema mismatch in %s: %s (left %s, right %s)", e.Op, e.Message, e.Left, e.Right)
	}
	return fmt.Sprintf("schema mismatch in %s: %s", e.Op, e.Message)
}

// IsTypeError reports whether err is (or wraps) a TypeError.
func IsTypeError(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}

// IsUnboundColumn reports whether err is (or wraps) an UnboundColumnError.
func IsUnboundColumn(err error) bool {
	var ue *UnboundColumnError
	return errors.As(err, &ue)
}

// IsSchemaMismatch reports whether err is (or wraps) a SchemaMismatchError.
func IsSchemaMismatch(err error) bool {
	var se *SchemaMismatchError
	return errors.As(err, &se)
}
