package lower

import (
	"errors"
	"fmt"
)

// UnsupportedOperationError reports that a backend cannot accept a piece of
// the tree and no translator override steps in for it.
type UnsupportedOperationError struct {
	// Backend is the name of the lowering target.
	Backend string

	// Operation describes what the tree asked for.
	Operation string
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("backend %s does not support %s", e.Backend, e.Operation)
}

// IsUnsupported reports whether err is (or wraps) an
// UnsupportedOperationError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedOperationError
	return errors.As(err, &ue)
}
