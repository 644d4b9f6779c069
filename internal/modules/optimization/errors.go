package optimization

import (
	"errors"
	"fmt"
)

// ValidationError reports invalid optimizer input. It is raised before any
// generation runs; numerical edge cases inside the engines self-heal instead
// of erroring (uniform weights on a zero-sum vector, denominator of one on a
// zero objective range).
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
