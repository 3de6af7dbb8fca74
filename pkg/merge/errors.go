package merge

import (
	"errors"
	"fmt"
)

// ErrReadFailure indicates a member existed but could not be read.
var ErrReadFailure = errors.New("resource read failure")

// MemberError identifies the group member that failed a strict merge.
type MemberError struct {
	ID  string
	Err error
}

// Error implements error.
func (e *MemberError) Error() string {
	return fmt.Sprintf("merge %s: %v", e.ID, e.Err)
}

// Unwrap returns ErrReadFailure so callers can match with errors.Is, and the
// underlying cause for errors.As.
func (e *MemberError) Unwrap() []error {
	return []error{ErrReadFailure, e.Err}
}
