package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAssignmentType is returned when a pool class outside the
	// three recognized values is requested.
	ErrInvalidAssignmentType = errors.New("invalid assignment type")

	// ErrCredentialNotFound is returned when the target credential id does
	// not exist.
	ErrCredentialNotFound = errors.New("credential not found")
)

// StillAssignedError is returned when an operation requires an available
// credential but the target is currently assigned.
type StillAssignedError struct {
	CredentialID uint
}

func (e *StillAssignedError) Error() string {
	return fmt.Sprintf("credential %d is still assigned and cannot be modified", e.CredentialID)
}
