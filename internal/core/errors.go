package core

import "errors"

var (
	// ErrNotFound marks a reference to an id that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a rejected mutation whose preconditions no longer
	// hold, e.g. changing a group's classification while ledgers in the
	// group already carry transactions.
	ErrConflict = errors.New("conflict")

	// ErrValidation is the sentinel matched by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrIntegrity marks a storage-level inconsistency. The write-time
	// invariants make this unreachable in correct operation; it is logged
	// for investigation and never retried.
	ErrIntegrity = errors.New("integrity violation")
)

// ValidationError names the offending field of a malformed request.
// It matches ErrValidation under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
