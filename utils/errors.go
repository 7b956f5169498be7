// utils/errors.go
package utils

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrUserIDNotFound = errors.New("authentication required: user ID not found")
	ErrUnauthorized   = errors.New("unauthorized access")

	// ErrInvalidWindow is returned for a malformed rental window (start >= end),
	// before any lock is taken.
	ErrInvalidWindow = errors.New("invalid rental window: start must be before end")

	// ErrNotFound covers unknown reservation, deposit and post ids.
	ErrNotFound = errors.New("not found")

	// ErrSchedulerLockHeld signals that another instance holds the batch lock.
	// Callers treat it as a skip, not a failure.
	ErrSchedulerLockHeld = errors.New("scheduler lock held by another run")
)

// ReservationConflictError is returned when a requested window overlaps an
// occupying reservation on the same post. The request is rejected, never queued.
type ReservationConflictError struct {
	PostID         uuid.UUID
	ConflictingIDs []uuid.UUID
}

func (e *ReservationConflictError) Error() string {
	return fmt.Sprintf("reservation window conflicts with %d existing reservation(s) on post %s: %v",
		len(e.ConflictingIDs), e.PostID, e.ConflictingIDs)
}

// InvalidStateTransitionError reports a state-machine guard violation with
// both the current and the attempted status.
type InvalidStateTransitionError struct {
	Current   string
	Attempted string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.Current, e.Attempted)
}
