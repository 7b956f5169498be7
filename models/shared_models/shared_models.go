package shared_models

import (
	"github.com/google/uuid"
)

// Reservation status values. The lifecycle is a strict DAG: once a
// reservation leaves REQUESTED or APPROVED there is no way back in.
const (
	ReservationStatusRequested         = "REQUESTED"
	ReservationStatusApproved          = "APPROVED"
	ReservationStatusInProgress        = "IN_PROGRESS"
	ReservationStatusDone              = "DONE"
	ReservationStatusRejected          = "REJECTED"
	ReservationStatusCanceled          = "CANCELED"
	ReservationStatusFailedOwnerIssue  = "FAILED_OWNER_ISSUE"
	ReservationStatusFailedRenterIssue = "FAILED_RENTER_ISSUE"
)

// Deposit status values.
const (
	DepositStatusPending  = "PENDING"
	DepositStatusReturned = "RETURNED"
)

// Deposit return reasons, set at the point the deposit is settled.
const (
	ReturnReasonNone        = "NONE"
	ReturnReasonRentalDone  = "RENTAL_DONE"
	ReturnReasonOwnerIssue  = "OWNER_ISSUE"
	ReturnReasonRenterIssue = "RENTER_ISSUE"
)

// Fault parties accepted by the fail operation.
const (
	FaultPartyOwner  = "OWNER"
	FaultPartyRenter = "RENTER"
)

// OccupyingStatuses are the reservation states that block other reservations
// from overlapping the same window on a post.
var OccupyingStatuses = []string{
	ReservationStatusRequested,
	ReservationStatusApproved,
	ReservationStatusInProgress,
}

// TerminalStatuses admit no further transition.
var TerminalStatuses = []string{
	ReservationStatusDone,
	ReservationStatusRejected,
	ReservationStatusCanceled,
	ReservationStatusFailedOwnerIssue,
	ReservationStatusFailedRenterIssue,
}

// IsTerminalStatus reports whether s is a terminal reservation status.
func IsTerminalStatus(s string) bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// GenerateUUIDv7 generates a new UUIDv7.
func GenerateUUIDv7() (uuid.UUID, error) {
	return uuid.NewV7()
}
