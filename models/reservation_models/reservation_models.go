package reservation_models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmkim/billim/models/shared_models"
	"github.com/jmkim/billim/utils"
)

// Reservation is a renter's time-boxed claim on a post. The id, post, party
// and window fields are immutable after creation; only status and
// rejection_reason move, and only along the transition graph below.
//
//	REQUESTED -> APPROVED | REJECTED | CANCELED
//	APPROVED  -> IN_PROGRESS | FAILED_OWNER_ISSUE | FAILED_RENTER_ISSUE
//	IN_PROGRESS -> DONE | FAILED_OWNER_ISSUE | FAILED_RENTER_ISSUE
type Reservation struct {
	ID              uuid.UUID `json:"id"`
	PostID          uuid.UUID `json:"post_id"`
	RenterID        uuid.UUID `json:"renter_id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Status          string    `json:"status"`
	Amount          int64     `json:"amount"`
	DepositAmount   int64     `json:"deposit_amount"`
	RejectionReason *string   `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewReservation builds a REQUESTED reservation after validating the window.
// Window validation happens here, before any lock is taken.
func NewReservation(postID, renterID, ownerID uuid.UUID, start, end time.Time, amount, depositAmount int64) (*Reservation, error) {
	if !start.Before(end) {
		return nil, utils.ErrInvalidWindow
	}
	if amount < 0 || depositAmount < 0 || depositAmount > amount {
		return nil, fmt.Errorf("invalid amounts: total %d, deposit %d", amount, depositAmount)
	}

	id, err := shared_models.GenerateUUIDv7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for reservation: %w", err)
	}

	now := time.Now()
	return &Reservation{
		ID:            id,
		PostID:        postID,
		RenterID:      renterID,
		OwnerID:       ownerID,
		StartTime:     start,
		EndTime:       end,
		Status:        shared_models.ReservationStatusRequested,
		Amount:        amount,
		DepositAmount: depositAmount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Overlaps is the half-open interval test used by the conflict checker:
// [aStart,aEnd) and [bStart,bEnd) overlap iff aStart < bEnd && aEnd > bStart.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// IsOccupying reports whether the reservation currently blocks its window.
func (r *Reservation) IsOccupying() bool {
	for _, s := range shared_models.OccupyingStatuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

func (r *Reservation) guard(attempted string, allowedFrom ...string) error {
	for _, s := range allowedFrom {
		if r.Status == s {
			return nil
		}
	}
	return &utils.InvalidStateTransitionError{Current: r.Status, Attempted: attempted}
}

// Approve moves REQUESTED -> APPROVED. The caller creates the deposit row in
// the same transaction.
func (r *Reservation) Approve() error {
	if err := r.guard(shared_models.ReservationStatusApproved, shared_models.ReservationStatusRequested); err != nil {
		return err
	}
	r.Status = shared_models.ReservationStatusApproved
	r.UpdatedAt = time.Now()
	return nil
}

// Reject moves REQUESTED -> REJECTED and stores the owner's reason.
func (r *Reservation) Reject(reason string) error {
	if err := r.guard(shared_models.ReservationStatusRejected, shared_models.ReservationStatusRequested); err != nil {
		return err
	}
	r.Status = shared_models.ReservationStatusRejected
	r.RejectionReason = &reason
	r.UpdatedAt = time.Now()
	return nil
}

// Cancel moves REQUESTED -> CANCELED. A renter cannot cancel once the owner
// has approved; failure reporting is the escape hatch after that.
func (r *Reservation) Cancel() error {
	if err := r.guard(shared_models.ReservationStatusCanceled, shared_models.ReservationStatusRequested); err != nil {
		return err
	}
	r.Status = shared_models.ReservationStatusCanceled
	r.UpdatedAt = time.Now()
	return nil
}

// Start moves APPROVED -> IN_PROGRESS once the rental window has opened.
func (r *Reservation) Start(now time.Time) error {
	if err := r.guard(shared_models.ReservationStatusInProgress, shared_models.ReservationStatusApproved); err != nil {
		return err
	}
	if now.Before(r.StartTime) {
		return &utils.InvalidStateTransitionError{
			Current:   r.Status,
			Attempted: shared_models.ReservationStatusInProgress,
		}
	}
	r.Status = shared_models.ReservationStatusInProgress
	r.UpdatedAt = time.Now()
	return nil
}

// Complete moves IN_PROGRESS -> DONE once the rental window has closed.
func (r *Reservation) Complete(now time.Time) error {
	if err := r.guard(shared_models.ReservationStatusDone, shared_models.ReservationStatusInProgress); err != nil {
		return err
	}
	if now.Before(r.EndTime) {
		return &utils.InvalidStateTransitionError{
			Current:   r.Status,
			Attempted: shared_models.ReservationStatusDone,
		}
	}
	r.Status = shared_models.ReservationStatusDone
	r.UpdatedAt = time.Now()
	return nil
}

// Fail moves APPROVED or IN_PROGRESS to the FAILED_* state matching the
// party at fault. The reason, if any, lands in rejection_reason.
func (r *Reservation) Fail(faultParty, reason string) error {
	var target string
	switch faultParty {
	case shared_models.FaultPartyOwner:
		target = shared_models.ReservationStatusFailedOwnerIssue
	case shared_models.FaultPartyRenter:
		target = shared_models.ReservationStatusFailedRenterIssue
	default:
		return fmt.Errorf("unknown fault party %q", faultParty)
	}

	if err := r.guard(target,
		shared_models.ReservationStatusApproved,
		shared_models.ReservationStatusInProgress); err != nil {
		return err
	}

	r.Status = target
	if reason != "" {
		r.RejectionReason = &reason
	}
	r.UpdatedAt = time.Now()
	return nil
}

// DepositReturnReason maps a terminal status to the reason recorded on the
// deposit row when it is settled.
func DepositReturnReason(status string) (string, error) {
	switch status {
	case shared_models.ReservationStatusDone:
		return shared_models.ReturnReasonRentalDone, nil
	case shared_models.ReservationStatusFailedOwnerIssue:
		return shared_models.ReturnReasonOwnerIssue, nil
	case shared_models.ReservationStatusFailedRenterIssue:
		return shared_models.ReturnReasonRenterIssue, nil
	default:
		return "", fmt.Errorf("no deposit outcome for status %s", status)
	}
}
