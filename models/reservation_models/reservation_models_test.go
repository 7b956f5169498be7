package reservation_models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmkim/billim/models/shared_models"
	"github.com/jmkim/billim/utils"
)

func newTestReservation(t *testing.T) *Reservation {
	t.Helper()
	start := time.Now().Add(24 * time.Hour)
	end := start.Add(48 * time.Hour)
	r, err := NewReservation(uuid.New(), uuid.New(), uuid.New(), start, end, 20000, 10000)
	require.NoError(t, err)
	return r
}

func TestNewReservation(t *testing.T) {
	t.Run("StartsRequested", func(t *testing.T) {
		r := newTestReservation(t)
		assert.Equal(t, shared_models.ReservationStatusRequested, r.Status)
		assert.NotEqual(t, uuid.Nil, r.ID)
		assert.Nil(t, r.RejectionReason)
		assert.True(t, r.IsOccupying())
	})

	t.Run("InvalidWindow", func(t *testing.T) {
		start := time.Now().Add(48 * time.Hour)
		end := start.Add(-time.Hour)

		_, err := NewReservation(uuid.New(), uuid.New(), uuid.New(), start, end, 20000, 10000)
		assert.ErrorIs(t, err, utils.ErrInvalidWindow)

		_, err = NewReservation(uuid.New(), uuid.New(), uuid.New(), start, start, 20000, 10000)
		assert.ErrorIs(t, err, utils.ErrInvalidWindow)
	})

	t.Run("DepositLargerThanTotal", func(t *testing.T) {
		start := time.Now().Add(time.Hour)
		_, err := NewReservation(uuid.New(), uuid.New(), uuid.New(), start, start.Add(time.Hour), 10000, 20000)
		assert.Error(t, err)
	})
}

func TestOverlaps(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
	}

	t.Run("OverlappingWindows", func(t *testing.T) {
		// A [day1,day3) vs B [day2,day4)
		assert.True(t, Overlaps(day(1), day(3), day(2), day(4)))
		assert.True(t, Overlaps(day(2), day(4), day(1), day(3)))
		// Containment
		assert.True(t, Overlaps(day(1), day(5), day(2), day(3)))
	})

	t.Run("HalfOpenBoundaryDoesNotOverlap", func(t *testing.T) {
		// [day1,day3) and [day3,day5) share only the boundary instant.
		assert.False(t, Overlaps(day(1), day(3), day(3), day(5)))
		assert.False(t, Overlaps(day(3), day(5), day(1), day(3)))
	})

	t.Run("DisjointWindows", func(t *testing.T) {
		assert.False(t, Overlaps(day(1), day(2), day(4), day(5)))
	})
}

func TestApprove(t *testing.T) {
	r := newTestReservation(t)

	require.NoError(t, r.Approve())
	assert.Equal(t, shared_models.ReservationStatusApproved, r.Status)

	// Second approve fails deterministically instead of re-applying.
	err := r.Approve()
	var transitionErr *utils.InvalidStateTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, shared_models.ReservationStatusApproved, transitionErr.Current)
	assert.Equal(t, shared_models.ReservationStatusApproved, transitionErr.Attempted)
}

func TestReject(t *testing.T) {
	r := newTestReservation(t)

	require.NoError(t, r.Reject("tool is broken"))
	assert.Equal(t, shared_models.ReservationStatusRejected, r.Status)
	require.NotNil(t, r.RejectionReason)
	assert.Equal(t, "tool is broken", *r.RejectionReason)

	// Rejected is terminal.
	assert.Error(t, r.Approve())
	assert.Error(t, r.Cancel())
}

func TestCancel(t *testing.T) {
	t.Run("FromRequested", func(t *testing.T) {
		r := newTestReservation(t)
		require.NoError(t, r.Cancel())
		assert.Equal(t, shared_models.ReservationStatusCanceled, r.Status)
	})

	t.Run("NotFromApproved", func(t *testing.T) {
		r := newTestReservation(t)
		require.NoError(t, r.Approve())

		err := r.Cancel()
		var transitionErr *utils.InvalidStateTransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, shared_models.ReservationStatusApproved, transitionErr.Current)
		assert.Equal(t, shared_models.ReservationStatusApproved, r.Status)
	})
}

func TestStart(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r := newTestReservation(t)
		require.NoError(t, r.Approve())

		require.NoError(t, r.Start(r.StartTime.Add(time.Minute)))
		assert.Equal(t, shared_models.ReservationStatusInProgress, r.Status)
	})

	t.Run("TooEarly", func(t *testing.T) {
		r := newTestReservation(t)
		require.NoError(t, r.Approve())

		err := r.Start(r.StartTime.Add(-time.Minute))
		assert.Error(t, err)
		assert.Equal(t, shared_models.ReservationStatusApproved, r.Status)
	})

	t.Run("NotFromRequested", func(t *testing.T) {
		r := newTestReservation(t)
		err := r.Start(r.StartTime.Add(time.Minute))
		var transitionErr *utils.InvalidStateTransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, shared_models.ReservationStatusRequested, transitionErr.Current)
	})
}

func TestComplete(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r := newTestReservation(t)
		require.NoError(t, r.Approve())
		require.NoError(t, r.Start(r.StartTime))

		require.NoError(t, r.Complete(r.EndTime))
		assert.Equal(t, shared_models.ReservationStatusDone, r.Status)
	})

	t.Run("BeforeStartFails", func(t *testing.T) {
		// completeRental before startRental fails and leaves status unchanged.
		r := newTestReservation(t)
		require.NoError(t, r.Approve())

		err := r.Complete(r.EndTime.Add(time.Hour))
		var transitionErr *utils.InvalidStateTransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, shared_models.ReservationStatusApproved, r.Status)
	})

	t.Run("TooEarly", func(t *testing.T) {
		r := newTestReservation(t)
		require.NoError(t, r.Approve())
		require.NoError(t, r.Start(r.StartTime))

		assert.Error(t, r.Complete(r.EndTime.Add(-time.Minute)))
		assert.Equal(t, shared_models.ReservationStatusInProgress, r.Status)
	})
}

func TestFail(t *testing.T) {
	t.Run("OwnerIssueFromApproved", func(t *testing.T) {
		r := newTestReservation(t)
		require.NoError(t, r.Approve())

		require.NoError(t, r.Fail(shared_models.FaultPartyOwner, "tool never handed over"))
		assert.Equal(t, shared_models.ReservationStatusFailedOwnerIssue, r.Status)
		require.NotNil(t, r.RejectionReason)
		assert.Equal(t, "tool never handed over", *r.RejectionReason)
	})

	t.Run("RenterIssueFromInProgress", func(t *testing.T) {
		r := newTestReservation(t)
		require.NoError(t, r.Approve())
		require.NoError(t, r.Start(r.StartTime))

		require.NoError(t, r.Fail(shared_models.FaultPartyRenter, ""))
		assert.Equal(t, shared_models.ReservationStatusFailedRenterIssue, r.Status)
		assert.Nil(t, r.RejectionReason)
	})

	t.Run("NotFromRequested", func(t *testing.T) {
		r := newTestReservation(t)
		err := r.Fail(shared_models.FaultPartyOwner, "x")
		var transitionErr *utils.InvalidStateTransitionError
		assert.True(t, errors.As(err, &transitionErr))
	})

	t.Run("UnknownFaultParty", func(t *testing.T) {
		r := newTestReservation(t)
		require.NoError(t, r.Approve())
		assert.Error(t, r.Fail("SOMEONE", "x"))
		assert.Equal(t, shared_models.ReservationStatusApproved, r.Status)
	})
}

func TestNoWayBackIntoEarlyStates(t *testing.T) {
	// Once a reservation leaves REQUESTED or APPROVED, nothing brings it back.
	r := newTestReservation(t)
	require.NoError(t, r.Approve())
	require.NoError(t, r.Start(r.StartTime))
	require.NoError(t, r.Complete(r.EndTime))

	assert.Error(t, r.Approve())
	assert.Error(t, r.Reject("late"))
	assert.Error(t, r.Cancel())
	assert.Error(t, r.Start(r.EndTime))
	assert.Error(t, r.Fail(shared_models.FaultPartyOwner, "late"))
	assert.Equal(t, shared_models.ReservationStatusDone, r.Status)
	assert.False(t, r.IsOccupying())
}

func TestDepositReturnReason(t *testing.T) {
	cases := map[string]string{
		shared_models.ReservationStatusDone:              shared_models.ReturnReasonRentalDone,
		shared_models.ReservationStatusFailedOwnerIssue:  shared_models.ReturnReasonOwnerIssue,
		shared_models.ReservationStatusFailedRenterIssue: shared_models.ReturnReasonRenterIssue,
	}
	for status, want := range cases {
		got, err := DepositReturnReason(status)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := DepositReturnReason(shared_models.ReservationStatusApproved)
	assert.Error(t, err)
}
