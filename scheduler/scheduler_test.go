package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmkim/billim/models/deposit_models"
	"github.com/jmkim/billim/models/reservation_models"
	"github.com/jmkim/billim/models/shared_models"
	"github.com/jmkim/billim/utils"
)

// fakeRentalStore drives the scheduler with an in-memory reservation set,
// applying the same entity guards the real store re-checks under lock. It
// also models the deposit row so completion can assert the settle.
type fakeRentalStore struct {
	reservations map[uuid.UUID]*reservation_models.Reservation
	deposits     map[uuid.UUID]*deposit_models.DepositHistory
	startErr     error
	completeErr  error
}

func newFakeRentalStore() *fakeRentalStore {
	return &fakeRentalStore{
		reservations: make(map[uuid.UUID]*reservation_models.Reservation),
		deposits:     make(map[uuid.UUID]*deposit_models.DepositHistory),
	}
}

// add stores a reservation and, mirroring approval, its PENDING deposit.
func (f *fakeRentalStore) add(r *reservation_models.Reservation) {
	f.reservations[r.ID] = r
	if r.Status == shared_models.ReservationStatusApproved {
		f.deposits[r.ID] = &deposit_models.DepositHistory{
			ReservationID: r.ID,
			PayerID:       r.RenterID,
			Amount:        r.DepositAmount,
			Status:        shared_models.DepositStatusPending,
			ReturnReason:  shared_models.ReturnReasonNone,
		}
	}
}

func (f *fakeRentalStore) ListDueToStart(_ context.Context, now time.Time, _ int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, r := range f.reservations {
		if r.Status == shared_models.ReservationStatusApproved && !now.Before(r.StartTime) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeRentalStore) ListDueToComplete(_ context.Context, now time.Time, _ int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, r := range f.reservations {
		if r.Status == shared_models.ReservationStatusInProgress && !now.Before(r.EndTime) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeRentalStore) StartRental(_ context.Context, id uuid.UUID, now time.Time) (*reservation_models.Reservation, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	r, ok := f.reservations[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	if err := r.Start(now); err != nil {
		return nil, err
	}
	return r, nil
}

func (f *fakeRentalStore) CompleteRental(_ context.Context, id uuid.UUID, now time.Time) (*reservation_models.Reservation, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	r, ok := f.reservations[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	if err := r.Complete(now); err != nil {
		return nil, err
	}
	dh, ok := f.deposits[id]
	if !ok || dh.Status != shared_models.DepositStatusPending {
		// Mirror the transactional rollback: status and deposit commit
		// together or not at all.
		r.Status = shared_models.ReservationStatusInProgress
		return nil, fmt.Errorf("no pending deposit to settle for reservation %s: %w", id, utils.ErrNotFound)
	}
	reason, err := reservation_models.DepositReturnReason(r.Status)
	if err != nil {
		return nil, err
	}
	dh.Status = shared_models.DepositStatusReturned
	dh.ReturnReason = reason
	return r, nil
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) NotifyStatusChange(_ context.Context, reservationID uuid.UUID, newStatus string) {
	f.events = append(f.events, reservationID.String()+":"+newStatus)
}

func approvedReservation(t *testing.T, start, end time.Time) *reservation_models.Reservation {
	t.Helper()
	r, err := reservation_models.NewReservation(uuid.New(), uuid.New(), uuid.New(), start, end, 20000, 10000)
	require.NoError(t, err)
	require.NoError(t, r.Approve())
	return r
}

func newTestScheduler(store RentalStore, notifier *fakeNotifier, now time.Time) *RentalScheduler {
	s := NewRentalScheduler(store, notifier)
	s.now = func() time.Time { return now }
	return s
}

func TestStartRentalJob(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("PromotesDueReservation", func(t *testing.T) {
		store := newFakeRentalStore()
		r := approvedReservation(t, base.Add(-time.Hour), base.Add(time.Hour))
		store.add(r)

		notifier := &fakeNotifier{}
		s := newTestScheduler(store, notifier, base)

		s.StartRentalJob(context.Background(), r.ID)

		assert.Equal(t, shared_models.ReservationStatusInProgress, r.Status)
		require.Len(t, notifier.events, 1)
		assert.Equal(t, r.ID.String()+":IN_PROGRESS", notifier.events[0])
	})

	t.Run("SecondFiringIsNoOp", func(t *testing.T) {
		store := newFakeRentalStore()
		r := approvedReservation(t, base.Add(-time.Hour), base.Add(time.Hour))
		store.add(r)

		notifier := &fakeNotifier{}
		s := newTestScheduler(store, notifier, base)

		s.StartRentalJob(context.Background(), r.ID)
		s.StartRentalJob(context.Background(), r.ID)

		assert.Equal(t, shared_models.ReservationStatusInProgress, r.Status)
		assert.Len(t, notifier.events, 1, "duplicate firing must not emit a second event")
	})

	t.Run("UnknownReservationIsNoOp", func(t *testing.T) {
		store := newFakeRentalStore()
		notifier := &fakeNotifier{}
		s := newTestScheduler(store, notifier, base)

		s.StartRentalJob(context.Background(), uuid.New())
		assert.Empty(t, notifier.events)
	})

	t.Run("ClockSkewBeforeStartIsNoOp", func(t *testing.T) {
		store := newFakeRentalStore()
		r := approvedReservation(t, base.Add(time.Hour), base.Add(2*time.Hour))
		store.add(r)

		notifier := &fakeNotifier{}
		s := newTestScheduler(store, notifier, base)

		s.StartRentalJob(context.Background(), r.ID)

		assert.Equal(t, shared_models.ReservationStatusApproved, r.Status)
		assert.Empty(t, notifier.events)
	})
}

func TestCompleteRentalJob(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("CompletesDueReservation", func(t *testing.T) {
		store := newFakeRentalStore()
		r := approvedReservation(t, base.Add(-3*time.Hour), base.Add(-time.Hour))
		store.add(r)
		require.NoError(t, r.Start(r.StartTime))

		notifier := &fakeNotifier{}
		s := newTestScheduler(store, notifier, base)

		s.CompleteRentalJob(context.Background(), r.ID)

		assert.Equal(t, shared_models.ReservationStatusDone, r.Status)
		require.Len(t, notifier.events, 1)
		assert.Equal(t, r.ID.String()+":DONE", notifier.events[0])

		dh := store.deposits[r.ID]
		require.NotNil(t, dh)
		assert.Equal(t, shared_models.DepositStatusReturned, dh.Status)
		assert.Equal(t, shared_models.ReturnReasonRentalDone, dh.ReturnReason)
	})

	t.Run("NoPendingDepositRollsBack", func(t *testing.T) {
		store := newFakeRentalStore()
		r := approvedReservation(t, base.Add(-3*time.Hour), base.Add(-time.Hour))
		store.add(r)
		require.NoError(t, r.Start(r.StartTime))
		delete(store.deposits, r.ID)

		_, err := store.CompleteRental(context.Background(), r.ID, base)
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrNotFound)
		assert.Equal(t, shared_models.ReservationStatusInProgress, r.Status,
			"completion must not stick when the deposit settle fails")
	})

	t.Run("NotYetStartedIsNoOp", func(t *testing.T) {
		// An APPROVED reservation past its end time waits for StartRentalJob;
		// CompleteRentalJob's guard rejects it without error noise.
		store := newFakeRentalStore()
		r := approvedReservation(t, base.Add(-3*time.Hour), base.Add(-time.Hour))
		store.add(r)

		notifier := &fakeNotifier{}
		s := newTestScheduler(store, notifier, base)

		s.CompleteRentalJob(context.Background(), r.ID)

		assert.Equal(t, shared_models.ReservationStatusApproved, r.Status)
		assert.Empty(t, notifier.events)
	})
}

func TestRunDueJobs(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store := newFakeRentalStore()
	dueToStart := approvedReservation(t, base.Add(-time.Hour), base.Add(time.Hour))
	store.add(dueToStart)

	dueToComplete := approvedReservation(t, base.Add(-4*time.Hour), base.Add(-time.Hour))
	store.add(dueToComplete)
	require.NoError(t, dueToComplete.Start(dueToComplete.StartTime))

	notYetDue := approvedReservation(t, base.Add(time.Hour), base.Add(2*time.Hour))
	store.add(notYetDue)

	notifier := &fakeNotifier{}
	s := newTestScheduler(store, notifier, base)

	s.runDueJobs(context.Background())

	assert.Equal(t, shared_models.ReservationStatusInProgress, dueToStart.Status)
	assert.Equal(t, shared_models.ReservationStatusDone, dueToComplete.Status)
	assert.Equal(t, shared_models.ReservationStatusApproved, notYetDue.Status)
	assert.Len(t, notifier.events, 2)
}
