package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmkim/billim/logger"
	"github.com/jmkim/billim/models/reservation_models"
	"github.com/jmkim/billim/services"
	"github.com/jmkim/billim/utils"
)

const dueBatchSize = 100

// RentalStore is the slice of storage the rental scheduler needs.
type RentalStore interface {
	ListDueToStart(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListDueToComplete(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	StartRental(ctx context.Context, id uuid.UUID, now time.Time) (*reservation_models.Reservation, error)
	CompleteRental(ctx context.Context, id uuid.UUID, now time.Time) (*reservation_models.Reservation, error)
}

// PgRentalStore backs RentalStore with the reservation model queries.
type PgRentalStore struct {
	DB *pgxpool.Pool
}

var _ RentalStore = (*PgRentalStore)(nil)

func (s *PgRentalStore) ListDueToStart(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return reservation_models.ListDueToStart(ctx, s.DB, now, limit)
}

func (s *PgRentalStore) ListDueToComplete(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return reservation_models.ListDueToComplete(ctx, s.DB, now, limit)
}

func (s *PgRentalStore) StartRental(ctx context.Context, id uuid.UUID, now time.Time) (*reservation_models.Reservation, error) {
	return reservation_models.StartRental(ctx, s.DB, id, now)
}

func (s *PgRentalStore) CompleteRental(ctx context.Context, id uuid.UUID, now time.Time) (*reservation_models.Reservation, error) {
	return reservation_models.CompleteRental(ctx, s.DB, id, now)
}

// RentalScheduler advances time-driven reservation transitions: APPROVED ->
// IN_PROGRESS once the window opens and IN_PROGRESS -> DONE once it closes.
// It polls rather than holding per-reservation timers; duplicate firing is
// harmless because the state-machine guard turns re-invocation into a no-op.
type RentalScheduler struct {
	store    RentalStore
	notifier services.Notifier
	tick     time.Duration
	now      func() time.Time
}

func NewRentalScheduler(store RentalStore, notifier services.Notifier) *RentalScheduler {
	return &RentalScheduler{
		store:    store,
		notifier: notifier,
		tick:     30 * time.Second,
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled.
func (s *RentalScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	logger.InfoLogger.Infof("Rental scheduler running (tick %v)", s.tick)
	for {
		select {
		case <-ticker.C:
			s.runDueJobs(ctx)
		case <-ctx.Done():
			logger.InfoLogger.Info("Rental scheduler stopped")
			return
		}
	}
}

func (s *RentalScheduler) runDueJobs(ctx context.Context) {
	now := s.now()

	startIDs, err := s.store.ListDueToStart(ctx, now, dueBatchSize)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to list reservations due to start: %v", err)
	} else {
		for _, id := range startIDs {
			s.StartRentalJob(ctx, id)
		}
	}

	completeIDs, err := s.store.ListDueToComplete(ctx, now, dueBatchSize)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to list reservations due to complete: %v", err)
		return
	}
	for _, id := range completeIDs {
		s.CompleteRentalJob(ctx, id)
	}
}

// StartRentalJob promotes one APPROVED reservation whose start time has
// passed. An already-transitioned reservation is a silent no-op; that is the
// idempotence strategy, there is no distributed dedup.
func (s *RentalScheduler) StartRentalJob(ctx context.Context, id uuid.UUID) {
	r, err := s.store.StartRental(ctx, id, s.now())
	if err != nil {
		if isBenignJobError(err) {
			return
		}
		logger.ErrorLogger.Errorf("StartRentalJob failed for reservation %s: %v", id, err)
		return
	}

	logger.InfoLogger.Infof("Reservation %s started (rental in progress)", id)
	s.notifier.NotifyStatusChange(ctx, r.ID, r.Status)
}

// CompleteRentalJob promotes one IN_PROGRESS reservation whose end time has
// passed and settles its deposit.
func (s *RentalScheduler) CompleteRentalJob(ctx context.Context, id uuid.UUID) {
	r, err := s.store.CompleteRental(ctx, id, s.now())
	if err != nil {
		if isBenignJobError(err) {
			return
		}
		logger.ErrorLogger.Errorf("CompleteRentalJob failed for reservation %s: %v", id, err)
		return
	}

	logger.InfoLogger.Infof("Reservation %s completed, deposit returned", id)
	s.notifier.NotifyStatusChange(ctx, r.ID, r.Status)
}

// isBenignJobError filters the failures a duplicate or early firing
// produces: the guard rejected the transition, or the row vanished between
// the due scan and the job. Clock skew between the scan and the guard falls
// out the same way.
func isBenignJobError(err error) bool {
	var transitionErr *utils.InvalidStateTransitionError
	return errors.As(err, &transitionErr) || errors.Is(err, utils.ErrNotFound)
}
