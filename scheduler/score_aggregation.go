package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmkim/billim/logger"
	"github.com/jmkim/billim/models/review_models"
	"github.com/jmkim/billim/models/user_models"
	"github.com/jmkim/billim/utils"
)

// ScoreAggregationLockName is the mutex row shared by every scheduler
// instance; whoever inserts it owns the run.
const ScoreAggregationLockName = "score_aggregation"

const (
	reviewWindow     = 7 * 24 * time.Hour
	inactivityCutoff = 6 * 30 * 24 * time.Hour
	inactivityDecay  = 1.0

	aggregationAttempts = 3
	aggregationBackoff  = 30 * time.Second
)

// ScoreStore is the storage surface of the weekly aggregation.
type ScoreStore interface {
	AcquireLock(ctx context.Context, name string) error
	ReleaseLock(ctx context.Context, name string) error
	AverageScoresReceivedBetween(ctx context.Context, from, to time.Time) ([]review_models.RevieweeAverage, error)
	GetUserScore(ctx context.Context, userID uuid.UUID) (float64, error)
	UpdateUserScore(ctx context.Context, userID uuid.UUID, score float64) error
	ListInactiveUsers(ctx context.Context, cutoff time.Time) (map[uuid.UUID]float64, error)
}

// PgScoreStore backs ScoreStore with Postgres. The lock is a plain row:
// insert-if-absent to acquire, delete to release.
type PgScoreStore struct {
	DB *pgxpool.Pool
}

var _ ScoreStore = (*PgScoreStore)(nil)

func (s *PgScoreStore) AcquireLock(ctx context.Context, name string) error {
	tag, err := s.DB.Exec(ctx, `
		INSERT INTO scheduler_locks (name, locked_at)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING`, name, time.Now())
	if err != nil {
		return fmt.Errorf("failed to acquire scheduler lock %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return utils.ErrSchedulerLockHeld
	}
	return nil
}

func (s *PgScoreStore) ReleaseLock(ctx context.Context, name string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM scheduler_locks WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to release scheduler lock %q: %w", name, err)
	}
	return nil
}

func (s *PgScoreStore) AverageScoresReceivedBetween(ctx context.Context, from, to time.Time) ([]review_models.RevieweeAverage, error) {
	return review_models.AverageScoresReceivedBetween(ctx, s.DB, from, to)
}

func (s *PgScoreStore) GetUserScore(ctx context.Context, userID uuid.UUID) (float64, error) {
	return user_models.GetUserScore(ctx, s.DB, userID)
}

func (s *PgScoreStore) UpdateUserScore(ctx context.Context, userID uuid.UUID, score float64) error {
	return user_models.UpdateUserScore(ctx, s.DB, userID, score)
}

func (s *PgScoreStore) ListInactiveUsers(ctx context.Context, cutoff time.Time) (map[uuid.UUID]float64, error) {
	return user_models.ListInactiveUsers(ctx, s.DB, cutoff)
}

// ScoreDelta maps a week's average received score to a fixed reputation
// delta.
func ScoreDelta(average float64) float64 {
	switch {
	case average < 2:
		return -1.0
	case average < 3:
		return -0.5
	case average < 4:
		return 0.5
	default:
		return 1.0
	}
}

// ClampScore bounds a score to [ScoreFloor, ScoreCeil].
func ClampScore(score float64) float64 {
	if score < user_models.ScoreFloor {
		return user_models.ScoreFloor
	}
	if score > user_models.ScoreCeil {
		return user_models.ScoreCeil
	}
	return score
}

// DecayScore applies the inactivity decay, never dropping below the base
// score. Scores already at or under the base are left alone.
func DecayScore(score float64) float64 {
	if score <= user_models.ScoreBase {
		return score
	}
	decayed := score - inactivityDecay
	if decayed < user_models.ScoreBase {
		return user_models.ScoreBase
	}
	return decayed
}

// ScoreAggregator recomputes user reputation from the prior week's reviews.
// At most one run executes across scheduler instances: the lock row is the
// mutex, a failed acquisition is a silent skip.
type ScoreAggregator struct {
	store    ScoreStore
	attempts int
	backoff  time.Duration
	interval time.Duration
	now      func() time.Time
	sleep    func(time.Duration)
}

func NewScoreAggregator(store ScoreStore) *ScoreAggregator {
	return &ScoreAggregator{
		store:    store,
		attempts: aggregationAttempts,
		backoff:  aggregationBackoff,
		interval: reviewWindow,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Run executes the aggregation once per interval until ctx is cancelled.
func (a *ScoreAggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	logger.InfoLogger.Infof("Score aggregator running (interval %v)", a.interval)
	for {
		select {
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil {
				logger.ErrorLogger.Errorf("Score aggregation run failed terminally: %v", err)
			}
		case <-ctx.Done():
			logger.InfoLogger.Info("Score aggregator stopped")
			return
		}
	}
}

// RunOnce acquires the lock, processes with a fixed retry budget, and
// releases the lock in all cases: success, retry exhaustion, or panic.
// Users written by a failed attempt are remembered, so a retry picks up
// where the failure hit instead of applying their delta again.
func (a *ScoreAggregator) RunOnce(ctx context.Context) (err error) {
	if lockErr := a.store.AcquireLock(ctx, ScoreAggregationLockName); lockErr != nil {
		if errors.Is(lockErr, utils.ErrSchedulerLockHeld) {
			logger.InfoLogger.Info("Score aggregation skipped: lock held by another run")
			return nil
		}
		return lockErr
	}

	defer func() {
		if releaseErr := a.store.ReleaseLock(ctx, ScoreAggregationLockName); releaseErr != nil {
			logger.ErrorLogger.Errorf("Failed to release score aggregation lock: %v", releaseErr)
		}
		if rec := recover(); rec != nil {
			err = fmt.Errorf("score aggregation panicked: %v", rec)
		}
	}()

	settled := make(map[uuid.UUID]struct{})
	for attempt := 1; attempt <= a.attempts; attempt++ {
		err = a.process(ctx, settled)
		if err == nil {
			logger.InfoLogger.Info("Score aggregation completed")
			return nil
		}
		logger.WarnLogger.Warnf("Score aggregation attempt %d/%d failed: %v", attempt, a.attempts, err)
		if attempt < a.attempts {
			a.sleep(a.backoff)
		}
	}

	return fmt.Errorf("score aggregation gave up after %d attempts: %w", a.attempts, err)
}

// process applies the per-run deltas. settled holds users whose write
// already committed this run; they are skipped so a retried attempt is
// idempotent and each user moves by exactly one delta per run.
func (a *ScoreAggregator) process(ctx context.Context, settled map[uuid.UUID]struct{}) error {
	now := a.now()

	averages, err := a.store.AverageScoresReceivedBetween(ctx, now.Add(-reviewWindow), now)
	if err != nil {
		return err
	}

	for _, avg := range averages {
		if _, done := settled[avg.UserID]; done {
			continue
		}
		current, err := a.store.GetUserScore(ctx, avg.UserID)
		if err != nil {
			return err
		}
		next := ClampScore(current + ScoreDelta(avg.Average))
		if err := a.store.UpdateUserScore(ctx, avg.UserID, next); err != nil {
			return err
		}
		settled[avg.UserID] = struct{}{}
		logger.InfoLogger.Infof("User %s score %.1f -> %.1f (avg %.2f over %d reviews)",
			avg.UserID, current, next, avg.Average, avg.Count)
	}

	inactive, err := a.store.ListInactiveUsers(ctx, now.Add(-inactivityCutoff))
	if err != nil {
		return err
	}

	for userID, score := range inactive {
		if _, done := settled[userID]; done {
			continue
		}
		decayed := DecayScore(score)
		if decayed == score {
			settled[userID] = struct{}{}
			continue
		}
		if err := a.store.UpdateUserScore(ctx, userID, decayed); err != nil {
			return err
		}
		settled[userID] = struct{}{}
	}

	return nil
}
