package reservation_models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmkim/billim/logger"
	"github.com/jmkim/billim/models/deposit_models"
	"github.com/jmkim/billim/models/shared_models"
	"github.com/jmkim/billim/utils"
)

const reservationColumns = `id, post_id, renter_id, owner_id, start_time, end_time,
	status, amount, deposit_amount, rejection_reason, created_at, updated_at`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	err := row.Scan(
		&r.ID, &r.PostID, &r.RenterID, &r.OwnerID, &r.StartTime, &r.EndTime,
		&r.Status, &r.Amount, &r.DepositAmount, &r.RejectionReason,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan reservation: %w", err)
	}
	return &r, nil
}

// CreateReservation persists a REQUESTED reservation. The conflict check and
// the insert run as one unit inside a transaction that holds a pessimistic
// lock on the post row, so two concurrent requests for overlapping windows
// on the same post serialize and at most one wins.
func CreateReservation(ctx context.Context, db *pgxpool.Pool, r *Reservation) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize all reservation creation for this post.
	var postID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM posts WHERE id = $1 FOR UPDATE`, r.PostID).Scan(&postID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return utils.ErrNotFound
		}
		return fmt.Errorf("failed to lock post %s: %w", r.PostID, err)
	}

	// Half-open overlap test against every occupying reservation.
	rows, err := tx.Query(ctx, `
		SELECT id FROM reservations
		WHERE post_id = $1
		  AND status = ANY($2)
		  AND start_time < $3
		  AND end_time > $4`,
		r.PostID, shared_models.OccupyingStatuses, r.EndTime, r.StartTime)
	if err != nil {
		return fmt.Errorf("failed to query conflicting reservations: %w", err)
	}

	var conflicting []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan conflicting reservation id: %w", err)
		}
		conflicting = append(conflicting, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read conflicting reservations: %w", err)
	}

	if len(conflicting) > 0 {
		return &utils.ReservationConflictError{PostID: r.PostID, ConflictingIDs: conflicting}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reservations (
			id, post_id, renter_id, owner_id, start_time, end_time,
			status, amount, deposit_amount, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.PostID, r.RenterID, r.OwnerID, r.StartTime, r.EndTime,
		r.Status, r.Amount, r.DepositAmount, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}

	logger.InfoLogger.Infof("Reservation %s created for post %s [%s, %s)",
		r.ID, r.PostID, r.StartTime.Format(time.RFC3339), r.EndTime.Format(time.RFC3339))
	return nil
}

// GetReservationByID fetches a single reservation.
func GetReservationByID(ctx context.Context, db *pgxpool.Pool, id uuid.UUID) (*Reservation, error) {
	row := db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	return scanReservation(row)
}

// GetReservationsForPost lists every reservation ever made on a post, newest
// first. Nothing is physically deleted, so this is the full history.
func GetReservationsForPost(ctx context.Context, db *pgxpool.Pool, postID uuid.UUID) ([]Reservation, error) {
	rows, err := db.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE post_id = $1
		ORDER BY created_at DESC`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations for post %s: %w", postID, err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		err := rows.Scan(
			&r.ID, &r.PostID, &r.RenterID, &r.OwnerID, &r.StartTime, &r.EndTime,
			&r.Status, &r.Amount, &r.DepositAmount, &r.RejectionReason,
			&r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// lockReservation loads a reservation FOR UPDATE inside tx so the guard
// re-check and the status write are atomic. A concurrent conflicting
// mutation loses by observing the stale-state guard failure.
func lockReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Reservation, error) {
	row := tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id)
	return scanReservation(row)
}

func persistStatus(ctx context.Context, tx pgx.Tx, r *Reservation) error {
	_, err := tx.Exec(ctx, `
		UPDATE reservations
		SET status = $2, rejection_reason = $3, updated_at = $4
		WHERE id = $1`,
		r.ID, r.Status, r.RejectionReason, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update reservation %s: %w", r.ID, err)
	}
	return nil
}

// transition runs mutate against a row-locked reservation and persists the
// result, all in one transaction. extra, when non-nil, runs in the same
// transaction after the status write (deposit bookkeeping lives there).
func transition(ctx context.Context, db *pgxpool.Pool, id uuid.UUID,
	mutate func(*Reservation) error,
	extra func(pgx.Tx, *Reservation) error) (*Reservation, error) {

	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	r, err := lockReservation(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(r); err != nil {
		return nil, err
	}

	if err := persistStatus(ctx, tx, r); err != nil {
		return nil, err
	}

	if extra != nil {
		if err := extra(tx, r); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transition for %s: %w", id, err)
	}
	return r, nil
}

// ApproveReservation moves REQUESTED -> APPROVED and creates the deposit row
// in the same transaction; either both commit or neither does.
func ApproveReservation(ctx context.Context, db *pgxpool.Pool, id uuid.UUID) (*Reservation, error) {
	return transition(ctx, db,
		id,
		func(r *Reservation) error { return r.Approve() },
		func(tx pgx.Tx, r *Reservation) error {
			dh, err := deposit_models.NewDepositHistory(r.ID, r.RenterID, r.DepositAmount)
			if err != nil {
				return err
			}
			return deposit_models.CreateDepositHistoryTx(ctx, tx, dh)
		})
}

// RejectReservation moves REQUESTED -> REJECTED with the owner's reason.
func RejectReservation(ctx context.Context, db *pgxpool.Pool, id uuid.UUID, reason string) (*Reservation, error) {
	return transition(ctx, db, id,
		func(r *Reservation) error { return r.Reject(reason) }, nil)
}

// CancelReservation moves REQUESTED -> CANCELED.
func CancelReservation(ctx context.Context, db *pgxpool.Pool, id uuid.UUID) (*Reservation, error) {
	return transition(ctx, db, id,
		func(r *Reservation) error { return r.Cancel() }, nil)
}

// StartRental moves APPROVED -> IN_PROGRESS once now has reached the stored
// start time. Safe to call more than once: the second call fails the guard.
func StartRental(ctx context.Context, db *pgxpool.Pool, id uuid.UUID, now time.Time) (*Reservation, error) {
	return transition(ctx, db, id,
		func(r *Reservation) error { return r.Start(now) }, nil)
}

// CompleteRental moves IN_PROGRESS -> DONE and marks the deposit RETURNED in
// the same transaction.
func CompleteRental(ctx context.Context, db *pgxpool.Pool, id uuid.UUID, now time.Time) (*Reservation, error) {
	return transition(ctx, db,
		id,
		func(r *Reservation) error { return r.Complete(now) },
		settleDeposit(ctx))
}

// FailReservation moves APPROVED or IN_PROGRESS to the FAILED_* state for
// the party at fault and settles the deposit with the matching reason.
func FailReservation(ctx context.Context, db *pgxpool.Pool, id uuid.UUID, faultParty, reason string) (*Reservation, error) {
	return transition(ctx, db,
		id,
		func(r *Reservation) error { return r.Fail(faultParty, reason) },
		settleDeposit(ctx))
}

func settleDeposit(ctx context.Context) func(pgx.Tx, *Reservation) error {
	return func(tx pgx.Tx, r *Reservation) error {
		reason, err := DepositReturnReason(r.Status)
		if err != nil {
			return err
		}
		return deposit_models.SettleDepositTx(ctx, tx, r.ID, reason)
	}
}

// ListDueToStart returns ids of APPROVED reservations whose window has
// opened. Used by the scheduler; the per-row guard still re-checks.
func ListDueToStart(ctx context.Context, db *pgxpool.Pool, now time.Time, limit int) ([]uuid.UUID, error) {
	return listDue(ctx, db, shared_models.ReservationStatusApproved, "start_time", now, limit)
}

// ListDueToComplete returns ids of IN_PROGRESS reservations whose window has
// closed.
func ListDueToComplete(ctx context.Context, db *pgxpool.Pool, now time.Time, limit int) ([]uuid.UUID, error) {
	return listDue(ctx, db, shared_models.ReservationStatusInProgress, "end_time", now, limit)
}

func listDue(ctx context.Context, db *pgxpool.Pool, status, timeColumn string, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := db.Query(ctx, `
		SELECT id FROM reservations
		WHERE status = $1 AND `+timeColumn+` <= $2
		ORDER BY `+timeColumn+`
		LIMIT $3`, status, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reservations: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan due reservation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
