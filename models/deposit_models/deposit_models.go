package deposit_models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmkim/billim/logger"
	"github.com/jmkim/billim/models/shared_models"
	"github.com/jmkim/billim/utils"
)

// DepositHistory is the single source of truth for money-at-risk on a
// reservation. Exactly one row exists per approved reservation; the amount
// is fixed at approval and never recomputed.
type DepositHistory struct {
	ID            uuid.UUID `json:"id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	PayerID       uuid.UUID `json:"payer_id"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	ReturnReason  string    `json:"return_reason"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewDepositHistory builds a PENDING deposit row for a freshly approved
// reservation.
func NewDepositHistory(reservationID, payerID uuid.UUID, amount int64) (*DepositHistory, error) {
	if amount < 0 {
		return nil, fmt.Errorf("deposit amount must not be negative, got %d", amount)
	}

	id, err := shared_models.GenerateUUIDv7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for deposit history: %w", err)
	}

	now := time.Now()
	return &DepositHistory{
		ID:            id,
		ReservationID: reservationID,
		PayerID:       payerID,
		Amount:        amount,
		Status:        shared_models.DepositStatusPending,
		ReturnReason:  shared_models.ReturnReasonNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CreateDepositHistoryTx inserts the deposit row inside the approval
// transaction. The unique index on reservation_id enforces the 1:1 rule; a
// second insert for the same reservation fails instead of silently winning.
func CreateDepositHistoryTx(ctx context.Context, tx pgx.Tx, dh *DepositHistory) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO deposit_histories (
			id, reservation_id, payer_id, amount, status, return_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		dh.ID, dh.ReservationID, dh.PayerID, dh.Amount, dh.Status, dh.ReturnReason,
		dh.CreatedAt, dh.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("deposit history already exists for reservation %s", dh.ReservationID)
		}
		return fmt.Errorf("failed to insert deposit history: %w", err)
	}

	logger.InfoLogger.Infof("Deposit history %s created for reservation %s (amount %d)",
		dh.ID, dh.ReservationID, dh.Amount)
	return nil
}

// SettleDepositTx transitions the deposit PENDING -> RETURNED with a reason,
// inside the same transaction as the reservation's terminal transition.
// Fails if no deposit exists or it is already settled.
func SettleDepositTx(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID, returnReason string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE deposit_histories
		SET status = $2, return_reason = $3, updated_at = $4
		WHERE reservation_id = $1 AND status = $5`,
		reservationID, shared_models.DepositStatusReturned, returnReason,
		time.Now(), shared_models.DepositStatusPending)
	if err != nil {
		return fmt.Errorf("failed to settle deposit for reservation %s: %w", reservationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no pending deposit to settle for reservation %s: %w", reservationID, utils.ErrNotFound)
	}

	logger.InfoLogger.Infof("Deposit for reservation %s settled (%s)", reservationID, returnReason)
	return nil
}

// GetDepositByReservation fetches the deposit row for a reservation. Returns
// ErrNotFound before approval; callers must not assume the row exists.
func GetDepositByReservation(ctx context.Context, db *pgxpool.Pool, reservationID uuid.UUID) (*DepositHistory, error) {
	var dh DepositHistory
	err := db.QueryRow(ctx, `
		SELECT id, reservation_id, payer_id, amount, status, return_reason, created_at, updated_at
		FROM deposit_histories
		WHERE reservation_id = $1`, reservationID).Scan(
		&dh.ID, &dh.ReservationID, &dh.PayerID, &dh.Amount, &dh.Status,
		&dh.ReturnReason, &dh.CreatedAt, &dh.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch deposit for reservation %s: %w", reservationID, err)
	}
	return &dh, nil
}
