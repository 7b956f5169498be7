package review_models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmkim/billim/logger"
	"github.com/jmkim/billim/models/shared_models"
)

// ErrDuplicateReview is returned when a party reviews the same reservation
// twice; the unique index on (reservation_id, reviewer_id) enforces it.
var ErrDuplicateReview = errors.New("review already submitted for this reservation")

// Review is a post-rental rating left by one party about the other. Reviews
// feed the weekly score aggregation.
type Review struct {
	ID            uuid.UUID `json:"id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	ReviewerID    uuid.UUID `json:"reviewer_id"`
	RevieweeID    uuid.UUID `json:"reviewee_id"`
	Score         int       `json:"score"`
	Comment       string    `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewReview validates the score range and builds a review.
func NewReview(reservationID, reviewerID, revieweeID uuid.UUID, score int, comment string) (*Review, error) {
	if score < 1 || score > 5 {
		return nil, fmt.Errorf("review score must be between 1 and 5, got %d", score)
	}

	id, err := shared_models.GenerateUUIDv7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for review: %w", err)
	}

	return &Review{
		ID:            id,
		ReservationID: reservationID,
		ReviewerID:    reviewerID,
		RevieweeID:    revieweeID,
		Score:         score,
		Comment:       comment,
		CreatedAt:     time.Now(),
	}, nil
}

// CreateReview inserts a review record.
func CreateReview(ctx context.Context, db *pgxpool.Pool, rv *Review) error {
	_, err := db.Exec(ctx, `
		INSERT INTO reviews (id, reservation_id, reviewer_id, reviewee_id, score, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rv.ID, rv.ReservationID, rv.ReviewerID, rv.RevieweeID, rv.Score, rv.Comment, rv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReview
		}
		return fmt.Errorf("failed to insert review: %w", err)
	}

	logger.InfoLogger.Infof("Review %s created for reservation %s", rv.ID, rv.ReservationID)
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// RevieweeAverage is one user's average received score over a window.
type RevieweeAverage struct {
	UserID  uuid.UUID
	Average float64
	Count   int
}

// AverageScoresReceivedBetween groups reviews received in [from, to) by
// reviewee. Users with no reviews in the window do not appear.
func AverageScoresReceivedBetween(ctx context.Context, db *pgxpool.Pool, from, to time.Time) ([]RevieweeAverage, error) {
	rows, err := db.Query(ctx, `
		SELECT reviewee_id, AVG(score)::float8, COUNT(*)
		FROM reviews
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY reviewee_id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate review scores: %w", err)
	}
	defer rows.Close()

	var out []RevieweeAverage
	for rows.Next() {
		var ra RevieweeAverage
		if err := rows.Scan(&ra.UserID, &ra.Average, &ra.Count); err != nil {
			return nil, fmt.Errorf("failed to scan reviewee average: %w", err)
		}
		out = append(out, ra)
	}
	return out, rows.Err()
}
