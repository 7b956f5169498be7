package user_models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Score bounds used by the weekly aggregation.
const (
	ScoreFloor = 0.0
	ScoreCeil  = 100.0
	ScoreBase  = 30.0
)

// UpdateUserScore writes a recomputed reputation score.
func UpdateUserScore(ctx context.Context, db *pgxpool.Pool, userID uuid.UUID, score float64) error {
	tag, err := db.Exec(ctx, `UPDATE users SET score = $2, updated_at = $3 WHERE id = $1`,
		userID, score, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update score for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found for score update", userID)
	}
	return nil
}

// GetUserScore reads a user's current reputation score.
func GetUserScore(ctx context.Context, db *pgxpool.Pool, userID uuid.UUID) (float64, error) {
	var score float64
	err := db.QueryRow(ctx, `SELECT score FROM users WHERE id = $1`, userID).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch score for user %s: %w", userID, err)
	}
	return score, nil
}

// ListInactiveUsers returns users with no received review since the cutoff,
// together with their current score. These decay in the weekly batch.
func ListInactiveUsers(ctx context.Context, db *pgxpool.Pool, cutoff time.Time) (map[uuid.UUID]float64, error) {
	rows, err := db.Query(ctx, `
		SELECT u.id, u.score
		FROM users u
		WHERE NOT EXISTS (
			SELECT 1 FROM reviews r
			WHERE r.reviewee_id = u.id AND r.created_at >= $1
		)`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list inactive users: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]float64)
	for rows.Next() {
		var id uuid.UUID
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("failed to scan inactive user: %w", err)
		}
		out[id] = score
	}
	return out, rows.Err()
}
