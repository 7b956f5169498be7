package post_models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmkim/billim/utils"
)

// Post is a listing offered for rental. The reservation core only ever reads
// a post's identity and owner; listing management lives elsewhere.
type Post struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// GetPostByID fetches the fields the reservation core needs.
func GetPostByID(ctx context.Context, db *pgxpool.Pool, id uuid.UUID) (*Post, error) {
	var p Post
	err := db.QueryRow(ctx, `
		SELECT id, owner_id, title, created_at
		FROM posts
		WHERE id = $1`, id).Scan(&p.ID, &p.OwnerID, &p.Title, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch post %s: %w", id, err)
	}
	return &p, nil
}

// GetPostOwner returns the owner of a post, ErrNotFound if the post is
// unknown.
func GetPostOwner(ctx context.Context, db *pgxpool.Pool, id uuid.UUID) (uuid.UUID, error) {
	var ownerID uuid.UUID
	err := db.QueryRow(ctx, `SELECT owner_id FROM posts WHERE id = $1`, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, utils.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to fetch owner for post %s: %w", id, err)
	}
	return ownerID, nil
}
