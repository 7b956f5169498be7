package review_controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmkim/billim/logger"
	"github.com/jmkim/billim/models/reservation_models"
	"github.com/jmkim/billim/models/review_models"
	"github.com/jmkim/billim/models/shared_models"
	"github.com/jmkim/billim/utils"
)

// ReviewRequest is the payload for rating the counterparty after a rental.
type ReviewRequest struct {
	Score   int    `json:"score" binding:"required"`
	Comment string `json:"comment"`
}

// ReviewController handles post-rental reviews.
type ReviewController struct {
	DB *pgxpool.Pool
}

func NewReviewController(db *pgxpool.Pool) (*ReviewController, error) {
	if db == nil {
		return nil, errors.New("database pool cannot be nil")
	}
	return &ReviewController{DB: db}, nil
}

// CreateReview handles POST /reservations/:reservation_id/review. Only a
// party of a DONE reservation may review, and the reviewee is always the
// other party.
func (rc *ReviewController) CreateReview(c *gin.Context) {
	reservationID, err := uuid.Parse(c.Param("reservation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reservation id"})
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	raw, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": utils.ErrUserIDNotFound.Error()})
		return
	}
	reviewerID, ok := raw.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user ID format"})
		return
	}

	ctx := c.Request.Context()

	reservation, err := reservation_models.GetReservationByID(ctx, rc.DB, reservationID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reservation not found"})
			return
		}
		logger.ErrorLogger.Errorf("Failed to fetch reservation for review: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	if reservation.Status != shared_models.ReservationStatusDone {
		c.JSON(http.StatusConflict, gin.H{"error": "only completed rentals can be reviewed"})
		return
	}

	var revieweeID uuid.UUID
	switch reviewerID {
	case reservation.OwnerID:
		revieweeID = reservation.RenterID
	case reservation.RenterID:
		revieweeID = reservation.OwnerID
	default:
		c.JSON(http.StatusForbidden, gin.H{"error": "not a party of this reservation"})
		return
	}

	review, err := review_models.NewReview(reservationID, reviewerID, revieweeID, req.Score, req.Comment)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := review_models.CreateReview(ctx, rc.DB, review); err != nil {
		if errors.Is(err, review_models.ErrDuplicateReview) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		logger.ErrorLogger.Errorf("Failed to create review: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create review"})
		return
	}

	c.JSON(http.StatusCreated, review)
}
