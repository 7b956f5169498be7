package reservation_controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jmkim/billim/logger"
	"github.com/jmkim/billim/models/post_models"
	"github.com/jmkim/billim/models/reservation_models"
	"github.com/jmkim/billim/models/shared_models"
	"github.com/jmkim/billim/services"
	"github.com/jmkim/billim/utils"
)

// Redis hold keys for the request fast path. The authoritative conflict
// check is the row-locked query in the model; the hold only sheds obviously
// doomed concurrent requests before they queue on the post lock.
const (
	redisHoldPrefix = "rental_hold:"
	redisHoldExpiry = time.Minute
)

// ReservationRequest is the payload for requesting a reservation.
type ReservationRequest struct {
	PostID        uuid.UUID `json:"post_id" binding:"required"`
	StartTime     time.Time `json:"start_time" binding:"required"`
	EndTime       time.Time `json:"end_time" binding:"required"`
	Amount        int64     `json:"amount"`
	DepositAmount int64     `json:"deposit_amount"`
}

// RejectRequest carries the owner's rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// FailRequest names the party at fault and an optional reason.
type FailRequest struct {
	FaultParty string `json:"fault_party" binding:"required"`
	Reason     string `json:"reason"`
}

// ReservationController owns the reservation lifecycle endpoints.
type ReservationController struct {
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Notifier services.Notifier
}

func NewReservationController(db *pgxpool.Pool, rdb *redis.Client, notifier services.Notifier) (*ReservationController, error) {
	if db == nil {
		return nil, errors.New("database pool cannot be nil")
	}
	if notifier == nil {
		notifier = services.LogNotifier{}
	}
	return &ReservationController{DB: db, Redis: rdb, Notifier: notifier}, nil
}

func holdKey(postID uuid.UUID, start, end time.Time) string {
	return fmt.Sprintf("%s%s:%d:%d", redisHoldPrefix, postID, start.Unix(), end.Unix())
}

// tryHoldWindow takes a short-lived advisory hold on the exact window. A
// Redis outage degrades to the database check alone.
func (rc *ReservationController) tryHoldWindow(ctx context.Context, postID uuid.UUID, start, end time.Time) bool {
	if rc.Redis == nil {
		return true
	}
	set, err := rc.Redis.SetNX(ctx, holdKey(postID, start, end), "held", redisHoldExpiry).Result()
	if err != nil {
		logger.WarnLogger.Warnf("Redis hold check failed for post %s: %v", postID, err)
		return true
	}
	return set
}

func (rc *ReservationController) releaseHold(ctx context.Context, postID uuid.UUID, start, end time.Time) {
	if rc.Redis == nil {
		return
	}
	if err := rc.Redis.Del(ctx, holdKey(postID, start, end)).Err(); err != nil {
		logger.WarnLogger.Warnf("Failed to release hold for post %s: %v", postID, err)
	}
}

// RequestReservation handles POST /reservations.
func (rc *ReservationController) RequestReservation(c *gin.Context) {
	var req ReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	renterID, ok := currentUserID(c)
	if !ok {
		return
	}

	// Window validation happens before any lock or hold.
	if !req.StartTime.Before(req.EndTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.ErrInvalidWindow.Error()})
		return
	}

	ctx := c.Request.Context()

	ownerID, err := post_models.GetPostOwner(ctx, rc.DB, req.PostID)
	if err != nil {
		respondReservationError(c, err)
		return
	}
	if ownerID == renterID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot reserve your own post"})
		return
	}

	reservation, err := reservation_models.NewReservation(
		req.PostID, renterID, ownerID, req.StartTime, req.EndTime, req.Amount, req.DepositAmount)
	if err != nil {
		respondReservationError(c, err)
		return
	}

	if !rc.tryHoldWindow(ctx, req.PostID, req.StartTime, req.EndTime) {
		c.JSON(http.StatusConflict, gin.H{"error": "window was just requested by another user"})
		return
	}

	if err := reservation_models.CreateReservation(ctx, rc.DB, reservation); err != nil {
		rc.releaseHold(ctx, req.PostID, req.StartTime, req.EndTime)
		respondReservationError(c, err)
		return
	}

	rc.Notifier.NotifyStatusChange(ctx, reservation.ID, reservation.Status)
	c.JSON(http.StatusCreated, reservation)
}

// GetReservation handles GET /reservations/:reservation_id.
func (rc *ReservationController) GetReservation(c *gin.Context) {
	id, ok := pathReservationID(c)
	if !ok {
		return
	}

	reservation, err := reservation_models.GetReservationByID(c.Request.Context(), rc.DB, id)
	if err != nil {
		respondReservationError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservation)
}

// GetReservationsForPost handles GET /posts/:post_id/reservations.
func (rc *ReservationController) GetReservationsForPost(c *gin.Context) {
	postID, err := uuid.Parse(c.Param("post_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	reservations, err := reservation_models.GetReservationsForPost(c.Request.Context(), rc.DB, postID)
	if err != nil {
		respondReservationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": reservations})
}

// Approve handles PATCH /reservations/:reservation_id/approve. Owner only;
// approval creates the PENDING deposit in the same transaction.
func (rc *ReservationController) Approve(c *gin.Context) {
	rc.transition(c, partyOwner, func(ctx context.Context, id uuid.UUID) (*reservation_models.Reservation, error) {
		return reservation_models.ApproveReservation(ctx, rc.DB, id)
	})
}

// Reject handles PATCH /reservations/:reservation_id/reject. Owner only.
func (rc *ReservationController) Reject(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	rc.transition(c, partyOwner, func(ctx context.Context, id uuid.UUID) (*reservation_models.Reservation, error) {
		return reservation_models.RejectReservation(ctx, rc.DB, id, req.Reason)
	})
}

// Cancel handles PATCH /reservations/:reservation_id/cancel. Renter only,
// and only while still REQUESTED.
func (rc *ReservationController) Cancel(c *gin.Context) {
	rc.transition(c, partyRenter, func(ctx context.Context, id uuid.UUID) (*reservation_models.Reservation, error) {
		return reservation_models.CancelReservation(ctx, rc.DB, id)
	})
}

// Start handles PATCH /reservations/:reservation_id/start, the manual
// counterpart of the scheduler's StartRentalJob.
func (rc *ReservationController) Start(c *gin.Context) {
	rc.transition(c, partyEither, func(ctx context.Context, id uuid.UUID) (*reservation_models.Reservation, error) {
		return reservation_models.StartRental(ctx, rc.DB, id, time.Now())
	})
}

// Complete handles PATCH /reservations/:reservation_id/complete.
func (rc *ReservationController) Complete(c *gin.Context) {
	rc.transition(c, partyEither, func(ctx context.Context, id uuid.UUID) (*reservation_models.Reservation, error) {
		return reservation_models.CompleteRental(ctx, rc.DB, id, time.Now())
	})
}

// Fail handles PATCH /reservations/:reservation_id/fail. Either party can
// report a failure while the reservation is APPROVED or IN_PROGRESS.
func (rc *ReservationController) Fail(c *gin.Context) {
	var req FailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.FaultParty != shared_models.FaultPartyOwner && req.FaultParty != shared_models.FaultPartyRenter {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fault_party must be OWNER or RENTER"})
		return
	}

	rc.transition(c, partyEither, func(ctx context.Context, id uuid.UUID) (*reservation_models.Reservation, error) {
		return reservation_models.FailReservation(ctx, rc.DB, id, req.FaultParty, req.Reason)
	})
}

type partyRule int

const (
	partyOwner partyRule = iota
	partyRenter
	partyEither
)

// transition wires the shared plumbing of every owner/renter-driven
// transition endpoint: id parsing, party authorization, the model call, the
// error mapping and the fire-and-forget notification.
func (rc *ReservationController) transition(c *gin.Context, rule partyRule,
	apply func(context.Context, uuid.UUID) (*reservation_models.Reservation, error)) {

	id, ok := pathReservationID(c)
	if !ok {
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	current, err := reservation_models.GetReservationByID(ctx, rc.DB, id)
	if err != nil {
		respondReservationError(c, err)
		return
	}
	if !allowedParty(current, userID, rule) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a permitted party for this reservation"})
		return
	}

	updated, err := apply(ctx, id)
	if err != nil {
		respondReservationError(c, err)
		return
	}

	rc.Notifier.NotifyStatusChange(ctx, updated.ID, updated.Status)
	c.JSON(http.StatusOK, updated)
}

func allowedParty(r *reservation_models.Reservation, userID uuid.UUID, rule partyRule) bool {
	switch rule {
	case partyOwner:
		return r.OwnerID == userID
	case partyRenter:
		return r.RenterID == userID
	default:
		return r.OwnerID == userID || r.RenterID == userID
	}
}

func pathReservationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("reservation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reservation id"})
		return uuid.Nil, false
	}
	return id, true
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": utils.ErrUserIDNotFound.Error()})
		return uuid.Nil, false
	}
	userID, ok := raw.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user ID format"})
		return uuid.Nil, false
	}
	return userID, true
}

// respondReservationError maps the core error taxonomy onto HTTP codes.
func respondReservationError(c *gin.Context, err error) {
	var conflictErr *utils.ReservationConflictError
	var transitionErr *utils.InvalidStateTransitionError

	switch {
	case errors.Is(err, utils.ErrInvalidWindow):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":           "reservation window conflicts with an existing reservation",
			"conflicting_ids": conflictErr.ConflictingIDs,
		})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     transitionErr.Error(),
			"current":   transitionErr.Current,
			"attempted": transitionErr.Attempted,
		})
	default:
		logger.ErrorLogger.Errorf("Reservation operation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
