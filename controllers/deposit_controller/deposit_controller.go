package deposit_controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmkim/billim/logger"
	"github.com/jmkim/billim/models/deposit_models"
	"github.com/jmkim/billim/utils"
)

// DepositController exposes read access to the deposit ledger.
type DepositController struct {
	DB *pgxpool.Pool
}

func NewDepositController(db *pgxpool.Pool) (*DepositController, error) {
	if db == nil {
		return nil, errors.New("database pool cannot be nil")
	}
	return &DepositController{DB: db}, nil
}

// GetDepositByReservation handles GET /reservations/:reservation_id/deposit.
// Returns 404 before approval: the deposit row only exists once the owner
// has approved.
func (dc *DepositController) GetDepositByReservation(c *gin.Context) {
	reservationID, err := uuid.Parse(c.Param("reservation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reservation id"})
		return
	}

	deposit, err := deposit_models.GetDepositByReservation(c.Request.Context(), dc.DB, reservationID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no deposit for this reservation"})
			return
		}
		logger.ErrorLogger.Errorf("Failed to fetch deposit: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, deposit)
}
