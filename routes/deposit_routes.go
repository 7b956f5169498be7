package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmkim/billim/controllers/deposit_controller"
	"github.com/jmkim/billim/middlewares/auth"
)

// RegisterDepositRoutes wires deposit ledger reads.
func RegisterDepositRoutes(r *gin.Engine, db *pgxpool.Pool) error {
	controller, err := deposit_controller.NewDepositController(db)
	if err != nil {
		return err
	}

	r.GET("/reservations/:reservation_id/deposit", auth.AuthMiddleware(), controller.GetDepositByReservation)
	return nil
}
