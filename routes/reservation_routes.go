package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jmkim/billim/controllers/reservation_controller"
	"github.com/jmkim/billim/middlewares"
	"github.com/jmkim/billim/middlewares/auth"
	"github.com/jmkim/billim/services"
)

// RegisterReservationRoutes wires the reservation lifecycle endpoints.
func RegisterReservationRoutes(r *gin.Engine, db *pgxpool.Pool, rdb *redis.Client, notifier services.Notifier) error {
	controller, err := reservation_controller.NewReservationController(db, rdb, notifier)
	if err != nil {
		return err
	}

	reservations := r.Group("/reservations")
	reservations.Use(auth.AuthMiddleware())
	{
		reservations.POST("", middlewares.NewRateLimiter("20-1m", "requestReservation"), controller.RequestReservation)
		reservations.GET("/:reservation_id", controller.GetReservation)
		reservations.PATCH("/:reservation_id/approve", controller.Approve)
		reservations.PATCH("/:reservation_id/reject", controller.Reject)
		reservations.PATCH("/:reservation_id/cancel", controller.Cancel)
		reservations.PATCH("/:reservation_id/start", controller.Start)
		reservations.PATCH("/:reservation_id/complete", controller.Complete)
		reservations.PATCH("/:reservation_id/fail", controller.Fail)
	}

	posts := r.Group("/posts")
	posts.Use(auth.AuthMiddleware())
	{
		posts.GET("/:post_id/reservations", controller.GetReservationsForPost)
	}

	return nil
}
