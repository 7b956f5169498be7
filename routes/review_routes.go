package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmkim/billim/controllers/review_controller"
	"github.com/jmkim/billim/middlewares/auth"
)

// RegisterReviewRoutes wires post-rental review submission.
func RegisterReviewRoutes(r *gin.Engine, db *pgxpool.Pool) error {
	controller, err := review_controller.NewReviewController(db)
	if err != nil {
		return err
	}

	r.POST("/reservations/:reservation_id/review", auth.AuthMiddleware(), controller.CreateReview)
	return nil
}
