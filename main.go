package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jmkim/billim/config"
	"github.com/jmkim/billim/config/db"
	redisconfig "github.com/jmkim/billim/config/redis"
	"github.com/jmkim/billim/logger"
	"github.com/jmkim/billim/middlewares/cors"
	"github.com/jmkim/billim/routes"
	"github.com/jmkim/billim/scheduler"
	"github.com/jmkim/billim/services"
)

func init() {
	logger.InitLoggers()
	config.LoadEnv()
}

func main() {
	db.Connect()
	defer db.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Redis is optional: without it the hold fast path and pub/sub
	// notifications degrade, the reservation core still works.
	rdb, err := redisconfig.GetRedisClient(context.Background())
	var notifier services.Notifier
	if err != nil {
		logger.WarnLogger.Warnf("Redis unavailable, notifications fall back to logs: %v", err)
		notifier = services.LogNotifier{}
	} else {
		defer redisconfig.CloseRedis()
		notifier = services.NewRedisNotifier(rdb)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.CorsMiddleware())

	if err := routes.RegisterReservationRoutes(r, db.DB, rdb, notifier); err != nil {
		logger.ErrorLogger.Errorf("Failed to register reservation routes: %v", err)
		os.Exit(1)
	}
	if err := routes.RegisterDepositRoutes(r, db.DB); err != nil {
		logger.ErrorLogger.Errorf("Failed to register deposit routes: %v", err)
		os.Exit(1)
	}
	if err := routes.RegisterReviewRoutes(r, db.DB); err != nil {
		logger.ErrorLogger.Errorf("Failed to register review routes: %v", err)
		os.Exit(1)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok from billim server"})
	})

	// Background workers: rental start/complete poller and the weekly score
	// aggregation.
	schedCtx, stopSchedulers := context.WithCancel(context.Background())
	defer stopSchedulers()

	rentalScheduler := scheduler.NewRentalScheduler(&scheduler.PgRentalStore{DB: db.DB}, notifier)
	go rentalScheduler.Run(schedCtx)

	scoreAggregator := scheduler.NewScoreAggregator(&scheduler.PgScoreStore{DB: db.DB})
	go scoreAggregator.Run(schedCtx)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		fmt.Printf("Billim server listening on :%s\n", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Server failed to listen: %v\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Println("Shutting down server...")
	stopSchedulers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		fmt.Printf("Server forced to shutdown: %v\n", err)
	}

	fmt.Println("Server exited gracefully.")
}
