package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jmkim/billim/logger"
)

// NotificationChannel is the Redis pub/sub channel the delivery worker
// subscribes to. Transport past this point is the collaborator's concern.
const NotificationChannel = "reservation_events"

// Notifier receives a {reservationId, newStatus} event after every
// successful reservation transition. Emission is fire-and-forget: delivery
// failures are logged and never roll back the transition that produced them.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, reservationID uuid.UUID, newStatus string)
}

// StatusChangeEvent is the wire shape published to the channel.
type StatusChangeEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	NewStatus     string    `json:"new_status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RedisNotifier publishes status-change events to a Redis channel.
type RedisNotifier struct {
	Client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{Client: client}
}

var _ Notifier = (*RedisNotifier)(nil)

func (n *RedisNotifier) NotifyStatusChange(ctx context.Context, reservationID uuid.UUID, newStatus string) {
	event := StatusChangeEvent{
		ReservationID: reservationID,
		NewStatus:     newStatus,
		OccurredAt:    time.Now(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to marshal status change event for %s: %v", reservationID, err)
		return
	}

	if err := n.Client.Publish(ctx, NotificationChannel, payload).Err(); err != nil {
		logger.ErrorLogger.Errorf("Failed to publish status change for %s (-> %s): %v",
			reservationID, newStatus, err)
		return
	}

	logger.InfoLogger.Infof("Published status change: reservation %s -> %s", reservationID, newStatus)
}

// LogNotifier is the fallback emitter used when Redis is not configured.
type LogNotifier struct{}

var _ Notifier = (*LogNotifier)(nil)

func (LogNotifier) NotifyStatusChange(_ context.Context, reservationID uuid.UUID, newStatus string) {
	logger.InfoLogger.Info(fmt.Sprintf("Status change (log only): reservation %s -> %s", reservationID, newStatus))
}
