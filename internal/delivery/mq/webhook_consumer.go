package mq

import (
	"context"
	"log/slog"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/gateway"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/metrics"
	"github.com/LavaJover/shvark-settlement-service/internal/usecase/settlement"
)

const (
	notificationSourceKafka = "kafka"

	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

// WebhookConsumer applies provider webhooks that an edge ingress has already
// verified and forwarded to Kafka.
type WebhookConsumer struct {
	subscriber domain.SubscriberPort
	uc         settlement.SettlementUsecase
	topic      string
	groupID    string
	metrics    *metrics.SettlementMetrics
	logger     *slog.Logger
	retryDelay time.Duration
}

func NewWebhookConsumer(
	subscriber domain.SubscriberPort,
	uc settlement.SettlementUsecase,
	topic, groupID string,
	settlementMetrics *metrics.SettlementMetrics,
	logger *slog.Logger,
) *WebhookConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookConsumer{
		subscriber: subscriber,
		uc:         uc,
		topic:      topic,
		groupID:    groupID,
		metrics:    settlementMetrics,
		logger:     logger.With("component", "webhook_consumer", "topic", topic),
		retryDelay: defaultRetryDelay,
	}
}

// Run blocks until ctx is cancelled or the subscription ends. A message is
// committed once it is applied, recognised as settled, or found unusable.
// Unavailability of the engine's collaborators holds the message and retries
// it, so later offsets never get committed past it.
func (c *WebhookConsumer) Run(ctx context.Context) error {
	msgs, err := c.subscriber.Subscribe(ctx, c.topic, c.groupID)
	if err != nil {
		return err
	}
	c.logger.Info("webhook consumer started", "group_id", c.groupID)

	for msg := range msgs {
		if !c.process(ctx, msg) {
			break
		}
	}
	c.logger.Info("webhook consumer stopped")
	return ctx.Err()
}

// process retries msg until it is done with, then commits it. It reports
// false when ctx ended first and the message stays uncommitted.
func (c *WebhookConsumer) process(ctx context.Context, msg domain.Message) bool {
	delay := c.retryDelay
	for !c.handle(ctx, msg) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
	if msg.Commit != nil {
		if err := msg.Commit(ctx); err != nil {
			// повторная доставка безопасна, уведомления идемпотентны
			c.logger.Warn("failed to commit webhook", "key", string(msg.Key), "error", err.Error())
		}
	}
	return true
}

// handle reports whether msg is finished with. Only retryable failures
// return false.
func (c *WebhookConsumer) handle(ctx context.Context, msg domain.Message) bool {
	notification, err := gateway.ParseNotification(msg.Value)
	if err != nil {
		c.logger.Warn("skipping undecodable webhook", "key", string(msg.Key), "error", err.Error())
		c.metrics.RecordNotification(notificationSourceKafka, domain.NotificationRejected)
		return true
	}

	outcome, err := c.uc.HandleGatewayNotification(ctx, notification)
	switch domain.ErrorKind(err) {
	case "":
	case domain.KindConflict:
		outcome = domain.NotificationDuplicate
	case domain.KindGatewayUnavailable, domain.KindInternal:
		c.logger.Error("failed to apply webhook, will retry",
			"event_id", notification.EventID,
			"event_type", notification.EventType,
			"external_id", notification.ExternalID,
			"error", err.Error(),
		)
		return false
	default:
		c.logger.Warn("dropping webhook",
			"event_id", notification.EventID,
			"event_type", notification.EventType,
			"external_id", notification.ExternalID,
			"error", err.Error(),
		)
		c.metrics.RecordNotification(notificationSourceKafka, domain.NotificationRejected)
		return true
	}
	c.metrics.RecordNotification(notificationSourceKafka, outcome)
	c.logger.Debug("webhook applied", "event_id", notification.EventID, "outcome", string(outcome))
	return true
}
