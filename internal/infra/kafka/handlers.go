package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

// InvalidationConsumer fans consumed invalidations out to local handlers.
type InvalidationConsumer struct {
	mu       sync.RWMutex
	handlers []port.InvalidationHandler
	logger   *zap.Logger
}

// NewInvalidationConsumer constructs an empty fan-out.
func NewInvalidationConsumer(logger *zap.Logger) *InvalidationConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvalidationConsumer{logger: logger}
}

// SubscribeInvalidations registers handler for every consumed invalidation.
func (c *InvalidationConsumer) SubscribeInvalidations(handler port.InvalidationHandler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.handlers = append(c.handlers, handler)
	c.mu.Unlock()
}

// HandleMessage decodes an invalidation record and notifies subscribers.
func (c *InvalidationConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var payload invalidationPayload
	if err := decodeEnvelope(msg, &payload); err != nil {
		return err
	}
	if payload.UserID == "" {
		return fmt.Errorf("invalidation without user id")
	}

	event := payload.toDomain()
	c.mu.RLock()
	handlers := append([]port.InvalidationHandler(nil), c.handlers...)
	c.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, event)
	}
	c.logger.Debug("invalidation applied",
		zap.String("user_id", event.UserID),
		zap.String("artifact", string(event.Artifact)),
		zap.String("source", event.Source),
	)
	return nil
}

// AuditConsumer feeds consumed audit messages into the local audit sink.
type AuditConsumer struct {
	sink port.AuditRecorder
}

// NewAuditConsumer wraps sink.
func NewAuditConsumer(sink port.AuditRecorder) *AuditConsumer {
	return &AuditConsumer{sink: sink}
}

// HandleMessage decodes an audit record and records it.
func (c *AuditConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var payload auditPayload
	if err := decodeEnvelope(msg, &payload); err != nil {
		return err
	}
	if err := c.sink.RecordAudit(ctx, payload.toDomain()); err != nil {
		return fmt.Errorf("record audit %s: %w", payload.IdempotencyKey, err)
	}
	return nil
}

// NotificationConsumer feeds consumed notification requests into the social service.
type NotificationConsumer struct {
	sink port.NotificationPublisher
}

// NewNotificationConsumer wraps sink.
func NewNotificationConsumer(sink port.NotificationPublisher) *NotificationConsumer {
	return &NotificationConsumer{sink: sink}
}

// HandleMessage decodes a notification record and stores it.
func (c *NotificationConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var payload notificationPayload
	if err := decodeEnvelope(msg, &payload); err != nil {
		return err
	}
	if err := c.sink.PublishNotification(ctx, payload.toDomain()); err != nil {
		return fmt.Errorf("store notification %s: %w", payload.IdempotencyKey, err)
	}
	return nil
}

var (
	_ port.InvalidationSubscriber = (*InvalidationConsumer)(nil)
	_ MessageHandler              = (*InvalidationConsumer)(nil)
	_ MessageHandler              = (*AuditConsumer)(nil)
	_ MessageHandler              = (*NotificationConsumer)(nil)
)
