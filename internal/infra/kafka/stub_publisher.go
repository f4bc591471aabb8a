package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when the
// broker is disabled and no in-process bus is wired for a message type.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published", append([]zap.Field{
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
	}, fields...)...)
}

// PublishInvalidation logs cache.invalidation events.
func (p *StubPublisher) PublishInvalidation(_ context.Context, event domain.Invalidation) error {
	p.logEvent(TopicInvalidation, event.UserID, event.OccurredAt,
		zap.String("artifact", string(event.Artifact)),
		zap.String("reason", event.Reason),
		zap.String("source", event.Source),
	)
	return nil
}

// RecordAudit logs audit.events messages.
func (p *StubPublisher) RecordAudit(_ context.Context, msg domain.AuditMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	var userID string
	if msg.UserID != nil {
		userID = *msg.UserID
	}
	p.logEvent(TopicAudit, userID, msg.OccurredAt,
		zap.String("idempotency_key", msg.IdempotencyKey),
		zap.String("audit_type", string(msg.EventType)),
		zap.String("severity", string(msg.Severity)),
		zap.String("source", msg.Source),
	)
	return nil
}

// PublishNotification logs social.notifications requests.
func (p *StubPublisher) PublishNotification(_ context.Context, msg domain.NotificationMessage) error {
	p.logEvent(TopicNotification, msg.RecipientID, msg.OccurredAt,
		zap.String("idempotency_key", msg.IdempotencyKey),
		zap.String("kind", string(msg.Kind)),
		zap.String("entity_id", msg.EntityID),
	)
	return nil
}

var (
	_ port.InvalidationPublisher = (*StubPublisher)(nil)
	_ port.AuditRecorder         = (*StubPublisher)(nil)
	_ port.NotificationPublisher = (*StubPublisher)(nil)
)
