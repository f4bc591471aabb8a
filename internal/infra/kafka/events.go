package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher publishes invalidations, audit messages and notification
// requests to Kafka. Messages are keyed by user so per-user order holds
// within a partition.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type inboundEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Payload   json.RawMessage  `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type invalidationPayload struct {
	UserID     string    `json:"user_id"`
	Artifact   string    `json:"artifact"`
	Reason     string    `json:"reason,omitempty"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

type auditPayload struct {
	IdempotencyKey string         `json:"idempotency_key"`
	UserID         *string        `json:"user_id,omitempty"`
	EventType      string         `json:"event_type"`
	Severity       string         `json:"severity"`
	Description    string         `json:"description"`
	Source         string         `json:"source"`
	IPAddress      string         `json:"ip_address,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	Endpoint       string         `json:"endpoint,omitempty"`
	Method         string         `json:"method,omitempty"`
	RequestID      string         `json:"request_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

type notificationPayload struct {
	IdempotencyKey string    `json:"idempotency_key"`
	RecipientID    string    `json:"recipient_id"`
	SenderID       *string   `json:"sender_id,omitempty"`
	Kind           string    `json:"kind"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	EntityType     string    `json:"entity_type,omitempty"`
	EntityID       string    `json:"entity_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Service,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if userID != "" {
		message.Key = sarama.StringEncoder(userID)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishInvalidation announces a stale (user, artifact) pair.
func (p *EventPublisher) PublishInvalidation(ctx context.Context, event domain.Invalidation) error {
	payload := invalidationPayload{
		UserID:     event.UserID,
		Artifact:   string(event.Artifact),
		Reason:     event.Reason,
		Source:     event.Source,
		OccurredAt: event.OccurredAt.UTC(),
	}
	return p.publish(ctx, "", TopicInvalidation, event.UserID, event.OccurredAt, payload)
}

// RecordAudit ships an audit message to the identity service's sink. The
// idempotency key doubles as the event id so redeliveries are recognizable.
func (p *EventPublisher) RecordAudit(ctx context.Context, msg domain.AuditMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	var userID string
	if msg.UserID != nil {
		userID = *msg.UserID
	}

	payload := auditPayload{
		IdempotencyKey: msg.IdempotencyKey,
		UserID:         msg.UserID,
		EventType:      string(msg.EventType),
		Severity:       string(msg.Severity),
		Description:    msg.Description,
		Source:         msg.Source,
		IPAddress:      msg.Context.IPAddress,
		UserAgent:      msg.Context.UserAgent,
		Endpoint:       msg.Context.Endpoint,
		Method:         msg.Context.Method,
		RequestID:      msg.Context.RequestID,
		Metadata:       msg.Metadata,
		OccurredAt:     msg.OccurredAt.UTC(),
	}
	return p.publish(ctx, msg.IdempotencyKey, TopicAudit, userID, msg.OccurredAt, payload)
}

// PublishNotification asks the social service to notify a user.
func (p *EventPublisher) PublishNotification(ctx context.Context, msg domain.NotificationMessage) error {
	payload := notificationPayload{
		IdempotencyKey: msg.IdempotencyKey,
		RecipientID:    msg.RecipientID,
		SenderID:       msg.SenderID,
		Kind:           string(msg.Kind),
		Title:          msg.Title,
		Message:        msg.Message,
		EntityType:     msg.EntityType,
		EntityID:       msg.EntityID,
		OccurredAt:     msg.OccurredAt.UTC(),
	}
	return p.publish(ctx, msg.IdempotencyKey, TopicNotification, msg.RecipientID, msg.OccurredAt, payload)
}

func decodeEnvelope(msg *sarama.ConsumerMessage, into any) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}
	var envelope inboundEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("envelope %s has no payload", envelope.EventID)
	}
	if err := json.Unmarshal(envelope.Payload, into); err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return nil
}

func (p invalidationPayload) toDomain() domain.Invalidation {
	return domain.Invalidation{
		UserID:     p.UserID,
		Artifact:   domain.Artifact(p.Artifact),
		Reason:     p.Reason,
		Source:     p.Source,
		OccurredAt: p.OccurredAt,
	}
}

func (p auditPayload) toDomain() domain.AuditMessage {
	return domain.AuditMessage{
		IdempotencyKey: p.IdempotencyKey,
		UserID:         p.UserID,
		EventType:      domain.AuditEventType(p.EventType),
		Severity:       domain.Severity(p.Severity),
		Description:    p.Description,
		Source:         p.Source,
		Context: domain.RequestContext{
			IPAddress: p.IPAddress,
			UserAgent: p.UserAgent,
			Endpoint:  p.Endpoint,
			Method:    p.Method,
			RequestID: p.RequestID,
		},
		Metadata:   p.Metadata,
		OccurredAt: p.OccurredAt,
	}
}

func (p notificationPayload) toDomain() domain.NotificationMessage {
	return domain.NotificationMessage{
		IdempotencyKey: p.IdempotencyKey,
		RecipientID:    p.RecipientID,
		SenderID:       p.SenderID,
		Kind:           domain.NotificationKind(p.Kind),
		Title:          p.Title,
		Message:        p.Message,
		EntityType:     p.EntityType,
		EntityID:       p.EntityID,
		OccurredAt:     p.OccurredAt,
	}
}

var (
	_ port.InvalidationPublisher = (*EventPublisher)(nil)
	_ port.AuditRecorder         = (*EventPublisher)(nil)
	_ port.NotificationPublisher = (*EventPublisher)(nil)
)
