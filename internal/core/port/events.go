package port

import (
	"context"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

// InvalidationPublisher announces stale user-scoped artifacts.
type InvalidationPublisher interface {
	PublishInvalidation(ctx context.Context, event domain.Invalidation) error
}

// InvalidationHandler reacts to an invalidation.
type InvalidationHandler func(ctx context.Context, event domain.Invalidation)

// InvalidationSubscriber registers handlers for invalidations.
type InvalidationSubscriber interface {
	SubscribeInvalidations(handler InvalidationHandler)
}

// AuditRecorder delivers audit messages to the identity service's sink.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, msg domain.AuditMessage) error
}

// NotificationPublisher asks the social service to notify a user.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, msg domain.NotificationMessage) error
}
