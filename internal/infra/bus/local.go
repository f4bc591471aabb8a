// Package bus carries invalidations between components of a single process.
package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

// Local delivers every published invalidation to each subscriber synchronously.
// A panicking subscriber is logged and does not prevent delivery to the rest.
type Local struct {
	mu       sync.RWMutex
	handlers []port.InvalidationHandler
	logger   *zap.Logger
}

// NewLocal builds an empty bus.
func NewLocal(logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{logger: logger}
}

// SubscribeInvalidations registers handler.
func (b *Local) SubscribeInvalidations(handler port.InvalidationHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
}

// PublishInvalidation notifies every subscriber.
func (b *Local) PublishInvalidation(ctx context.Context, event domain.Invalidation) error {
	b.mu.RLock()
	handlers := append([]port.InvalidationHandler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.deliver(ctx, handler, event)
	}
	return nil
}

func (b *Local) deliver(ctx context.Context, handler port.InvalidationHandler, event domain.Invalidation) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("invalidation handler panicked",
				zap.Any("panic", r),
				zap.String("user_id", event.UserID),
				zap.String("artifact", string(event.Artifact)),
			)
		}
	}()
	handler(ctx, event)
}

// Fanout publishes to several publishers. Failures are logged and the first
// one is returned after every publisher has been tried.
type Fanout struct {
	publishers []port.InvalidationPublisher
	logger     *zap.Logger
}

// NewFanout combines publishers, skipping nil entries.
func NewFanout(logger *zap.Logger, publishers ...port.InvalidationPublisher) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]port.InvalidationPublisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			kept = append(kept, p)
		}
	}
	return &Fanout{publishers: kept, logger: logger}
}

// PublishInvalidation forwards event to every publisher.
func (f *Fanout) PublishInvalidation(ctx context.Context, event domain.Invalidation) error {
	var first error
	for _, p := range f.publishers {
		if err := p.PublishInvalidation(ctx, event); err != nil {
			f.logger.Warn("invalidation publish failed",
				zap.String("user_id", event.UserID),
				zap.String("artifact", string(event.Artifact)),
				zap.Error(err),
			)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

var (
	_ port.InvalidationPublisher  = (*Local)(nil)
	_ port.InvalidationSubscriber = (*Local)(nil)
	_ port.InvalidationPublisher  = (*Fanout)(nil)
)
