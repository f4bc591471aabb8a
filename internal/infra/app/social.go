package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	kafkainfra "github.com/tanvi-vanity/vanity-agent/internal/infra/kafka"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/lock"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/worker"
	postgresrepo "github.com/tanvi-vanity/vanity-agent/internal/repository/postgres"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/routes"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

func buildSocial(_ context.Context, p *platform) (*gin.Engine, error) {
	cfg := p.cfg

	identity, err := p.identityClient()
	if err != nil {
		return nil, err
	}

	socialService := usecase.NewSocialService(
		postgresrepo.NewPostRepository(p.pool),
		postgresrepo.NewEngagementRepository(p.pool),
		postgresrepo.NewNotificationRepository(p.pool),
		postgresrepo.NewCommunityRepository(p.pool),
		postgresrepo.NewEventRepository(p.pool),
		cfg.Reconciliation,
		p.logger,
	).
		WithTransactor(p.tx).
		WithAudit(p.auditRecorder(identity)).
		WithMetrics(p.metrics)

	p.schedule(worker.Config{
		Name:     "reconcile",
		Interval: cfg.Reconciliation.Interval,
		LockKey:  lock.Keys.CounterReconcile(),
	}, socialService.Reconcile)

	if err := p.consume(map[string]kafkainfra.MessageHandler{
		kafkainfra.TopicNotification: kafkainfra.NewNotificationConsumer(socialService),
	}); err != nil {
		return nil, fmt.Errorf("init notification consumer: %w", err)
	}
	if err := p.subscribeInvalidations(); err != nil {
		return nil, fmt.Errorf("init invalidation consumer: %w", err)
	}

	return routes.RegisterSocial(routes.SocialDependencies{
		Base:   p.base(),
		Auth:   p.peerAuth(identity),
		Social: socialService,
	})
}
