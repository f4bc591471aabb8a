package app

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	kafkainfra "github.com/tanvi-vanity/vanity-agent/internal/infra/kafka"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/peer"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/stub"
	postgresrepo "github.com/tanvi-vanity/vanity-agent/internal/repository/postgres"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/routes"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

func buildCommerce(_ context.Context, p *platform) (*gin.Engine, error) {
	cfg := p.cfg

	identity, err := p.identityClient()
	if err != nil {
		return nil, err
	}
	orderNumbers, err := snowflake.NewNode(cfg.Snowflake.Node)
	if err != nil {
		return nil, fmt.Errorf("init order numbers: %w", err)
	}

	commerceService := usecase.NewCommerceService(
		postgresrepo.NewMarketRepository(p.pool),
		postgresrepo.NewCatalogRepository(p.pool),
		postgresrepo.NewCartRepository(p.pool),
		postgresrepo.NewOrderRepository(p.pool),
		postgresrepo.NewPaymentRepository(p.pool),
		stub.NewPaymentProcessor(),
		orderNumbers,
		p.logger,
	).
		WithTransactor(p.tx).
		WithAudit(p.auditRecorder(identity)).
		WithNotifications(notificationPublisher(p))

	if err := p.subscribeInvalidations(); err != nil {
		return nil, fmt.Errorf("init invalidation consumer: %w", err)
	}

	return routes.RegisterCommerce(routes.CommerceDependencies{
		Base:     p.base(),
		Auth:     p.peerAuth(identity),
		Commerce: commerceService,
	})
}

// notificationPublisher prefers the notification topic and falls back to the
// social service's internal sink.
func notificationPublisher(p *platform) port.NotificationPublisher {
	if p.events != nil {
		return p.events
	}
	if p.cfg.Peers.SocialURL != "" && p.issuer != nil {
		return peer.NewSocialClient(p.cfg.Peers.SocialURL, p.cfg.Peers.Timeout, p.cfg.App.Service, p.tokenSource(), p.http)
	}
	return kafkainfra.NewStubPublisher(p.logger)
}
