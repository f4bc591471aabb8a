package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/lock"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/peer"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/stub"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/worker"
	postgresrepo "github.com/tanvi-vanity/vanity-agent/internal/repository/postgres"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/routes"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

func buildStyling(_ context.Context, p *platform) (*gin.Engine, error) {
	cfg := p.cfg

	identity, err := p.identityClient()
	if err != nil {
		return nil, err
	}
	var wardrobe port.WardrobeSource
	if cfg.Peers.WardrobeURL != "" {
		wardrobe = peer.NewWardrobeClient(cfg.Peers.WardrobeURL, cfg.Peers.Timeout, p.http)
	} else {
		p.logger.Warn("peers.wardrobe_url not set, suggestions ignore the wardrobe")
	}

	userContext := usecase.NewUserContextFetcher(cfg.App.Service, cfg.UserContext, identity, wardrobe, p.logger).
		WithMetrics(p.metrics)
	userContext.Subscribe(p.local)

	stylingService := usecase.NewStylingService(
		postgresrepo.NewStyleProfileRepository(p.pool),
		postgresrepo.NewStyleAnalysisRepository(p.pool),
		postgresrepo.NewSuggestionRepository(p.pool),
		postgresrepo.NewFeedbackRepository(p.pool),
		stub.NewStyleInferencer(),
		userContext,
		p.logger,
	).WithTransactor(p.tx)

	p.schedule(worker.Config{
		Name:     "style-normalize",
		Interval: cfg.Styling.NormalizeInterval,
		LockKey:  lock.Keys.StyleNormalization(),
	}, stylingService.NormalizeProfiles)

	if err := p.subscribeInvalidations(); err != nil {
		return nil, fmt.Errorf("init invalidation consumer: %w", err)
	}

	return routes.RegisterStyling(routes.StylingDependencies{
		Base:    p.base(),
		Auth:    p.peerAuth(identity),
		Styling: stylingService,
	})
}
