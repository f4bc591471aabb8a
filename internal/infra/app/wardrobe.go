package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/stub"
	postgresrepo "github.com/tanvi-vanity/vanity-agent/internal/repository/postgres"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/routes"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

func buildWardrobe(_ context.Context, p *platform) (*gin.Engine, error) {
	identity, err := p.identityClient()
	if err != nil {
		return nil, err
	}

	wardrobeService := usecase.NewWardrobeService(
		postgresrepo.NewWardrobeItemRepository(p.pool),
		postgresrepo.NewImageAnalysisRepository(p.pool),
		postgresrepo.NewOutfitRepository(p.pool),
		postgresrepo.NewCollectionRepository(p.pool),
		stub.NewImageAnalyzer(),
		p.logger,
	).WithInvalidations(p.invalidations())

	// Logouts reach the token cache through the bus.
	if err := p.subscribeInvalidations(); err != nil {
		return nil, fmt.Errorf("init invalidation consumer: %w", err)
	}

	return routes.RegisterWardrobe(routes.WardrobeDependencies{
		Base:     p.base(),
		Auth:     p.peerAuth(identity),
		Wardrobe: wardrobeService,
	})
}
