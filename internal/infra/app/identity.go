package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/filestore"
	kafkainfra "github.com/tanvi-vanity/vanity-agent/internal/infra/kafka"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/lock"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/peer"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/security"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/worker"
	postgresrepo "github.com/tanvi-vanity/vanity-agent/internal/repository/postgres"
	redisrepo "github.com/tanvi-vanity/vanity-agent/internal/repository/redis"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/routes"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

func buildIdentity(ctx context.Context, p *platform) (*gin.Engine, error) {
	cfg := p.cfg

	users := postgresrepo.NewUserRepository(p.pool)
	sessions := postgresrepo.NewSessionRepository(p.pool)
	privacy := postgresrepo.NewPrivacySettingsRepository(p.pool)
	securitySettings := postgresrepo.NewSecuritySettingsRepository(p.pool)
	analytics := postgresrepo.NewAnalyticsRepository(p.pool)
	exports := postgresrepo.NewExportRepository(p.pool)
	audits := postgresrepo.NewAuditRepository(p.pool)
	dataAccess := postgresrepo.NewDataAccessRepository(p.pool)

	hasher, err := security.NewArgon2Hasher(port.Argon2Params{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}
	tokens := security.NewOpaqueTokenGenerator()
	policy := security.NewPasswordPolicy(security.DefaultPasswordValidator())
	invalidations := p.invalidations()

	auditService := usecase.NewAuditService(audits, dataAccess, p.logger).WithMetrics(p.metrics)

	authService, err := usecase.NewAuthService(cfg, users, sessions, securitySettings, hasher, policy, tokens, auditService, p.logger)
	if err != nil {
		return nil, fmt.Errorf("init auth service: %w", err)
	}
	authService.WithTransactor(p.tx).WithInvalidations(invalidations).WithAnalytics(analytics)

	var rateLimiter *middleware.RateLimiter
	if p.redis != nil {
		window := cfg.RateLimit.WindowDuration
		if window <= 0 {
			window = time.Minute
		}
		authService.WithRateLimits(redisrepo.NewRateLimitRepository(p.redis.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: p.redis.Key("auth-attempts"),
			TTL:       2 * window,
		}))
		rateLimiter = middleware.NewRateLimiter(redisrepo.NewRateLimitRepository(p.redis.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: p.redis.Key("rate-limit"),
			TTL:       time.Hour,
		}), p.logger)
	} else {
		p.logger.Warn("redis not configured, login throttling and route rate limits are off")
	}

	userService := usecase.NewUserService(users, securitySettings, analytics, auditService, p.logger).
		WithTransactor(p.tx).
		WithInvalidations(invalidations)
	sessionService := usecase.NewSessionService(sessions, invalidations, p.logger)
	settingsService := usecase.NewSettingsService(privacy, securitySettings, auditService, p.logger).
		WithTransactor(p.tx).
		WithAnalytics(analytics)
	accountService := usecase.NewAccountService(users, sessions, auditService, p.logger).
		WithTransactor(p.tx).
		WithInvalidations(invalidations)

	files, err := filestore.New(ctx, cfg.Export, p.logger)
	if err != nil {
		return nil, fmt.Errorf("init export storage: %w", err)
	}
	exportService := usecase.NewExportService(cfg.Export, exports, users, auditService, files, tokens, p.logger).
		WithTransactor(p.tx).
		WithAnalytics(analytics).
		WithMetrics(p.metrics).
		WithFragmentSources(fragmentSources(p)...)

	sweeper := usecase.NewRetentionSweeper(audits, dataAccess, sessions, users, cfg.Retention.CriticalYears, p.logger)

	p.schedule(worker.Config{
		Name:     "export",
		Interval: cfg.Export.PollInterval,
		LockKey:  lock.Keys.ExportWorker(),
		Timeout:  cfg.Export.JobTimeout,
	}, exportService.ProcessPending)
	p.schedule(worker.Config{
		Name:     "retention",
		Interval: cfg.Retention.Interval,
		LockKey:  lock.Keys.RetentionSweep(),
	}, sweeper.Sweep)

	if err := p.consume(map[string]kafkainfra.MessageHandler{
		kafkainfra.TopicAudit: kafkainfra.NewAuditConsumer(auditService),
	}); err != nil {
		return nil, fmt.Errorf("init audit consumer: %w", err)
	}

	return routes.RegisterIdentity(routes.IdentityDependencies{
		Base:          p.base(),
		RateLimiter:   rateLimiter,
		ServiceTokens: p.serviceTokens(),
		Services: routes.IdentityServices{
			Auth:     authService,
			Users:    userService,
			Sessions: sessionService,
			Settings: settingsService,
			Audit:    auditService,
			Exports:  exportService,
			Accounts: accountService,
		},
	})
}

// fragmentSources are the peers whose data joins a user's export archive.
func fragmentSources(p *platform) []port.ExportFragmentSource {
	var sources []port.ExportFragmentSource
	for _, url := range []string{p.cfg.Peers.StylingURL, p.cfg.Peers.WardrobeURL} {
		if url == "" || p.issuer == nil {
			continue
		}
		sources = append(sources, peer.NewExportFragmentClient(url, p.cfg.Peers.Timeout, p.cfg.App.Service, p.tokenSource(), p.http))
	}
	return sources
}
