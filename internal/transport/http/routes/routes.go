package routes

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/handlers"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

// Base encapsulates what every service router needs.
type Base struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// PeerAuth is how a sibling service authenticates callers: end users through
// the identity service, other services through service tokens.
type PeerAuth struct {
	Verifier      port.TokenVerifier
	Cache         *middleware.TokenCache
	ServiceTokens middleware.ServiceTokenVerifier
	Timeout       time.Duration
}

func (a PeerAuth) requireUser(logger *zap.Logger) gin.HandlerFunc {
	return middleware.RequireUser(a.Verifier, middleware.AuthOptions{
		Cache:   a.Cache,
		Timeout: a.Timeout,
		Logger:  logger,
	})
}

// IdentityServices groups the identity usecases the HTTP layer depends on.
type IdentityServices struct {
	Auth     *usecase.AuthService
	Users    *usecase.UserService
	Sessions *usecase.SessionService
	Settings *usecase.SettingsService
	Audit    *usecase.AuditService
	Exports  *usecase.ExportService
	Accounts *usecase.AccountService
}

// IdentityDependencies configures the identity router.
type IdentityDependencies struct {
	Base
	RateLimiter   *middleware.RateLimiter
	ServiceTokens middleware.ServiceTokenVerifier
	Services      IdentityServices
}

// StylingDependencies configures the styling router.
type StylingDependencies struct {
	Base
	Auth    PeerAuth
	Styling *usecase.StylingService
}

// WardrobeDependencies configures the wardrobe router.
type WardrobeDependencies struct {
	Base
	Auth     PeerAuth
	Wardrobe *usecase.WardrobeService
}

// SocialDependencies configures the social router.
type SocialDependencies struct {
	Base
	Auth   PeerAuth
	Social *usecase.SocialService
}

// CommerceDependencies configures the commerce router.
type CommerceDependencies struct {
	Base
	Auth     PeerAuth
	Commerce *usecase.CommerceService
}

// newEngine builds the middleware chain and the operational endpoints shared
// by every service.
func newEngine(b Base, service string) (*gin.Engine, error) {
	if b.Config == nil {
		return nil, fmt.Errorf("routes: config is required")
	}
	if b.Logger == nil {
		b.Logger = zap.NewNop()
	}
	if b.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if b.Registry != nil {
		registerer, gatherer = b.Registry, b.Registry
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Registerer: registerer,
		Service:    service,
	})
	if err != nil {
		return nil, fmt.Errorf("routes: http metrics: %w", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing(service))
	r.Use(middleware.Logger(b.Logger))
	r.Use(httpMetrics.Handler())
	r.Use(middleware.Deadline(b.Config.HTTP.RequestTimeout))

	healthOptions := []handlers.HealthOption{handlers.WithServiceName(service)}
	if b.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", b.Database.Ping))
	}
	if b.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", b.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r, nil
}

// RegisterIdentity configures the identity service router.
func RegisterIdentity(deps IdentityDependencies) (*gin.Engine, error) {
	r, err := newEngine(deps.Base, config.ServiceIdentity)
	if err != nil {
		return nil, err
	}
	svc := deps.Services

	// The identity service resolves its own tokens; caching them here would
	// only delay logout.
	requireUser := middleware.RequireUser(svc.Auth, middleware.AuthOptions{Logger: deps.Logger})

	authGroup := r.Group("/auth")
	authGroup.Use(buildRateLimit(deps, "auth_register_ip", "/auth/register", deps.Config.RateLimit.RegisterMaxAttempts))
	authGroup.Use(buildRateLimit(deps, "auth_refresh_ip", "/auth/refresh-token", deps.Config.RateLimit.RefreshMaxAttempts))
	handlers.NewAuthHandler(svc.Auth).RegisterRoutes(authGroup, requireUser, buildLoginMiddlewares(deps)...)

	exportHandler := handlers.NewExportHandler(svc.Exports)
	exportHandler.RegisterDownload(r)

	user := r.Group("")
	user.Use(requireUser)
	handlers.NewProfileHandler(svc.Users, svc.Accounts).RegisterRoutes(user)
	handlers.NewSettingsHandler(svc.Settings).RegisterRoutes(user)
	handlers.NewAuditHandler(svc.Audit).RegisterRoutes(user)
	exportHandler.RegisterRoutes(user)
	handlers.NewSessionHandler(svc.Sessions).RegisterRoutes(user.Group("/sessions"))

	internal := r.Group("/internal")
	internal.Use(middleware.RequireService(deps.ServiceTokens,
		config.ServiceStyling, config.ServiceWardrobe, config.ServiceSocial, config.ServiceCommerce))
	handlers.NewInternalIdentityHandler(svc.Audit, svc.Users).RegisterRoutes(internal)

	return r, nil
}

// RegisterStyling configures the styling service router.
func RegisterStyling(deps StylingDependencies) (*gin.Engine, error) {
	r, err := newEngine(deps.Base, config.ServiceStyling)
	if err != nil {
		return nil, err
	}

	style := r.Group("/style")
	style.Use(deps.Auth.requireUser(deps.Logger))
	handlers.NewStylingHandler(deps.Styling).RegisterRoutes(style)

	internal := r.Group("/internal")
	internal.Use(middleware.RequireService(deps.Auth.ServiceTokens, config.ServiceIdentity))
	handlers.NewFragmentHandler(deps.Styling).RegisterRoutes(internal)

	return r, nil
}

// RegisterWardrobe configures the wardrobe service router.
func RegisterWardrobe(deps WardrobeDependencies) (*gin.Engine, error) {
	r, err := newEngine(deps.Base, config.ServiceWardrobe)
	if err != nil {
		return nil, err
	}

	user := r.Group("")
	user.Use(deps.Auth.requireUser(deps.Logger))
	handlers.NewWardrobeHandler(deps.Wardrobe).RegisterRoutes(user)

	internal := r.Group("/internal")
	internal.Use(middleware.RequireService(deps.Auth.ServiceTokens, config.ServiceIdentity))
	handlers.NewFragmentHandler(deps.Wardrobe).RegisterRoutes(internal)

	return r, nil
}

// RegisterSocial configures the social service router.
func RegisterSocial(deps SocialDependencies) (*gin.Engine, error) {
	r, err := newEngine(deps.Base, config.ServiceSocial)
	if err != nil {
		return nil, err
	}

	user := r.Group("")
	user.Use(deps.Auth.requireUser(deps.Logger))
	handlers.NewSocialHandler(deps.Social).RegisterRoutes(user)

	internal := r.Group("/internal")
	internal.Use(middleware.RequireService(deps.Auth.ServiceTokens,
		config.ServiceIdentity, config.ServiceStyling, config.ServiceWardrobe, config.ServiceCommerce))
	handlers.NewNotificationSinkHandler(deps.Social).RegisterRoutes(internal)

	return r, nil
}

// RegisterCommerce configures the commerce service router. The catalog is public.
func RegisterCommerce(deps CommerceDependencies) (*gin.Engine, error) {
	r, err := newEngine(deps.Base, config.ServiceCommerce)
	if err != nil {
		return nil, err
	}

	commerceHandler := handlers.NewCommerceHandler(deps.Commerce)
	commerceHandler.RegisterCatalog(r)

	user := r.Group("")
	user.Use(deps.Auth.requireUser(deps.Logger))
	commerceHandler.RegisterRoutes(user)

	return r, nil
}

func buildLoginMiddlewares(deps IdentityDependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	rule := middleware.RateLimitRule{
		Name:       "auth_login_ip",
		Limit:      limit,
		Window:     rateLimitWindow(deps.Config, time.Minute),
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}

// buildRateLimit limits one route of a group by client IP. Requests to other
// routes of the group pass through untouched.
func buildRateLimit(deps IdentityDependencies, name, path string, limit int) gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	clientIP := middleware.ClientIPIdentifier()
	limiter := deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:   name,
		Limit:  limit,
		Window: rateLimitWindow(deps.Config, time.Hour),
		Identifier: func(c *gin.Context) (string, bool) {
			if c.FullPath() != path {
				return "", false
			}
			return clientIP(c)
		},
	})
	return limiter
}

func rateLimitWindow(cfg *config.AppConfig, fallback time.Duration) time.Duration {
	if cfg.RateLimit.WindowDuration > 0 {
		return cfg.RateLimit.WindowDuration
	}
	return fallback
}
