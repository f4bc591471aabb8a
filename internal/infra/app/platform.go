package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/bus"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/database"
	kafkainfra "github.com/tanvi-vanity/vanity-agent/internal/infra/kafka"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/lock"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/logger"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/peer"
	redisinfra "github.com/tanvi-vanity/vanity-agent/internal/infra/redis"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/security"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/telemetry"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/worker"
	postgresrepo "github.com/tanvi-vanity/vanity-agent/internal/repository/postgres"
	redisrepo "github.com/tanvi-vanity/vanity-agent/internal/repository/redis"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/routes"
)

// platform holds the resources every service builds the same way: logging,
// telemetry, Postgres, the optional Redis and Kafka connections, and the
// in-process invalidation bus.
type platform struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	tracer   *telemetry.TracerProvider
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	pool     *pgxpool.Pool
	tx       *postgresrepo.TxManager
	redis    *redisinfra.Client
	locker   lock.Locker
	producer *kafkainfra.Producer
	events   *kafkainfra.EventPublisher
	local    *bus.Local
	issuer   *security.ServiceTokenIssuer
	http     *http.Client

	consumers []*kafkainfra.ConsumerGroup
	runners   []*worker.Runner
}

func newPlatform(ctx context.Context, cfg *config.AppConfig) (_ *platform, err error) {
	log, err := logger.New(cfg.App.Env, cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log = log.With(zap.String("service", cfg.App.Service))

	p := &platform{
		cfg:      cfg,
		logger:   log,
		registry: prometheus.NewRegistry(),
		local:    bus.NewLocal(log),
		http:     &http.Client{Transport: http.DefaultTransport},
	}
	defer func() {
		if err != nil {
			p.close(context.Background())
		}
	}()

	if p.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if p.metrics, err = telemetry.NewMetrics(p.registry, cfg.App.Service); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	if p.pool, err = database.NewPostgresPool(ctx, cfg.App.Service, cfg.Postgres, log); err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	p.tx = postgresrepo.NewTxManager(p.pool)

	p.locker = lock.NewMemoryLocker()
	if cfg.Redis.Host != "" {
		if p.redis, err = redisinfra.NewClient(cfg.Redis, log); err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		p.locker = lock.NewRedisLocker(redisrepo.NewLockRepository(p.redis.Client(), p.redis.Key("locks")))
	} else {
		log.Info("redis not configured, using in-process locks")
	}

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		if p.producer, err = kafkainfra.NewProducer(cfg.Kafka, log); err != nil {
			return nil, fmt.Errorf("init kafka producer: %w", err)
		}
		p.events = kafkainfra.NewEventPublisher(p.producer, cfg.App, log)
	} else {
		log.Info("kafka disabled, events stay in process")
	}

	if cfg.ServiceAuth.Secret != "" {
		if p.issuer, err = security.NewServiceTokenIssuer(cfg.ServiceAuth); err != nil {
			return nil, fmt.Errorf("init service auth: %w", err)
		}
	} else {
		log.Warn("service auth secret not set, internal routes are disabled")
	}

	return p, nil
}

// base is what the router needs from the platform.
func (p *platform) base() routes.Base {
	b := routes.Base{
		Config:   p.cfg,
		Logger:   p.logger,
		Registry: p.registry,
		Database: p.pool,
	}
	if p.redis != nil {
		b.Cache = p.redis
	}
	return b
}

// invalidations returns where this service announces stale artifacts. With
// Kafka the record reaches every replica of every service, this one included;
// without it only local subscribers hear about it.
func (p *platform) invalidations() port.InvalidationPublisher {
	if p.events != nil {
		return p.events
	}
	return bus.NewFanout(p.logger, p.local, kafkainfra.NewStubPublisher(p.logger))
}

// subscribeInvalidations feeds records from the invalidation topic into the
// local bus. Safe to call once per service.
func (p *platform) subscribeInvalidations() error {
	if p.events == nil {
		return nil
	}
	group, err := kafkainfra.NewBroadcastConsumerGroup(p.cfg.Kafka, p.logger)
	if err != nil {
		return err
	}
	consumer := kafkainfra.NewInvalidationConsumer(p.logger)
	consumer.SubscribeInvalidations(func(ctx context.Context, event domain.Invalidation) {
		_ = p.local.PublishInvalidation(ctx, event)
	})
	group.Handle(kafkainfra.TopicInvalidation, consumer)
	p.consumers = append(p.consumers, group)
	return nil
}

// consume joins the service's shared consumer group for work topics such as
// audit events and notifications.
func (p *platform) consume(handlers map[string]kafkainfra.MessageHandler) error {
	if p.events == nil || len(handlers) == 0 {
		return nil
	}
	group, err := kafkainfra.NewConsumerGroup(p.cfg.Kafka, p.logger)
	if err != nil {
		return err
	}
	for topic, handler := range handlers {
		group.Handle(topic, handler)
	}
	p.consumers = append(p.consumers, group)
	return nil
}

// serviceTokens returns the issuer as a verifier, or nil when service auth is off.
func (p *platform) serviceTokens() middleware.ServiceTokenVerifier {
	if p.issuer == nil {
		return nil
	}
	return p.issuer
}

// tokenSource returns the issuer as a token source, or nil when service auth is off.
func (p *platform) tokenSource() peer.ServiceTokenSource {
	if p.issuer == nil {
		return nil
	}
	return p.issuer
}

// identityClient is the sibling services' view of the identity service.
func (p *platform) identityClient() (*peer.IdentityClient, error) {
	if p.cfg.Peers.IdentityURL == "" {
		return nil, errors.New("peers.identity_url is required")
	}
	return peer.NewIdentityClient(p.cfg.Peers.IdentityURL, p.cfg.Peers.Timeout, p.cfg.App.Service, p.tokenSource(), p.http), nil
}

// peerAuth authenticates end users against the identity service, caching
// verdicts until a logout or the cache TTL says otherwise.
func (p *platform) peerAuth(identity *peer.IdentityClient) routes.PeerAuth {
	cache := middleware.NewTokenCache(p.cfg.AuthCache, p.metrics)
	cache.Subscribe(p.local)
	return routes.PeerAuth{
		Verifier:      identity,
		Cache:         cache,
		ServiceTokens: p.serviceTokens(),
		Timeout:       p.cfg.Peers.Timeout,
	}
}

// auditRecorder prefers the audit topic and falls back to calling the
// identity sink directly.
func (p *platform) auditRecorder(identity *peer.IdentityClient) port.AuditRecorder {
	if p.events != nil {
		return p.events
	}
	if identity != nil && p.issuer != nil {
		return identity
	}
	return kafkainfra.NewStubPublisher(p.logger)
}

// schedule adds a periodic job. A non-positive interval disables it.
func (p *platform) schedule(cfg worker.Config, task worker.Task) {
	if cfg.Interval <= 0 {
		p.logger.Info("job disabled", zap.String("job", cfg.Name))
		return
	}
	p.runners = append(p.runners, worker.NewRunner(cfg, task, p.locker, p.metrics, p.logger))
}

// close releases everything newPlatform opened, in reverse order.
func (p *platform) close(ctx context.Context) {
	for _, group := range p.consumers {
		if err := group.Close(); err != nil {
			p.logger.Warn("close consumer group", zap.Error(err))
		}
	}
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if p.redis != nil {
		_ = p.redis.Close()
	}
	if p.pool != nil {
		p.pool.Close()
	}
	if err := p.tracer.Shutdown(ctx); err != nil {
		p.logger.Warn("shutdown tracer", zap.Error(err))
	}
	_ = p.logger.Sync()
}
