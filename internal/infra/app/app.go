// Package app wires each service's dependencies and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/worker"
)

// Application is one service: its router plus the jobs and consumers that
// run beside it.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	platform *platform
}

type builder func(ctx context.Context, p *platform) (*gin.Engine, error)

// New builds the service named by cfg.App.Service.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	builders := map[string]builder{
		config.ServiceIdentity: buildIdentity,
		config.ServiceStyling:  buildStyling,
		config.ServiceWardrobe: buildWardrobe,
		config.ServiceSocial:   buildSocial,
		config.ServiceCommerce: buildCommerce,
	}
	build, ok := builders[cfg.App.Service]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", cfg.App.Service)
	}

	p, err := newPlatform(ctx, cfg)
	if err != nil {
		return nil, err
	}
	engine, err := build(ctx, p)
	if err != nil {
		p.close(context.Background())
		return nil, fmt.Errorf("build %s: %w", cfg.App.Service, err)
	}

	return &Application{cfg: cfg, engine: engine, platform: p}, nil
}

// Run serves HTTP until ctx is cancelled, then drains requests, jobs and
// consumers before releasing connections.
func (a *Application) Run(ctx context.Context) error {
	log := a.platform.logger
	defer a.platform.close(context.Background())

	jobs := worker.NewGroup(a.platform.runners...)
	jobs.Start(ctx)
	defer jobs.Stop()

	consumerCtx, stopConsumers := context.WithCancel(ctx)
	var consumers sync.WaitGroup
	for _, group := range a.platform.consumers {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := group.Run(consumerCtx); err != nil {
				log.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}
	defer func() {
		stopConsumers()
		consumers.Wait()
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("starting service",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.Int("jobs", len(a.platform.runners)),
		zap.Int("consumers", len(a.platform.consumers)),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		log.Info("service stopped")
		return nil
	case err := <-serverErrCh:
		return err
	}
}
