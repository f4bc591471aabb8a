package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/app"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.ServiceIdentity)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init identity service: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Printf("identity service stopped: %v", err)
		os.Exit(1)
	}
}
