package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
)

func TestNewClient_PingAndKey(t *testing.T) {
	server := miniredis.RunT(t)

	host, port := server.Host(), server.Server().Addr().Port
	client, err := NewClient(config.RedisSettings{Host: host, Port: port, KeyPrefix: "vanity:social"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if got := client.Key("lock"); got != "vanity:social:lock" {
		t.Fatalf("expected prefixed key, got %q", got)
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	server := miniredis.RunT(t)
	host, port := server.Host(), server.Server().Addr().Port
	server.Close()

	if _, err := NewClient(config.RedisSettings{Host: host, Port: port}, zap.NewNop()); err == nil {
		t.Fatalf("expected ping failure against a stopped server")
	}
}
