package telemetry

import (
	"context"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
)

func TestNewTracerProvider_WithoutEndpointPropagatesContext(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), config.TelemetrySettings{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTracerProvider returned error: %v", err)
	}
	if tp != nil {
		t.Fatalf("expected no provider without an endpoint")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown on nil provider returned error: %v", err)
	}

	inbound := http.Header{}
	inbound.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	ctx := ExtractHTTP(context.Background(), inbound)

	outbound := http.Header{}
	InjectHTTP(ctx, outbound)
	if got := outbound.Get("traceparent"); got != inbound.Get("traceparent") {
		t.Fatalf("expected traceparent to round trip, got %q", got)
	}
}
