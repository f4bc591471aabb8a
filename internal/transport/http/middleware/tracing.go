package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/telemetry"
)

const tracerName = "github.com/tanvi-vanity/vanity-agent/internal/transport/http"

// Tracing continues the W3C trace carried by the request, or starts a new one,
// and records a server span per request. Without a configured provider the
// global no-op tracer is used and only propagation takes effect.
func Tracing(service string) gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)

	return func(c *gin.Context) {
		ctx := telemetry.ExtractHTTP(c.Request.Context(), c.Request.Header)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("service.component", service),
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
		if userID, ok := GetAuthenticatedUserID(c); ok {
			span.SetAttributes(attribute.String("enduser.id", userID))
		}
	}
}
