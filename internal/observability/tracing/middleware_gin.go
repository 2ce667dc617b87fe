package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ispbill/internal/observability/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per routed request. Probes are not traced.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("ispbill/http")
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || route == "/health" || route == "/metrics" {
			c.Next()
			return
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		}
		attrs = append(attrs, routeAttributes(c, route)...)
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(SafeAttributes(attrs...)...),
		)
		defer span.End()

		if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status < http.StatusInternalServerError {
			return
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			if safeErr := SafeError(lastErr.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

// routeAttributes names the resource a route acts on.
func routeAttributes(c *gin.Context, route string) []attribute.KeyValue {
	id := strings.TrimSpace(c.Param("id"))
	switch {
	case strings.HasPrefix(route, "/jobs/"):
		return []attribute.KeyValue{attribute.String("ispbill.job", c.Param("name"))}
	case strings.Contains(route, "/connections/:id") && id != "":
		return []attribute.KeyValue{attribute.String("ispbill.connection_id", id)}
	case strings.Contains(route, "/invoices/:id") && id != "":
		return []attribute.KeyValue{attribute.String("ispbill.invoice_id", id)}
	}
	return nil
}
