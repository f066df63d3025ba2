package kit

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Endpoint is a transport-agnostic action function.
// Each dashboard query is an Endpoint; HTTP handlers and MCP tools both
// dispatch to the same Endpoints.
type Endpoint func(ctx context.Context, request any) (response any, err error)

// Middleware wraps an Endpoint with cross-cutting concerns (logging, metrics).
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first is outermost.
// Chain(a, b, c)(endpoint) == a(b(c(endpoint)))
func Chain(outer Middleware, others ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(others) - 1; i >= 0; i-- {
			next = others[i](next)
		}
		return outer(next)
	}
}

var endpointDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ganaderia_endpoint_duration_seconds",
	Help:    "Endpoint latency by endpoint, transport and outcome",
	Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
}, []string{"endpoint", "transport", "outcome"})

// Instrument records the latency of every call in a Prometheus histogram.
func Instrument(name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, request)
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			endpointDuration.WithLabelValues(name, GetTransport(ctx), outcome).Observe(time.Since(start).Seconds())
			return resp, err
		}
	}
}

// Logging logs failed calls at warn level and successful ones at debug.
func Logging(logger *slog.Logger, name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, request)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"request_id", GetRequestID(ctx),
				"duration", time.Since(start),
			}
			if err != nil {
				logger.Warn("endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("endpoint served", attrs...)
			}
			return resp, err
		}
	}
}
