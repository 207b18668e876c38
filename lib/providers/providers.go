package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/onkernel/fcctl/cmd/fcctl/config"
	"github.com/onkernel/fcctl/lib/firecracker"
	"github.com/onkernel/fcctl/lib/logger"
	"github.com/onkernel/fcctl/lib/otel"
	"github.com/onkernel/fcctl/lib/ratelimit"
)

// ProvideOtel initializes telemetry. The cleanup flushes exporters.
func ProvideOtel(cfg *config.Config) (*otel.Provider, func(), error) {
	p, shutdown, err := otel.Init(context.Background(), otel.Config{
		Enabled:     cfg.OtelEnabled,
		Endpoint:    cfg.OtelEndpoint,
		ServiceName: cfg.OtelServiceName,
		Insecure:    cfg.OtelInsecure,
		Version:     cfg.Version,
		Env:         cfg.Env,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init otel: %w", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "otel shutdown: %v\n", err)
		}
	}
	return p, cleanup, nil
}

// ProvideLogger provides a structured logger on stderr, mirrored to OTLP when enabled.
// Stdout is reserved for command output.
func ProvideLogger(cfg *config.Config, p *otel.Provider) (*slog.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logger.New(os.Stderr, logger.Config{Level: level, Format: cfg.LogFormat}, p.LogHandler), nil
}

// ProvideContext provides a context with logger attached
func ProvideContext(log *slog.Logger) context.Context {
	return logger.AddToContext(context.Background(), log)
}

// ProvideMetrics provides the control-plane client instruments.
func ProvideMetrics(p *otel.Provider) (*firecracker.Metrics, error) {
	return firecracker.NewMetrics(p.MeterFor("firecracker"))
}

// ProvideLimiter provides the request limiter, nil when disabled.
func ProvideLimiter(cfg *config.Config) (*ratelimit.Limiter, error) {
	if cfg.RateLimitCapacity <= 0 {
		return nil, nil
	}
	mode, err := ratelimit.ParseMode(cfg.RateLimitMode)
	if err != nil {
		return nil, err
	}
	return ratelimit.New(ratelimit.Config{
		Capacity: cfg.RateLimitCapacity,
		Refill:   cfg.RateLimitRefill,
		Interval: cfg.RateLimitInterval,
		Mode:     mode,
	})
}

// ProvideClient provides the control-plane client.
func ProvideClient(cfg *config.Config, limiter *ratelimit.Limiter, metrics *firecracker.Metrics, p *otel.Provider) (*firecracker.Client, error) {
	return firecracker.New(firecracker.Config{
		BaseAddress: cfg.Socket,
		Timeout:     cfg.Timeout,
	},
		firecracker.WithLimiter(limiter),
		firecracker.WithMetrics(metrics),
		firecracker.WithTracer(p.TracerFor("firecracker")),
	)
}

// ProvideRetryPolicy provides the retry policy for CLI operations. The
// backoff timings come from the default policy; RetryMaxTries of one or less
// means a single attempt.
func ProvideRetryPolicy(cfg *config.Config) (firecracker.RetryPolicy, error) {
	if cfg.RetryMaxTries < 0 {
		return firecracker.RetryPolicy{}, fmt.Errorf("retry max tries must not be negative, got %d", cfg.RetryMaxTries)
	}
	policy := firecracker.DefaultRetryPolicy()
	policy.MaxTries = uint(max(cfg.RetryMaxTries, 1))
	return policy, nil
}
