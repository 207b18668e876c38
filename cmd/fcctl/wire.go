//go:build wireinject

package main

import (
	"context"
	"log/slog"

	"github.com/google/wire"
	"github.com/onkernel/fcctl/cmd/fcctl/config"
	"github.com/onkernel/fcctl/lib/firecracker"
	"github.com/onkernel/fcctl/lib/otel"
	"github.com/onkernel/fcctl/lib/providers"
)

// application struct to hold initialized components
type application struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config *config.Config
	Otel   *otel.Provider
	Client *firecracker.Client
	Retry  firecracker.RetryPolicy
}

// initializeApp is the injector function
func initializeApp(cfg *config.Config) (*application, func(), error) {
	panic(wire.Build(
		providers.ProvideOtel,
		providers.ProvideLogger,
		providers.ProvideContext,
		providers.ProvideLimiter,
		providers.ProvideMetrics,
		providers.ProvideClient,
		providers.ProvideRetryPolicy,
		wire.Struct(new(application), "*"),
	))
}
