//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SalesCast/pkg/config"
	"SalesCast/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideSalesSource,
		ProvideResultCache,
		ProvideModelCache,
		ProvideForecastPublisher,

		// Use cases
		ProvideForecastOptions,
		ProvideForecastUsecase,

		// Transport
		ProvideRateLimiter,
		ProvideForecastHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
