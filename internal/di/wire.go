//go:build wireinject
// +build wireinject

package di

import (
	"StockCast/pkg/config"
	"StockCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Storage and data source
		ProvideBarStore,
		ProvideSeriesCache,
		ProvideQuoteProvider,
		ProvideFetcher,

		// Models
		ProvideRegistry,
		ProvidePredictor,
		ProvideQueue,

		// Use cases
		ProvidePredictionService,
		ProvideRetrainCoordinator,
		ProvideScheduler,

		// HTTP surface and application server
		ProvideHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
