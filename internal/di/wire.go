//go:build wireinject
// +build wireinject

package di

import (
	"TrendGate/pkg/config"
	"TrendGate/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Market data
		ProvideBarSource,
		ProvideTimeframeCache,

		// Analysis and decisions
		ProvideAnalyzer,
		ProvideDecisionCache,
		ProvideEngine,
		ProvideConditionSource,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideDecisionStore,
		ProvideKafkaProducer,
		ProvideDecisionSink,
		ProvideKafkaConsumer,

		// Pipeline
		ProvideSignalQueue,
		ProvideOrchestrator,
		ProvideFragmentPipeline,
		ProvideStreamCollector,
		ProvideOutcomeHandler,

		// HTTP and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
