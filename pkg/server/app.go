// Package server owns the application lifecycle: startup order, signal
// handling and graceful shutdown.
package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"TrendGate/internal/handler/api"
	"TrendGate/internal/middleware"
	"TrendGate/internal/usecase"
	"TrendGate/internal/validator"
	pkgcache "TrendGate/pkg/cache"
	pkgch "TrendGate/pkg/clickhouse"
	"TrendGate/pkg/config"
	xhttp "TrendGate/pkg/http"
	pkgkafka "TrendGate/pkg/kafka"
	applogger "TrendGate/pkg/logger"
	"TrendGate/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	orch      *validator.Orchestrator
	pipeline  *middleware.FragmentPipeline
	collector *usecase.StreamCollector
	consumer  *pkgkafka.Consumer
	oh        *usecase.OutcomeHandler
	sq        *queue.RedisQueue
	handler   *api.ValidatorHandler
	chClient  *pkgch.Client
	decCache  pkgcache.Service

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	orch *validator.Orchestrator,
	pipeline *middleware.FragmentPipeline,
	collector *usecase.StreamCollector,
	consumer *pkgkafka.Consumer,
	oh *usecase.OutcomeHandler,
	sq *queue.RedisQueue,
	handler *api.ValidatorHandler,
	chClient *pkgch.Client,
	decCache pkgcache.Service,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		orch:      orch,
		pipeline:  pipeline,
		collector: collector,
		consumer:  consumer,
		oh:        oh,
		sq:        sq,
		handler:   handler,
		chClient:  chClient,
		decCache:  decCache,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.log),
	)

	// Background refresh and cleanup loops
	a.orch.Start()
	a.log.Info("orchestrator started",
		applogger.Strings("symbols", a.cfg.MarketData.Symbols))

	if a.sq != nil {
		a.sq.RegisterJob(usecase.NewRevalidateJob(a.orch, a.log))
		if err := a.sq.Start(); err != nil {
			a.log.Warn("deferral queue start failed, queued signals will not be replayed",
				applogger.Error(err))
		}
	}

	if a.pipeline != nil {
		a.pipeline.Start()
	}

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			a.log.Warn("stream collector start failed, continuing without stream",
				applogger.Error(err))
		} else {
			a.log.Info("stream collector started",
				applogger.String("url", a.cfg.MarketData.WebSocketURL))
		}
	}

	if a.consumer != nil && a.oh != nil {
		a.consumer.RegisterHandler(a.oh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("outcome consumer started",
			applogger.String("topic", a.oh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services in reverse startup order.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			a.log.Warn("stream collector stop error", applogger.Error(err))
		}
	}

	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	if a.sq != nil {
		if err := a.sq.Stop(shutdownCtx); err != nil {
			a.log.Warn("deferral queue stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Drains inflight work, stops cache eviction, clears state and
	// closes the sink.
	a.orch.Shutdown()

	if a.decCache != nil {
		if err := a.decCache.Close(); err != nil {
			a.log.Warn("decision cache close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
