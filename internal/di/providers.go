package di

import (
	"context"
	"fmt"
	"time"

	"TrendGate/internal/condition"
	"TrendGate/internal/decision"
	"TrendGate/internal/domain/models"
	"TrendGate/internal/domain/repository"
	"TrendGate/internal/handler/api"
	"TrendGate/internal/marketdata"
	"TrendGate/internal/middleware"
	internalrepo "TrendGate/internal/repository"
	"TrendGate/internal/trend"
	"TrendGate/internal/usecase"
	"TrendGate/internal/validator"
	pkgcache "TrendGate/pkg/cache"
	pkgch "TrendGate/pkg/clickhouse"
	"TrendGate/pkg/config"
	pkgkafka "TrendGate/pkg/kafka"
	"TrendGate/pkg/logger"
	"TrendGate/pkg/metrics"
	"TrendGate/pkg/queue"
	"TrendGate/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: "stdout",
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideBarSource creates the REST bar source.
func ProvideBarSource(cfg *config.Config) repository.BarSource {
	return marketdata.NewHTTPBarSource(cfg.MarketData.BaseURL, cfg.MarketData.APIKey, cfg.MarketData.Timeout)
}

// ProvideTimeframeCache creates the per-timeframe bar cache.
func ProvideTimeframeCache(cfg *config.Config, source repository.BarSource, log *logger.Logger, m repository.Metrics) *marketdata.TimeframeCache {
	specs := make([]models.TimeframeSpec, len(cfg.Timeframes))
	for i, tc := range cfg.Timeframes {
		specs[i] = models.TimeframeSpec{
			Timeframe: models.Timeframe(tc.Timeframe),
			Weight:    tc.Weight,
			Validity:  tc.Validity,
			BarLimit:  tc.BarLimit,
		}
	}
	return marketdata.NewTimeframeCache(source, marketdata.Config{
		Specs:           specs,
		Capacity:        cfg.Cache.Capacity,
		EvictionPeriod:  cfg.Cache.EvictionPeriod,
		Compression:     cfg.Cache.Compression,
		SequentialFetch: cfg.MarketData.SequentialFetch,
	}, log, m)
}

// ProvideAnalyzer creates the trend analyzer.
func ProvideAnalyzer(cfg *config.Config, log *logger.Logger) *trend.Analyzer {
	tc := trend.DefaultConfig()
	tc.ConsensusThreshold = cfg.Decision.ConsensusThreshold
	tc.MinimumAgreement = cfg.Decision.MinimumAgreement
	return trend.NewAnalyzer(tc, log)
}

// ProvideDecisionCache creates the decision cache: Redis-backed layered
// cache when Redis is enabled, in-process otherwise.
func ProvideDecisionCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc), nil
}

// ProvideEngine creates the decision engine.
func ProvideEngine(cfg *config.Config, decisionCache pkgcache.Service, log *logger.Logger, m repository.Metrics) *decision.Engine {
	ec := decision.DefaultConfig()
	ec.Base = decision.Thresholds{
		Consensus:    cfg.Decision.ConsensusThreshold,
		Strength:     cfg.Decision.StrengthThreshold,
		MinAgreement: cfg.Decision.MinimumAgreement,
	}
	ec.Rules.MinTrendStrength = cfg.Decision.MinTrendStrength
	ec.Rules.MinSignalConfidence = cfg.Decision.MinConfidence
	ec.MaxSignalAge = cfg.Decision.MaxSignalAge
	ec.DecisionTTL = cfg.Decision.DecisionTTL
	ec.FailStep = cfg.Decision.FailStep
	ec.SuccessStep = cfg.Decision.SuccessStep
	ec.MaxDelta = cfg.Decision.MaxDelta
	ec.HistoryWindow = cfg.Decision.HistoryWindow
	return decision.NewEngine(ec, decisionCache, log, m)
}

// ProvideConditionSource creates the market-condition provider over the
// longest configured timeframe.
func ProvideConditionSource(cfg *config.Config, cache *marketdata.TimeframeCache, log *logger.Logger) repository.ConditionSource {
	tf := models.TF1h
	if n := len(cfg.Timeframes); n > 0 {
		tf = models.Timeframe(cfg.Timeframes[n-1].Timeframe)
	}
	return condition.NewProvider(cache, tf, log)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// decision log is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideDecisionStore creates the ClickHouse decision log.
func ProvideDecisionStore(chClient *pkgch.Client) (repository.DecisionStore, error) {
	if chClient == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseDecisionLog(chClient.DB())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideDecisionSink creates the Kafka decision sink.
func ProvideDecisionSink(producer *pkgkafka.Producer, cfg *config.Config) repository.DecisionSink {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaDecisionSink(producer, cfg.Kafka.Topic)
}

// ProvideSignalQueue creates the Redis-backed deferral queue, or nil when
// Redis is disabled.
func ProvideSignalQueue(cfg *config.Config, log *logger.Logger) *queue.RedisQueue {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return queue.NewRedisQueue(log, &queue.Config{
		Workers:    2,
		RetryLimit: 5,
		RetryDelay: 15 * time.Second,
	}, client, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
}

// ProvideOrchestrator assembles the validation pipeline.
func ProvideOrchestrator(
	cfg *config.Config,
	cache *marketdata.TimeframeCache,
	analyzer *trend.Analyzer,
	engine *decision.Engine,
	conditions repository.ConditionSource,
	sink repository.DecisionSink,
	store repository.DecisionStore,
	sq *queue.RedisQueue,
	log *logger.Logger,
) *validator.Orchestrator {
	opts := []validator.Option{validator.WithConditionSource(conditions)}
	if sink != nil {
		opts = append(opts, validator.WithDecisionSink(sink))
	}
	if store != nil {
		opts = append(opts, validator.WithDecisionStore(store))
	}
	if sq != nil {
		opts = append(opts, validator.WithDeferral(func(sig *models.Signal) {
			if err := sq.Enqueue(context.Background(), usecase.RevalidateType, sig); err != nil {
				log.Warn("signal deferral failed",
					logger.String("signal_id", sig.ID), logger.Error(err))
			}
		}))
	}
	orch := validator.New(validator.Config{
		MaxConcurrent:     cfg.Validator.MaxConcurrent,
		RefreshInterval:   cfg.Validator.RefreshInterval,
		RefreshBatch:      cfg.Validator.RefreshBatch,
		RefreshRatePerSec: cfg.Validator.RefreshRatePerSec,
		CleanupInterval:   cfg.Validator.CleanupInterval,
		StaleAfter:        cfg.Validator.StaleAfter,
	}, cache, analyzer, engine, log, opts...)
	orch.Subscribe(cfg.MarketData.Symbols)
	return orch
}

// ProvideFragmentPipeline creates the validation/throttle stage between the
// stream and the bar cache.
func ProvideFragmentPipeline(orch *validator.Orchestrator, m repository.Metrics) *middleware.FragmentPipeline {
	return middleware.NewFragmentPipeline(orch, m,
		middleware.WithMaxPerSec(50),
		middleware.WithBufferSize(2000),
	)
}

// ProvideStreamCollector creates the websocket bar collector, or nil when
// no stream URL is configured.
func ProvideStreamCollector(cfg *config.Config, pipeline *middleware.FragmentPipeline, m repository.Metrics, log *logger.Logger) *usecase.StreamCollector {
	if cfg.MarketData.WebSocketURL == "" {
		return nil
	}
	stream := marketdata.NewStreamClient(
		cfg.MarketData.WebSocketURL,
		cfg.MarketData.APIKey,
		cfg.MarketData.PingInterval,
		cfg.MarketData.ReconnectDelay,
	)
	return usecase.NewStreamCollector(stream, pipeline, m, log, cfg.MarketData.Symbols, cfg.MarketData.ReconnectDelay)
}

// ProvideKafkaConsumer creates the outcome-topic consumer, or nil when
// Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideOutcomeHandler creates the outcome feedback handler.
func ProvideOutcomeHandler(cfg *config.Config, orch *validator.Orchestrator, m repository.Metrics, log *logger.Logger) *usecase.OutcomeHandler {
	return usecase.NewOutcomeHandler(cfg.Kafka.Consumer.OutcomeTopic, orch, m, log)
}

// ProvideHTTPHandler creates the REST handler.
func ProvideHTTPHandler(log *logger.Logger, orch *validator.Orchestrator) *api.ValidatorHandler {
	return api.NewValidatorHandler(log, orch)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	orch *validator.Orchestrator,
	pipeline *middleware.FragmentPipeline,
	collector *usecase.StreamCollector,
	consumer *pkgkafka.Consumer,
	oh *usecase.OutcomeHandler,
	sq *queue.RedisQueue,
	handler *api.ValidatorHandler,
	chClient *pkgch.Client,
	decisionCache pkgcache.Service,
) *server.App {
	return server.New(cfg, log, orch, pipeline, collector, consumer, oh, sq, handler, chClient, decisionCache)
}
