package di

import (
	"context"
	"fmt"
	"time"

	"SalesCast/internal/domain/repository"
	"SalesCast/internal/handler/api"
	internalrepo "SalesCast/internal/repository"
	"SalesCast/internal/service/ratelimit"
	"SalesCast/internal/services/features"
	"SalesCast/internal/services/forecast"
	"SalesCast/internal/services/regression"
	"SalesCast/internal/usecase"
	"SalesCast/pkg/cache"
	pkgch "SalesCast/pkg/clickhouse"
	"SalesCast/pkg/config"
	pkgkafka "SalesCast/pkg/kafka"
	applogger "SalesCast/pkg/logger"
	"SalesCast/pkg/metrics"
	pkgpg "SalesCast/pkg/postgres"
	"SalesCast/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideForecastOptions converts the forecast config section.
func ProvideForecastOptions(cfg *config.Config) (forecast.Options, error) {
	fc := cfg.Forecast
	opts := forecast.DefaultOptions()
	opts.Granularity = forecast.Granularity(fc.Granularity)
	opts.LagWindows = append([]int(nil), fc.LagWindows...)
	opts.RollingWindows = append([]int(nil), fc.RollingWindows...)
	opts.SpecialMonths = nil
	for _, sm := range fc.SpecialMonths {
		opts.SpecialMonths = append(opts.SpecialMonths, features.SpecialMonth{Name: sm.Name, Month: sm.Month})
	}
	opts.MinSegmentRows = fc.MinSegmentRows
	opts.Strategy = regression.Strategy(fc.Strategy)
	opts.Fallbacks = nil
	for _, s := range fc.Fallbacks {
		opts.Fallbacks = append(opts.Fallbacks, regression.Strategy(s))
	}
	opts.Search = fc.Search
	opts.CVFolds = fc.CVFolds
	opts.HorizonMonths = fc.HorizonMonths
	opts.Anchor = forecast.Anchor(fc.Anchor)
	opts.Seed = fc.Seed
	if err := opts.Validate(); err != nil {
		return forecast.Options{}, err
	}
	return opts, nil
}

// ProvideSalesSource opens the configured ingestion adapter.
func ProvideSalesSource(cfg *config.Config, l *applogger.Logger) (repository.SalesSource, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch cfg.Source.Type {
	case config.SourcePostgres:
		client, err := pkgpg.NewClient(ctx,
			pkgpg.WithURL(cfg.Postgres.URL),
			pkgpg.WithMaxConnections(cfg.Postgres.MaxConns, cfg.Postgres.MinConns),
			pkgpg.WithLifetimes(cfg.Postgres.ConnMaxLifetime, cfg.Postgres.ConnMaxIdleTime),
		)
		if err != nil {
			return nil, fmt.Errorf("postgres client: %w", err)
		}
		src, err := internalrepo.NewPGSalesSource(client, cfg.Source.Table, l)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return src, nil

	case config.SourceClickHouse:
		client, err := pkgch.NewClient(ctx,
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		if cfg.ClickHouse.InitSchema {
			if err := client.InitSchema(ctx, internalrepo.SalesSchemaClickHouse(cfg.Source.Table)); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("clickhouse schema: %w", err)
			}
		}
		src, err := internalrepo.NewCHSalesSource(client, cfg.Source.Table, l)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return src, nil

	case config.SourceCSV:
		return internalrepo.NewCSVSalesSource(cfg.Source.CSVPath), nil

	default:
		return nil, fmt.Errorf("unsupported source type %q", cfg.Source.Type)
	}
}

// ProvideResultCache returns the forecast result cache: in-process, or
// in-process in front of Redis. It returns nil when caching is disabled.
func ProvideResultCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	memOpts := []cache.MemoryOption{
		cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
		cache.WithMemoryDefaultTTL(cfg.Cache.TTL),
	}
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(memOpts...), nil
	}
	remote, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, cfg.Redis.Timeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(remote, memOpts...), nil
}

// ProvideModelCache creates the in-process trained model cache.
func ProvideModelCache(cfg *config.Config) (*forecast.ModelCache, error) {
	return forecast.NewModelCache(cfg.Cache.ModelCacheSize)
}

// ProvideForecastPublisher creates the Kafka publisher, or a no-op one when
// Kafka is disabled.
func ProvideForecastPublisher(cfg *config.Config) (repository.ForecastPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopForecastPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithTopic(cfg.Kafka.Topic),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaForecastPublisher(producer), nil
}

// ProvideForecastUsecase wires the forecasting usecase.
func ProvideForecastUsecase(
	cfg *config.Config,
	source repository.SalesSource,
	opts forecast.Options,
	models *forecast.ModelCache,
	results cache.Service,
	pub repository.ForecastPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.ForecastUsecase, error) {
	return usecase.NewForecastUsecase(source, opts, models, results, pub, m, l, usecase.ForecastSettings{
		ResultTTL:          cfg.Cache.TTL,
		LockTTL:            cfg.Cache.LockTTL,
		LockPoll:           cfg.Cache.LockPoll,
		Timeout:            cfg.Forecast.Timeout,
		PreAggregated:      cfg.Source.PreAggregated,
		ExcludeCurrentYear: cfg.Source.ExcludeCurrentYear,
	})
}

// ProvideRateLimiter creates the per-client limiter, or nil when disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

// ProvideForecastHandler creates the HTTP handler.
func ProvideForecastHandler(l *applogger.Logger, uc *usecase.ForecastUsecase, limiter *ratelimit.Limiter) *api.ForecastEchoHandler {
	if limiter == nil {
		return api.NewForecastEchoHandler(l, uc, uc, nil)
	}
	return api.NewForecastEchoHandler(l, uc, uc, limiter.Middleware())
}

// ProvideApp creates the application server and registers resources to
// close on shutdown.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	h *api.ForecastEchoHandler,
	source repository.SalesSource,
	results cache.Service,
	pub repository.ForecastPublisher,
) *server.App {
	app := server.New(cfg, l, h)
	app.OnClose("sales_source", source)
	if results != nil {
		app.OnClose("result_cache", results)
	}
	app.OnClose("forecast_publisher", pub)
	return app
}
