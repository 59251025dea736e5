// Package app wires configuration into a ready pipeline: sink database,
// processed-file ledger, event collector, metrics and health checks. Both
// binaries build their runtime here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edenschool/examparse/internal/classifier"
	"github.com/edenschool/examparse/internal/events"
	"github.com/edenschool/examparse/internal/extractor"
	"github.com/edenschool/examparse/internal/ledger"
	"github.com/edenschool/examparse/internal/pipeline"
	"github.com/edenschool/examparse/internal/segmenter"
	"github.com/edenschool/examparse/internal/store"
	"github.com/edenschool/examparse/pkg/config"
	"github.com/edenschool/examparse/pkg/health"
	"github.com/edenschool/examparse/pkg/kafka"
	"github.com/edenschool/examparse/pkg/metrics"
	"github.com/edenschool/examparse/pkg/postgres"
	"github.com/edenschool/examparse/pkg/redis"
	"github.com/edenschool/examparse/pkg/resilience"
	"github.com/edenschool/examparse/pkg/sqlite"
)

type Runtime struct {
	Pipeline *pipeline.Pipeline
	Metrics  *metrics.Metrics
	Health   *health.Checker
	Writer   *store.Writer
	Ledger   *ledger.Ledger
	Events   *events.Collector

	stopEvents context.CancelFunc
	closers    []func() error
	logger     *slog.Logger
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Build connects every configured dependency. Connection attempts are
// retried with backoff; a dependency that stays down fails the build.
func Build(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*Runtime, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	rt := &Runtime{
		Metrics: metrics.New(reg),
		Health:  health.NewChecker(),
		logger:  slog.Default().With("component", "app"),
	}
	deps := pipeline.Deps{
		Registry:  extractor.NewRegistry(nil),
		Segmenter: segmenter.New(cfg.Pipeline.PassageKeyRunes),
		Metrics:   rt.Metrics,
	}

	if err := rt.openSink(ctx, cfg, &deps); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.openLedger(ctx, cfg, &deps); err != nil {
		rt.Close()
		return nil, err
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.FileProcessed)
		rt.closers = append(rt.closers, producer.Close)
		rt.Events = events.NewCollector(producer, rt.Metrics, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval)
		deps.Events = rt.Events
		brokers := cfg.Kafka.Brokers
		rt.Health.Register("kafka", health.PingCheck(pingFunc(func(ctx context.Context) error {
			return kafka.Ping(ctx, brokers)
		}), false))
	}

	rt.Pipeline = pipeline.New(pipeline.OptionsFromConfig(cfg.Pipeline), deps)
	return rt, nil
}

func (rt *Runtime) openSink(ctx context.Context, cfg *config.Config, deps *pipeline.Deps) error {
	driver := cfg.Sink.Driver
	deps.SinkDriver = driver
	var (
		runner  store.TxRunner
		pinger  health.Pinger
		db      *sql.DB
		dialect store.Dialect
	)
	switch driver {
	case "none":
		return nil
	case "postgres":
		var client *postgres.Client
		err := resilience.Retry(ctx, "connect postgres", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond}, func() error {
			var err error
			client, err = postgres.New(ctx, cfg.Postgres)
			return err
		})
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, client.Close)
		runner, pinger, db, dialect = client, client, client.DB, store.Postgres
	case "sqlite":
		client, err := sqlite.Open(cfg.Sink.SQLitePath)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, client.Close)
		runner, pinger, db, dialect = client, client, client.DB, store.SQLite
	default:
		return fmt.Errorf("unknown sink driver %q", driver)
	}

	if err := store.Migrate(ctx, db, dialect); err != nil {
		return fmt.Errorf("preparing %s sink: %w", driver, err)
	}
	w := store.NewWriter(runner, db, dialect)
	if err := w.SeedTypes(ctx, classifier.AllTypes()); err != nil {
		return fmt.Errorf("seeding question types: %w", err)
	}
	rt.Writer = w
	deps.Writer = w
	rt.Health.Register(driver, health.PingCheck(pinger, true))
	rt.logger.Info("sink ready", "driver", driver)
	return nil
}

func (rt *Runtime) openLedger(ctx context.Context, cfg *config.Config, deps *pipeline.Deps) error {
	if !cfg.Redis.Enabled {
		return nil
	}
	var client *redis.Client
	err := resilience.Retry(ctx, "connect redis", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		var err error
		client, err = redis.NewClient(ctx, cfg.Redis)
		return err
	})
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, client.Close)
	rt.Ledger = ledger.New(client, cfg.Redis.KeyPrefix, cfg.Redis.LedgerTTL)
	deps.Ledger = rt.Ledger
	rt.Health.Register("redis", health.PingCheck(client, false))
	rt.logger.Info("ledger ready", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.KeyPrefix)
	return nil
}

// Start launches background loops. Close stops them.
func (rt *Runtime) Start(ctx context.Context) {
	if rt.Events == nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	rt.stopEvents = cancel
	rt.Events.Start(ctx)
}

// Close flushes pending events and releases connections in reverse order.
func (rt *Runtime) Close() {
	if rt.stopEvents != nil {
		rt.stopEvents()
		rt.Events.Close()
		rt.stopEvents = nil
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("close failed", "error", err)
		}
	}
	rt.closers = nil
}
