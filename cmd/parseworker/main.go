package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edenschool/examparse/internal/app"
	"github.com/edenschool/examparse/internal/pipeline"
	"github.com/edenschool/examparse/pkg/config"
	"github.com/edenschool/examparse/pkg/kafka"
	"github.com/edenschool/examparse/pkg/logger"
	"github.com/edenschool/examparse/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/examparse.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting parse worker",
		"sink", cfg.Sink.Driver,
		"ledger", cfg.Redis.Enabled,
		"events", cfg.Kafka.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer rt.Close()
	rt.Start(ctx)

	shutdown := metrics.StartServer(cfg.Metrics.Port, rt.Health)
	defer shutdown(context.Background())

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.FileIngest, pipeline.HandleMessage(rt.Pipeline))
	slog.Info("parse worker ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.FileIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	summary := rt.Pipeline.Manifest().Summary()
	stats := consumer.Stats()
	slog.Info("parse worker stopped",
		"messages_handled", stats.Handled,
		"messages_failed", stats.Failed,
		"total", summary.Total,
		"success", summary.Success,
		"skip", summary.Skip,
		"error", summary.Error,
	)
}
