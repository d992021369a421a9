package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snapshare/snapfeed/internal/app"
	"github.com/snapshare/snapfeed/internal/broker"
	"github.com/snapshare/snapfeed/internal/worker"
	"github.com/snapshare/snapfeed/pkg/config"
	"github.com/snapshare/snapfeed/pkg/logging"
	"github.com/snapshare/snapfeed/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting snapfeed worker")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	core, err := app.NewCore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer core.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.NewSweeper(core.Trending, cfg.Trending.SweepInterval).Run(gctx)
	})

	if cfg.Feed.FanoutMode == config.FanoutNATS {
		nc, err := core.NATS()
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		consumer := broker.NewFanoutConsumer(core.Feed, cfg.Feed.JobTimeout, logging.WithComponent("fanout-consumer"))
		sub, err := consumer.Subscribe(nc, cfg.Broker.NATSSubject)
		if err != nil {
			logger.Fatal("Failed to subscribe", zap.Error(err))
		}
		g.Go(func() error {
			<-gctx.Done()
			return sub.Drain()
		})
	}

	if cfg.Trending.Mode == config.TrendingKafka {
		consumer := broker.NewMentionConsumer(cfg.Broker.KafkaBrokers, cfg.Broker.KafkaTopic, cfg.Broker.KafkaGroup,
			core.Trending, logging.WithComponent("mention-consumer"))
		g.Go(func() error {
			defer consumer.Close()
			return consumer.Run(gctx)
		})
	}

	logger.Info("Worker initialized, waiting for interrupt...")
	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", zap.Error(err))
	}
	logger.Info("Worker exited")
}
