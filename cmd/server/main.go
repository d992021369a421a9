package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/api"
	"github.com/snapshare/snapfeed/internal/app"
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
	logger.Info("Starting snapfeed API server",
		zap.String("store", cfg.Store.Backend),
		zap.String("fanout", cfg.Feed.FanoutMode),
		zap.String("trending", cfg.Trending.Mode))

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

	dispatcher, stopDispatcher, err := core.Dispatcher()
	if err != nil {
		logger.Fatal("Failed to initialize fan-out", zap.Error(err))
	}
	postService := core.Posts(dispatcher, core.MentionRecorder())

	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	router := api.NewRouter(api.Services{
		Posts:      postService,
		Feed:       core.Feed,
		Engagement: core.Engagement,
		Trending:   core.Trending,
		Store:      core.Store,
		Cache:      core.Cache,
	}, cfg.Server.DebugErrors)
	router.SetupRoutes(engine)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           otelhttp.NewHandler(engine, "snapfeed-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := stopDispatcher(ctx); err != nil {
		logger.Error("Fan-out did not drain", zap.Error(err))
	}

	logger.Info("Server exited")
}
