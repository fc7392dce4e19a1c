/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the lease loan server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment configuration (.env honoured)
  2. Parse command-line flags (override environment)
  3. Initialize SQLite store
  4. Choose the margin transfer publisher (Redis stream or log)
  5. Create service, handler, router and grace scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: SERVER_PORT or 8080)
  -db      SQLite database path (default: DB_PATH or lease.db)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the grace scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Redis and database connections

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/warp/lease-loan/alarms"
	"github.com/warp/lease-loan/api"
	"github.com/warp/lease-loan/config"
	"github.com/warp/lease-loan/lease"
	"github.com/warp/lease-loan/messaging"
	"github.com/warp/lease-loan/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags
	port := flag.Int("port", cfg.Server.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	flag.Parse()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err), zap.String("path", *dbPath))
	}
	defer store.Close()

	var publisher lease.TransferPublisher = messaging.NewLogTransferPublisher(logger)
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
		}
		publisher = messaging.NewRedisTransferPublisher(redisClient, cfg.Redis.Stream, logger)
		logger.Info("margin transfers published to Redis", zap.String("stream", cfg.Redis.Stream))
	}

	svc := lease.NewService(store, logger, lease.WithPublisher(publisher))
	handler := api.NewHandler(svc, logger)
	router := api.NewRouter(handler, logger)

	scheduler := api.NewGraceScheduler(svc, alarms.NewRegistry(), logger)
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", zap.Int("port", *port), zap.String("db", *dbPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL %q: %w", level, err)
	}
	cfg.Level = lvl
	return cfg.Build()
}
