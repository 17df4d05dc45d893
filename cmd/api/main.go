package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petalbox/storefront-auth/internal/config"
	"github.com/petalbox/storefront-auth/internal/infra"
	"github.com/petalbox/storefront-auth/internal/logging"
	"github.com/petalbox/storefront-auth/internal/reporting"
	"github.com/petalbox/storefront-auth/internal/server"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	reporter, err := reporting.New(cfg.SentryDSN, cfg.AppEnv, version)
	if err != nil {
		logger.Error("init error reporting", "error", err)
		os.Exit(1)
	}
	defer reporter.Flush(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var backends server.Backends

	if cfg.UsesStore(config.StorePostgres) {
		var db *pgxpool.Pool
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, infra.PostgresOptions{
			MaxConns:        cfg.DatabaseMaxConns,
			MinConns:        cfg.DatabaseMinConns,
			MaxConnIdleTime: cfg.DatabaseMaxConnIdle,
			PingTimeout:     cfg.BackendPingTimeout,
		})
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		backends.DB = db
	}

	// Redis also backs idempotent send-code replays, so connect whenever it is configured.
	if cfg.RedisURL != "" {
		var cache *redis.Client
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, infra.RedisOptions{
			PoolSize:     cfg.RedisPoolSize,
			DialTimeout:  cfg.RedisDialTimeout,
			ReadTimeout:  cfg.RedisReadTimeout,
			WriteTimeout: cfg.RedisWriteTimeout,
			PingTimeout:  cfg.BackendPingTimeout,
		})
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		backends.Cache = cache
	}

	if cfg.UsesStore(config.StoreMongo) {
		var client *mongo.Client
		client, err = infra.NewMongoClient(ctx, cfg.MongoURI, infra.MongoOptions{
			MaxPoolSize:    cfg.MongoMaxPoolSize,
			ConnectTimeout: cfg.MongoConnectTimeout,
			PingTimeout:    cfg.BackendPingTimeout,
		})
		if err != nil {
			logger.Error("connect mongo", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("disconnect mongo", "error", err)
			}
		}()
		backends.Mongo = client
	}

	srv, err := server.New(cfg, backends, reporter, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	logger.Info("server starting",
		"address", cfg.Address(),
		"env", cfg.AppEnv,
		"version", version,
		"error_reporting", reporter.Enabled(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
