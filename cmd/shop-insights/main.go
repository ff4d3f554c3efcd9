package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/shop-insights/internal/httpapi"
	"github.com/Sternrassler/shop-insights/pkg/config"
	"github.com/Sternrassler/shop-insights/pkg/logging"
	"github.com/Sternrassler/shop-insights/pkg/report"
	"github.com/Sternrassler/shop-insights/pkg/shopify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LoggingConfig())
	logger := logging.NewLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	redisClient, err := connectRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info().Msg("Connected to Redis, call-limit state is shared")
	}

	handler, closeFn, err := buildHandler(cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeFn()

	server := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("store", cfg.Shopify.StoreURL).
			Str("api_version", cfg.Shopify.APIVersion).
			Msg("Starting shop-insights server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildHandler wires client, report service and router.
// redisClient may be nil.
func buildHandler(cfg *config.Config, redisClient *redis.Client) (http.Handler, func(), error) {
	client, err := shopify.New(cfg.ClientConfig(redisClient))
	if err != nil {
		return nil, nil, fmt.Errorf("create shopify client: %w", err)
	}

	svc := report.NewService(client, report.ServiceConfig{
		MaxConcurrency: client.MaxConcurrency(),
	}, logging.NewLogger(logging.ComponentReport))

	opts := httpapi.DefaultOptions()
	opts.Ready = readyCheck(redisClient)

	router := httpapi.NewRouter(svc, logging.NewLogger(logging.ComponentHTTP), opts)
	return router, func() { client.Close() }, nil
}

// connectRedis returns nil when Redis is not configured.
func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := cfg.Options()
	if err != nil || opts == nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	return client, nil
}

func readyCheck(redisClient *redis.Client) func(ctx context.Context) error {
	if redisClient == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}
}
