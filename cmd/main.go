package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sobhanashine/sobhan-wallex-2/api"
	"github.com/sobhanashine/sobhan-wallex-2/internal/chart"
	"github.com/sobhanashine/sobhan-wallex-2/internal/config"
	"github.com/sobhanashine/sobhan-wallex-2/internal/core"
	"github.com/sobhanashine/sobhan-wallex-2/internal/data"
	"github.com/sobhanashine/sobhan-wallex-2/internal/mock"
	"github.com/sobhanashine/sobhan-wallex-2/internal/service"
	"github.com/sobhanashine/sobhan-wallex-2/internal/upstream"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// Create a context that is cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	// 1. Optionally start the simulated exchange and point the client at it
	if cfg.MockUpstream {
		exchangeConfig := mock.DefaultExchangeConfig()
		exchangeConfig.APIKey = cfg.APIKey
		exchange := mock.NewExchangeWithConfig(exchangeConfig)

		mockServer := &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.MockUpstreamPort),
			Handler:           exchange.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		// Listen before serving so the initial market fetch below can connect
		listener, err := net.Listen("tcp", mockServer.Addr)
		if err != nil {
			return fmt.Errorf("failed to start mock exchange: %w", err)
		}
		go func() {
			if err := mockServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("mock exchange stopped", "error", err)
			}
		}()
		defer shutdown(mockServer, logger)

		cfg.UpstreamBaseURL = "http://localhost:" + strconv.Itoa(cfg.MockUpstreamPort)
		logger.Info("mock exchange started", "port", cfg.MockUpstreamPort)
	}

	// 2. Exchange client shared by the proxy, the store and the chart loader
	client := upstream.NewClient(upstream.Config{
		BaseURL: cfg.UpstreamBaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.UpstreamTimeout,
	}, logger)

	// 3. Markets response cache (pluggable - Redis when configured)
	var cache service.ResponseCache = data.NewInMemoryCache()
	if cfg.RedisAddr != "" {
		redisCache := data.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisCache.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		cache = redisCache
		logger.Info("using redis markets cache", "addr", cfg.RedisAddr)
	}

	// 4. View-state store, seeded with an initial market fetch
	store := core.NewStore(client, core.StoreConfig{
		AllowPrefixes: cfg.AllowedPrefixes,
		Clock:         time.Now,
	}, logger)
	if err := store.FetchMarkets(ctx); err != nil {
		// The dashboard still serves; a later refresh can recover
		logger.Warn("initial market fetch failed", "error", err)
	}
	if cfg.MarketsRefreshInterval > 0 {
		refresher := core.NewMarketRefresher(store, cfg.MarketsRefreshInterval, cfg.UpstreamTimeout, logger)
		refresher.Start(ctx)
	}

	// 5. Market service, chart loader and API handler
	markets := service.NewMarketService(client, cache, cfg.MarketsCacheTTL, logger)
	loader := chart.NewLoader(client, logger)
	apiHandler := api.NewAPIHandler(markets, store, loader, api.Config{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           apiHandler.SetupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard service starting",
			"port", cfg.Port,
			"upstream", cfg.UpstreamBaseURL,
			"version", api.ServiceVersion)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal, stopping services")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdown(server, logger)
	return nil
}

func shutdown(server *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "addr", server.Addr, "error", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
