package api

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/sobhanashine/sobhan-wallex-2/internal/chart"
	"github.com/sobhanashine/sobhan-wallex-2/internal/core"
	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
)

// This file serves as the main entry point for the API package. It defines the APIHandler struct and its dependencies.
// The package structure is as follows:
// - api.go: Main API handler, dependencies and routes (this file)
// - handler.go: Proxy, chart and health handlers
// - view_handler.go: View-state handlers
// - middleware.go: Middleware functions
// - validator.go: Request validation

// Constants
const (
	DefaultTimeout      = 30 * time.Second
	DefaultResolution   = "60"
	ServiceVersion      = "1.0.0"
	ServiceName         = "wallex-dashboard"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
	MarketsCacheControl = "public, max-age=30"
)

// MarketService is an interface defining methods to get proxied exchange data
type MarketService interface {
	MarketsJSON(ctx context.Context) ([]byte, error)
	History(ctx context.Context, q model.HistoryQuery) ([]byte, error)
}

// ViewStore is the session view state consumed by the view endpoints
type ViewStore interface {
	FetchMarkets(ctx context.Context) error
	State() core.ViewState
	Snapshot(spotOnly bool) core.Snapshot
	SetSearch(v string) core.ViewState
	SetSort(k model.SortKey) (core.ViewState, error)
	ToggleSortOrder() core.ViewState
	SetQuoteFilter(q model.QuoteFilter) (core.ViewState, error)
	ToggleSelected(symbol string) core.ViewState
	ClearSelected() core.ViewState
	SetResolution(r model.Resolution) (core.ViewState, error)
	SetDateRange(r model.DateRange, from, to int64) (core.ViewState, error)
}

// ChartLoader assembles chart series for the selected symbols
type ChartLoader interface {
	Load(ctx context.Context, req chart.Request) (chart.Chart, error)
}

// Config holds tunables of the HTTP layer
type Config struct {
	// RateLimitRPS of zero disables rate limiting
	RateLimitRPS   float64
	RateLimitBurst int
}

// DefaultConfig returns the default HTTP layer configuration
func DefaultConfig() Config {
	return Config{
		RateLimitRPS:   100,
		RateLimitBurst: 200,
	}
}

// APIHandler handles HTTP requests using Gin framework
type APIHandler struct {
	markets   MarketService
	store     ViewStore
	charts    ChartLoader
	config    Config
	limiter   *rate.Limiter
	validator *Validator
	logger    *slog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(markets MarketService, store ViewStore, charts ChartLoader, config Config, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if config.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimitRPS), config.RateLimitBurst)
	}

	return &APIHandler{
		markets:   markets,
		store:     store,
		charts:    charts,
		config:    config,
		limiter:   limiter,
		validator: GetValidator(),
		logger:    logger,
	}
}

// StartServer starts the HTTP server
func (h *APIHandler) StartServer(port int) error {
	router := h.SetupRoutes()
	return router.Run(":" + strconv.Itoa(port))
}

// SetupRoutes configures all API routes
func (h *APIHandler) SetupRoutes() *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(requestIDMiddleware())
	router.Use(ginLoggerMiddleware())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(metricsMiddleware())

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(rateLimitMiddleware(h.limiter))
	{
		// Upstream proxy
		api.GET("/markets", h.GetMarkets)
		api.GET("/candles", h.GetCandles)

		// View state
		api.GET("/view", h.GetView)
		api.POST("/view/refresh", h.RefreshMarkets)
		api.PUT("/view/search", h.SetSearch)
		api.PUT("/view/sort", h.SetSort)
		api.POST("/view/sort/toggle", h.ToggleSortOrder)
		api.PUT("/view/quote", h.SetQuoteFilter)
		api.POST("/view/selected/:symbol", h.ToggleSelected)
		api.DELETE("/view/selected", h.ClearSelected)
		api.PUT("/view/resolution", h.SetResolution)
		api.PUT("/view/range", h.SetDateRange)

		api.GET("/chart", h.GetChart)
	}

	return router
}
