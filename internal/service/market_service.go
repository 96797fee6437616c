package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sobhanashine/sobhan-wallex-2/internal/data"
	"github.com/sobhanashine/sobhan-wallex-2/internal/metrics"
	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
)

// Configuration constants
const (
	DefaultCacheTTL = 30 * time.Second
)

// ExchangeClient is the exchange API behind the proxy endpoints
type ExchangeClient interface {
	Markets(ctx context.Context) ([]json.RawMessage, error)
	History(ctx context.Context, q model.HistoryQuery) ([]byte, error)
}

// ResponseCache stores encoded responses for a fixed window
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type marketsResponse struct {
	Markets []json.RawMessage `json:"markets"`
}

// MarketService serves the proxied exchange data for the API
type MarketService struct {
	client ExchangeClient
	cache  ResponseCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewMarketService creates a new market service. A nil cache or a
// non-positive ttl disables caching.
func NewMarketService(client ExchangeClient, cache ResponseCache, ttl time.Duration, logger *slog.Logger) *MarketService {
	if logger == nil {
		logger = slog.Default()
	}

	return &MarketService{
		client: client,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// MarketsJSON returns the encoded {"markets": [...]} body. Within the cache
// window the exchange is not contacted; failures are never cached.
func (s *MarketService) MarketsJSON(ctx context.Context) ([]byte, error) {
	if body, ok := s.cached(ctx); ok {
		return body, nil
	}

	markets, err := s.client.Markets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get markets: %w", err)
	}
	if markets == nil {
		markets = []json.RawMessage{}
	}

	body, err := json.Marshal(marketsResponse{Markets: markets})
	if err != nil {
		return nil, fmt.Errorf("failed to encode markets: %w", err)
	}

	if s.cachingEnabled() {
		if err := s.cache.Set(ctx, data.MarketsCacheKey, body, s.ttl); err != nil {
			s.logger.Warn("failed to cache markets response", "error", err)
		}
	}

	return body, nil
}

// History returns the raw UDF history body for q
func (s *MarketService) History(ctx context.Context, q model.HistoryQuery) ([]byte, error) {
	body, err := s.client.History(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for symbol %s: %w", q.Symbol, err)
	}
	return body, nil
}

func (s *MarketService) cachingEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

func (s *MarketService) cached(ctx context.Context) ([]byte, bool) {
	if !s.cachingEnabled() {
		return nil, false
	}

	body, ok, err := s.cache.Get(ctx, data.MarketsCacheKey)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("markets cache lookup failed", "error", err)
		return nil, false
	}
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return body, true
}
