package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sobhanashine/sobhan-wallex-2/internal/chart"
	"github.com/sobhanashine/sobhan-wallex-2/internal/core"
	"github.com/sobhanashine/sobhan-wallex-2/internal/data"
	"github.com/sobhanashine/sobhan-wallex-2/internal/indicator"
	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
	"github.com/sobhanashine/sobhan-wallex-2/internal/service"
	"github.com/sobhanashine/sobhan-wallex-2/internal/upstream"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// MockUpstreamClient implements UpstreamClient for testing
type MockUpstreamClient struct {
	mock.Mock
}

func (m *MockUpstreamClient) Markets(ctx context.Context) ([]json.RawMessage, error) {
	args := m.Called(ctx)
	raw, _ := args.Get(0).([]json.RawMessage)
	return raw, args.Error(1)
}

func (m *MockUpstreamClient) History(ctx context.Context, q model.HistoryQuery) ([]byte, error) {
	args := m.Called(ctx, q)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

// MockMarketsCache implements service.ResponseCache for testing
type MockMarketsCache struct {
	mock.Mock
}

func (m *MockMarketsCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	body, _ := args.Get(0).([]byte)
	return body, args.Bool(1), args.Error(2)
}

func (m *MockMarketsCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

// MockChartLoader implements ChartLoader for testing
type MockChartLoader struct {
	mock.Mock
}

func (m *MockChartLoader) Load(ctx context.Context, req chart.Request) (chart.Chart, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(chart.Chart), args.Error(1)
}

// Test helper functions
func createTestMarkets() []json.RawMessage {
	return []json.RawMessage{
		json.RawMessage(`{"symbol":"BTCUSDT","price":"65000","change_24h":"1.5","volume_24h":900,"is_usdt_based":true,"is_spot":true}`),
		json.RawMessage(`{"symbol":"SOLUSDT","price":"140","stats":{"24h_ch":"4.2","24h_volume":"300"},"is_usdt_based":true,"is_spot":false}`),
		json.RawMessage(`{"symbol":"BTCTMN","price":"3900000000","change_24h":-0.5,"is_tmn_based":true,"is_spot":true}`),
	}
}

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError, // Suppress logs during testing
	}))
}

func setupGinTestMode() {
	gin.SetMode(gin.TestMode)
}

type testDeps struct {
	upstream *MockUpstreamClient
	charts   *MockChartLoader
	store    *core.Store
	handler  *APIHandler
	router   *gin.Engine
}

func newTestDeps(cache service.ResponseCache, config Config) *testDeps {
	setupGinTestMode()

	up := &MockUpstreamClient{}
	charts := &MockChartLoader{}
	store := core.NewStore(up, core.StoreConfig{Clock: func() time.Time { return fixedNow }}, setupTestLogger())
	markets := service.NewMarketService(up, cache, service.DefaultCacheTTL, setupTestLogger())
	handler := NewAPIHandler(markets, store, charts, config, setupTestLogger())

	return &testDeps{
		upstream: up,
		charts:   charts,
		store:    store,
		handler:  handler,
		router:   handler.SetupRoutes(),
	}
}

func noLimitConfig() Config {
	return Config{}
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			raw, _ := json.Marshal(b)
			reader = bytes.NewReader(raw)
		}
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) core.ViewState {
	t.Helper()
	var response struct {
		State core.ViewState `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response.State
}

// Test NewAPIHandler
func TestNewAPIHandler(t *testing.T) {
	setupGinTestMode()

	tests := []struct {
		name          string
		logger        *slog.Logger
		config        Config
		expectDefault bool
		expectLimiter bool
	}{
		{
			name:          "with logger and rate limit",
			logger:        setupTestLogger(),
			config:        DefaultConfig(),
			expectLimiter: true,
		},
		{
			name:          "with nil logger",
			logger:        nil,
			config:        DefaultConfig(),
			expectDefault: true,
			expectLimiter: true,
		},
		{
			name:   "with rate limit disabled",
			logger: setupTestLogger(),
			config: noLimitConfig(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			markets := service.NewMarketService(&MockUpstreamClient{}, nil, 0, nil)
			handler := NewAPIHandler(markets, nil, nil, tt.config, tt.logger)

			require.NotNil(t, handler)
			assert.Equal(t, markets, handler.markets)
			assert.NotNil(t, handler.validator)
			assert.Equal(t, tt.expectLimiter, handler.limiter != nil)

			if tt.expectDefault {
				assert.NotNil(t, handler.logger)
			} else {
				assert.Equal(t, tt.logger, handler.logger)
			}
		})
	}
}

// Test SetupRoutes
func TestSetupRoutes(t *testing.T) {
	d := newTestDeps(nil, noLimitConfig())

	registered := map[string]bool{}
	for _, route := range d.router.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	expected := []string{
		"GET /health",
		"GET /metrics",
		"GET /api/markets",
		"GET /api/candles",
		"GET /api/view",
		"POST /api/view/refresh",
		"PUT /api/view/search",
		"PUT /api/view/sort",
		"POST /api/view/sort/toggle",
		"PUT /api/view/quote",
		"POST /api/view/selected/:symbol",
		"DELETE /api/view/selected",
		"PUT /api/view/resolution",
		"PUT /api/view/range",
		"GET /api/chart",
	}
	for _, route := range expected {
		assert.True(t, registered[route], "%s should be registered", route)
	}
}

// Test API Constants
func TestAPIConstants(t *testing.T) {
	assert.Equal(t, 30*time.Second, DefaultTimeout)
	assert.Equal(t, "60", DefaultResolution)
	assert.Equal(t, "1.0.0", ServiceVersion)
	assert.Equal(t, "wallex-dashboard", ServiceName)
	assert.Equal(t, "request_id", RequestIDContextKey)
	assert.Equal(t, "X-Request-ID", RequestIDHeaderKey)
	assert.Equal(t, "public, max-age=30", MarketsCacheControl)
}

// Test Health Check Endpoint
func TestHealthCheck(t *testing.T) {
	d := newTestDeps(nil, noLimitConfig())

	w := doRequest(d.router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "OK", response["status"])
	assert.Equal(t, ServiceName, response["service"])
	assert.Equal(t, ServiceVersion, response["version"])
}

func TestMetricsEndpoint(t *testing.T) {
	d := newTestDeps(nil, noLimitConfig())

	doRequest(d.router, "GET", "/health", nil)
	w := doRequest(d.router, "GET", "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_request_duration_seconds")
}

// Test Markets Endpoint
func TestGetMarketsEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		mockMarkets    []json.RawMessage
		mockError      error
		expectedStatus int
		expectedBody   string
		expectCacheHdr bool
	}{
		{
			name:           "successful request",
			mockMarkets:    createTestMarkets()[:1],
			expectedStatus: http.StatusOK,
			expectedBody:   `{"markets":[{"symbol":"BTCUSDT","price":"65000","change_24h":"1.5","volume_24h":900,"is_usdt_based":true,"is_spot":true}]}`,
			expectCacheHdr: true,
		},
		{
			name:           "upstream without markets",
			mockMarkets:    nil,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"markets":[]}`,
			expectCacheHdr: true,
		},
		{
			name:           "upstream non-success status",
			mockError:      &upstream.StatusError{Endpoint: "markets", StatusCode: http.StatusServiceUnavailable},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"error":true}`,
		},
		{
			name:           "transport failure",
			mockError:      errors.New("dial tcp: connection refused"),
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `{"error":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDeps(nil, noLimitConfig())
			d.upstream.On("Markets", mock.Anything).Return(tt.mockMarkets, tt.mockError)

			w := doRequest(d.router, "GET", "/api/markets", nil)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			if tt.expectCacheHdr {
				assert.Equal(t, MarketsCacheControl, w.Header().Get("Cache-Control"))
			} else {
				assert.Empty(t, w.Header().Get("Cache-Control"))
			}
			d.upstream.AssertExpectations(t)
		})
	}
}

func TestGetMarketsServedFromCacheWithinWindow(t *testing.T) {
	d := newTestDeps(data.NewInMemoryCache(), noLimitConfig())
	d.upstream.On("Markets", mock.Anything).Return(createTestMarkets(), nil).Once()

	first := doRequest(d.router, "GET", "/api/markets", nil)
	second := doRequest(d.router, "GET", "/api/markets", nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, MarketsCacheControl, second.Header().Get("Cache-Control"))
	d.upstream.AssertNumberOfCalls(t, "Markets", 1)
}

func TestGetMarketsFailuresAreNotCached(t *testing.T) {
	d := newTestDeps(data.NewInMemoryCache(), noLimitConfig())
	d.upstream.On("Markets", mock.Anything).Return(nil, errors.New("timeout")).Once()
	d.upstream.On("Markets", mock.Anything).Return(createTestMarkets(), nil).Once()

	first := doRequest(d.router, "GET", "/api/markets", nil)
	second := doRequest(d.router, "GET", "/api/markets", nil)

	assert.Equal(t, http.StatusBadGateway, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	d.upstream.AssertNumberOfCalls(t, "Markets", 2)
}

func TestGetMarketsCacheErrorFallsThrough(t *testing.T) {
	cache := &MockMarketsCache{}
	cache.On("Get", mock.Anything, data.MarketsCacheKey).Return(nil, false, errors.New("redis down"))
	cache.On("Set", mock.Anything, data.MarketsCacheKey, mock.Anything, service.DefaultCacheTTL).Return(errors.New("redis down"))

	d := newTestDeps(cache, noLimitConfig())
	d.upstream.On("Markets", mock.Anything).Return(createTestMarkets(), nil)

	w := doRequest(d.router, "GET", "/api/markets", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	cache.AssertExpectations(t)
}

// Test Candles Endpoint
func TestGetCandlesEndpoint(t *testing.T) {
	okBody := []byte(`{"s":"ok","t":[1,2],"o":[1,2],"h":[1,2],"l":[1,2],"c":[1,2]}`)
	noDataBody := []byte(`{"s":"no_data"}`)

	tests := []struct {
		name           string
		query          string
		expectedQuery  *model.HistoryQuery
		mockBody       []byte
		mockError      error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "successful request with all params",
			query:          "symbol=BTCUSDT&resolution=D&from=100&to=200",
			expectedQuery:  &model.HistoryQuery{Symbol: "BTCUSDT", Resolution: "D", From: "100", To: "200"},
			mockBody:       okBody,
			expectedStatus: http.StatusOK,
			expectedBody:   string(okBody),
		},
		{
			name:           "default resolution",
			query:          "symbol=BTCUSDT&from=100&to=200",
			expectedQuery:  &model.HistoryQuery{Symbol: "BTCUSDT", Resolution: "60", From: "100", To: "200"},
			mockBody:       okBody,
			expectedStatus: http.StatusOK,
			expectedBody:   string(okBody),
		},
		{
			name:           "no data payload relayed verbatim",
			query:          "symbol=XYZUSDT&from=100&to=200",
			expectedQuery:  &model.HistoryQuery{Symbol: "XYZUSDT", Resolution: "60", From: "100", To: "200"},
			mockBody:       noDataBody,
			expectedStatus: http.StatusOK,
			expectedBody:   string(noDataBody),
		},
		{
			name:           "missing symbol",
			query:          "from=100&to=200",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"params"}`,
		},
		{
			name:           "missing from",
			query:          "symbol=BTCUSDT&to=200",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"params"}`,
		},
		{
			name:           "blank to",
			query:          "symbol=BTCUSDT&from=100&to=%20%20",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"params"}`,
		},
		{
			name:           "upstream non-success status",
			query:          "symbol=BTCUSDT&from=100&to=200",
			expectedQuery:  &model.HistoryQuery{Symbol: "BTCUSDT", Resolution: "60", From: "100", To: "200"},
			mockError:      &upstream.StatusError{Endpoint: "history", StatusCode: http.StatusUnauthorized},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":true}`,
		},
		{
			name:           "transport failure",
			query:          "symbol=BTCUSDT&from=100&to=200",
			expectedQuery:  &model.HistoryQuery{Symbol: "BTCUSDT", Resolution: "60", From: "100", To: "200"},
			mockError:      errors.New("connection reset"),
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `{"error":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDeps(nil, noLimitConfig())
			if tt.expectedQuery != nil {
				d.upstream.On("History", mock.Anything, *tt.expectedQuery).Return(tt.mockBody, tt.mockError)
			}

			w := doRequest(d.router, "GET", "/api/candles?"+tt.query, nil)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			if tt.expectedQuery == nil {
				d.upstream.AssertNotCalled(t, "History", mock.Anything, mock.Anything)
			} else {
				d.upstream.AssertExpectations(t)
			}
		})
	}
}

// Test Chart Endpoint
func TestGetChartEndpoint(t *testing.T) {
	result := chart.Chart{
		Generation: 1,
		Series: []chart.Series{{
			Symbol:  "SOLUSDT",
			Kind:    chart.KindCandlestick,
			Title:   "SOLUSDT",
			Candles: []model.Candle{{Timestamp: 1, Open: 1, High: 2, Low: 1, Close: 2}},
		}},
	}

	tests := []struct {
		name           string
		query          string
		expectLoad     bool
		expectedKind   indicator.Kind
		expectedPeriod int
		mockError      error
		expectedStatus int
	}{
		{
			name:           "defaults",
			expectLoad:     true,
			expectedKind:   indicator.None,
			expectedPeriod: indicator.DefaultPeriod,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "ema with period",
			query:          "indicator=EMA&period=50",
			expectLoad:     true,
			expectedKind:   indicator.ExponentialMovingAverage,
			expectedPeriod: 50,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown indicator",
			query:          "indicator=rsi",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "period too small",
			query:          "indicator=sma&period=1",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "period not a number",
			query:          "indicator=sma&period=abc",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "superseded load",
			query:          "indicator=sma&period=20",
			expectLoad:     true,
			expectedKind:   indicator.SimpleMovingAverage,
			expectedPeriod: 20,
			mockError:      chart.ErrSuperseded,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "loader failure",
			query:          "indicator=sma&period=20",
			expectLoad:     true,
			expectedKind:   indicator.SimpleMovingAverage,
			expectedPeriod: 20,
			mockError:      fmt.Errorf("chart load cancelled: %w", context.Canceled),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDeps(nil, noLimitConfig())
			state := d.store.State()

			if tt.expectLoad {
				d.charts.On("Load", mock.Anything, mock.MatchedBy(func(req chart.Request) bool {
					return assert.ObjectsAreEqual(state.Selected, req.Symbols) &&
						req.Resolution == state.Resolution &&
						req.From == state.DateFrom &&
						req.To == state.DateTo &&
						req.Indicator == tt.expectedKind &&
						req.Period == tt.expectedPeriod
				})).Return(result, tt.mockError)
			}

			w := doRequest(d.router, "GET", "/api/chart?"+tt.query, nil)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectLoad {
				d.charts.AssertExpectations(t)
			} else {
				d.charts.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
			}

			if tt.expectedStatus == http.StatusOK {
				var response chart.Chart
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, result, response)
			} else {
				var response map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Contains(t, response, "error")
				assert.Contains(t, response, "request_id")
			}
		})
	}
}

// Test Middleware Integration
func TestCORSMiddleware(t *testing.T) {
	d := newTestDeps(nil, noLimitConfig())

	w := doRequest(d.router, "OPTIONS", "/api/view/sort", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

// Test Request ID Middleware
func TestRequestIDMiddleware(t *testing.T) {
	d := newTestDeps(nil, noLimitConfig())

	tests := []struct {
		name            string
		providedID      string
		expectGenerated bool
	}{
		{
			name:            "with provided request ID",
			providedID:      "test-request-123",
			expectGenerated: false,
		},
		{
			name:            "without request ID",
			providedID:      "",
			expectGenerated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/health", nil)

			if tt.providedID != "" {
				req.Header.Set(RequestIDHeaderKey, tt.providedID)
			}

			d.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)

			responseID := w.Header().Get(RequestIDHeaderKey)
			assert.NotEmpty(t, responseID)
			if tt.expectGenerated {
				assert.Len(t, responseID, 36)
			} else {
				assert.Equal(t, tt.providedID, responseID)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	d := newTestDeps(nil, Config{RateLimitRPS: 1, RateLimitBurst: 1})

	first := doRequest(d.router, "GET", "/api/view", nil)
	second := doRequest(d.router, "GET", "/api/view", nil)
	health := doRequest(d.router, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.JSONEq(t, `{"error":"Rate limit exceeded"}`, second.Body.String())
	// Health checks are not rate limited
	assert.Equal(t, http.StatusOK, health.Code)
}

// Test Route Not Found
func TestRouteNotFound(t *testing.T) {
	d := newTestDeps(nil, noLimitConfig())

	w := doRequest(d.router, "GET", "/nonexistent", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Test HTTP Methods
func TestHTTPMethods(t *testing.T) {
	d := newTestDeps(nil, noLimitConfig())

	tests := []struct {
		method         string
		endpoint       string
		expectedStatus int
	}{
		{"POST", "/api/markets", http.StatusNotFound},
		{"DELETE", "/api/candles", http.StatusNotFound},
		{"GET", "/api/view/refresh", http.StatusNotFound},
		{"POST", "/api/chart", http.StatusNotFound},
		{"GET", "/health", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s", tt.method, tt.endpoint), func(t *testing.T) {
			w := doRequest(d.router, tt.method, tt.endpoint, nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

// Benchmark tests
func BenchmarkGetMarketsCached(b *testing.B) {
	d := newTestDeps(data.NewInMemoryCache(), noLimitConfig())
	d.upstream.On("Markets", mock.Anything).Return(createTestMarkets(), nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		doRequest(d.router, "GET", "/api/markets", nil)
	}
}

func BenchmarkGetView(b *testing.B) {
	d := newTestDeps(nil, noLimitConfig())
	d.upstream.On("Markets", mock.Anything).Return(createTestMarkets(), nil)
	_ = d.store.FetchMarkets(context.Background())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		doRequest(d.router, "GET", "/api/view?spot=true", nil)
	}
}
