package mock

import (
	"hash/fnv"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
	"github.com/sobhanashine/sobhan-wallex-2/internal/upstream"
)

// ExchangeConfig holds configuration for the simulated exchange
type ExchangeConfig struct {
	Symbols    []string
	BasePrices map[string]float64
	Volatility float64
	// APIKey, when set, is required on every request
	APIKey  string
	Seed    int64
	MaxBars int
}

// DefaultExchangeConfig returns a sensible default configuration
func DefaultExchangeConfig() ExchangeConfig {
	return ExchangeConfig{
		Symbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BTCTMN", "SOLTMN", "USDTTMN"},
		BasePrices: map[string]float64{
			"BTCUSDT": 65000.0,
			"ETHUSDT": 3000.0,
			"SOLUSDT": 150.0,
			"BTCTMN":  6500000000.0,
			"SOLTMN":  15000000.0,
			"USDTTMN": 100000.0,
		},
		Volatility: 0.01, // 1% per bar
		Seed:       1,
		MaxBars:    2000,
	}
}

var localizedNames = map[string]string{
	"BTC":  "بیت‌کوین",
	"ETH":  "اتریوم",
	"SOL":  "سولانا",
	"USDT": "تتر",
	"TMN":  "تومان",
}

// HistoryPayload mirrors the UDF history response
type HistoryPayload struct {
	S      string    `json:"s"`
	T      []int64   `json:"t,omitempty"`
	O      []float64 `json:"o,omitempty"`
	H      []float64 `json:"h,omitempty"`
	L      []float64 `json:"l,omitempty"`
	C      []float64 `json:"c,omitempty"`
	ErrMsg string    `json:"errmsg,omitempty"`
}

// Exchange simulates the two exchange endpoints the dashboard consumes.
// Generated data is deterministic for a given seed and symbol.
type Exchange struct {
	config ExchangeConfig
	clock  func() time.Time

	mu       sync.Mutex
	requests int
}

// NewExchange creates a simulated exchange with default config
func NewExchange() *Exchange {
	return NewExchangeWithConfig(DefaultExchangeConfig())
}

// NewExchangeWithConfig creates a simulated exchange with custom config
func NewExchangeWithConfig(config ExchangeConfig) *Exchange {
	// Copy base prices so callers can keep mutating their config
	prices := make(map[string]float64, len(config.BasePrices))
	for k, v := range config.BasePrices {
		prices[k] = v
	}
	config.BasePrices = prices
	if config.MaxBars <= 0 {
		config.MaxBars = DefaultExchangeConfig().MaxBars
	}

	return &Exchange{config: config, clock: time.Now}
}

// Requests returns the number of requests served so far
func (e *Exchange) Requests() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests
}

// Handler returns the HTTP routes of the simulated exchange
func (e *Exchange) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(e.countRequests())
	router.Use(e.requireAPIKey())

	router.GET(upstream.MarketsPath, e.handleMarkets)
	router.GET(upstream.HistoryPath, e.handleHistory)

	return router
}

func (e *Exchange) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		e.mu.Lock()
		e.requests++
		e.mu.Unlock()
		c.Next()
	}
}

func (e *Exchange) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if e.config.APIKey != "" && c.GetHeader(upstream.APIKeyHeader) != e.config.APIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (e *Exchange) handleMarkets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "The operation was successful",
		"result":  gin.H{"markets": e.MarketRecords()},
	})
}

func (e *Exchange) handleHistory(c *gin.Context) {
	from, errFrom := strconv.ParseInt(c.Query("from"), 10, 64)
	to, errTo := strconv.ParseInt(c.Query("to"), 10, 64)
	if errFrom != nil || errTo != nil {
		c.JSON(http.StatusOK, HistoryPayload{S: "error", ErrMsg: "from and to must be unix seconds"})
		return
	}

	c.JSON(http.StatusOK, e.History(c.Query("symbol"), c.Query("resolution"), from, to))
}

// MarketRecords builds the raw market listing. Records alternate between
// top-level and stats-nested 24h figures and between numbers and numeric
// strings, the way the real listing does.
func (e *Exchange) MarketRecords() []map[string]any {
	now := e.clock().Unix()
	records := make([]map[string]any, 0, len(e.config.Symbols))

	for i, symbol := range e.config.Symbols {
		base, quote := splitSymbol(symbol)
		rng := e.rngFor(symbol, now/int64(time.Hour.Seconds()))

		price := e.config.BasePrices[symbol] * (1 + rng.NormFloat64()*e.config.Volatility)
		change24h := rng.NormFloat64() * 3
		change7d := rng.NormFloat64() * 7
		volume := e.config.BasePrices[symbol] * (10 + rng.Float64()*1000)

		record := map[string]any{
			"symbol":         symbol,
			"base_asset":     base,
			"quote_asset":    quote,
			"fa_base_asset":  localizedNames[base],
			"fa_quote_asset": localizedNames[quote],
			"price":          strconv.FormatFloat(price, 'f', 2, 64),
			"is_spot":        true,
			"is_usdt_based":  quote == "USDT",
			"is_tmn_based":   quote == "TMN",
		}

		if i%2 == 0 {
			record["change_24h"] = change24h
			record["volume_24h"] = strconv.FormatFloat(volume, 'f', 2, 64)
			record["change_7D"] = change7d
		} else {
			record["stats"] = map[string]any{
				"24h_ch":     change24h,
				"24h_volume": strconv.FormatFloat(volume, 'f', 2, 64),
				"7d_ch":      change7d,
			}
		}

		records = append(records, record)
	}

	return records
}

// History generates bars for symbol between from and to (inclusive, unix
// seconds). Unknown symbols and empty windows answer "no_data".
func (e *Exchange) History(symbol, resolution string, from, to int64) HistoryPayload {
	step, ok := resolutionSeconds(resolution)
	if !ok {
		return HistoryPayload{S: "error", ErrMsg: "unsupported resolution"}
	}

	basePrice, known := e.config.BasePrices[symbol]
	if !known || to < from {
		return HistoryPayload{S: "no_data"}
	}

	start := (from + step - 1) / step * step
	if start > to {
		return HistoryPayload{S: "no_data"}
	}

	count := int((to-start)/step) + 1
	if count > e.config.MaxBars {
		// keep the most recent bars
		start += int64(count-e.config.MaxBars) * step
		count = e.config.MaxBars
	}

	payload := HistoryPayload{
		S: "ok",
		T: make([]int64, 0, count),
		O: make([]float64, 0, count),
		H: make([]float64, 0, count),
		L: make([]float64, 0, count),
		C: make([]float64, 0, count),
	}

	price := basePrice
	for ts := start; ts <= to && len(payload.T) < count; ts += step {
		// Seeded per bar so repeated requests return identical data
		rng := e.rngFor(symbol+resolution, ts)
		open := price
		closePrice := open * (1 + rng.NormFloat64()*e.config.Volatility)
		if closePrice <= 0 {
			closePrice = open * 0.99
		}
		high := max(open, closePrice) * (1 + rng.Float64()*e.config.Volatility/2)
		low := min(open, closePrice) * (1 - rng.Float64()*e.config.Volatility/2)

		payload.T = append(payload.T, ts)
		payload.O = append(payload.O, open)
		payload.H = append(payload.H, high)
		payload.L = append(payload.L, low)
		payload.C = append(payload.C, closePrice)

		price = closePrice
	}

	return payload
}

func (e *Exchange) rngFor(key string, salt int64) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return rand.New(rand.NewSource(int64(h.Sum64()) ^ e.config.Seed ^ salt))
}

func resolutionSeconds(resolution string) (int64, bool) {
	switch model.Resolution(resolution) {
	case model.ResolutionHour:
		return 60 * 60, true
	case model.ResolutionFourHour:
		return 4 * 60 * 60, true
	case model.ResolutionDay:
		return 24 * 60 * 60, true
	case model.ResolutionWeek:
		return 7 * 24 * 60 * 60, true
	}
	return 0, false
}

func splitSymbol(symbol string) (string, string) {
	for _, quote := range []string{"USDT", "TMN"} {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return strings.TrimSuffix(symbol, quote), quote
		}
	}
	return symbol, ""
}
