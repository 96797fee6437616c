// Package upstream talks to the Wallex REST API.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sobhanashine/sobhan-wallex-2/internal/metrics"
	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
)

const (
	DefaultBaseURL = "https://api.wallex.ir"
	DefaultTimeout = 30 * time.Second

	MarketsPath  = "/hector/web/v1/markets"
	HistoryPath  = "/v1/udf/history"
	APIKeyHeader = "x-api-key"

	endpointMarkets = "markets"
	endpointHistory = "history"
)

// StatusError is returned when the exchange answers with a non-2xx status
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s endpoint returned status: %d", e.Endpoint, e.StatusCode)
}

// Config holds the upstream connection settings
type Config struct {
	BaseURL string
	// APIKey is optional; without it requests go out unauthenticated
	APIKey  string
	Timeout time.Duration
}

// Client is a thin HTTP client for the markets and UDF history endpoints.
// It never retries.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new upstream client
func NewClient(config Config, logger *slog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// Markets returns the raw records under result.markets. A response without
// that array yields an empty list.
func (c *Client) Markets(ctx context.Context) ([]json.RawMessage, error) {
	body, err := c.get(ctx, endpointMarkets, MarketsPath, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result *struct {
			Markets json.RawMessage `json:"markets"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse markets response: %w", err)
	}

	markets := []json.RawMessage{}
	if envelope.Result != nil && len(envelope.Result.Markets) > 0 {
		var list []json.RawMessage
		if err := json.Unmarshal(envelope.Result.Markets, &list); err == nil && list != nil {
			markets = list
		}
	}

	return markets, nil
}

// History returns the UDF history body exactly as the exchange sent it
func (c *Client) History(ctx context.Context, q model.HistoryQuery) ([]byte, error) {
	params := url.Values{}
	params.Set("symbol", q.Symbol)
	params.Set("resolution", q.Resolution)
	params.Set("from", q.From)
	params.Set("to", q.To)

	return c.get(ctx, endpointHistory, HistoryPath, params)
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	u := c.config.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set(APIKeyHeader, c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("upstream returned non-success status",
			"endpoint", endpoint,
			"status_code", resp.StatusCode)
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}
