package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sobhanashine/sobhan-wallex-2/internal/chart"
	"github.com/sobhanashine/sobhan-wallex-2/internal/upstream"
)

// GetMarkets handles GET /api/markets requests
func (h *APIHandler) GetMarkets(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	body, err := h.markets.MarketsJSON(ctx)
	if err != nil {
		h.handleUpstreamError(c, err)
		return
	}

	c.Header("Cache-Control", MarketsCacheControl)
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// GetCandles handles GET /api/candles requests
func (h *APIHandler) GetCandles(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	query, err := h.validator.ValidateCandlesRequest(
		c.Query("symbol"),
		c.Query("resolution"),
		c.Query("from"),
		c.Query("to"),
	)
	if err != nil {
		h.logger.Debug("rejected candles request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "params"})
		return
	}

	body, err := h.markets.History(ctx, query)
	if err != nil {
		h.handleUpstreamError(c, err)
		return
	}

	// Relayed verbatim, including payloads whose status is not "ok"
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// GetChart handles GET /api/chart requests
func (h *APIHandler) GetChart(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	kind, period, err := h.validator.ValidateChartRequest(c.Query("indicator"), c.Query("period"))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	state := h.store.State()
	result, err := h.charts.Load(ctx, chart.Request{
		Symbols:    state.Selected,
		Resolution: state.Resolution,
		From:       state.DateFrom,
		To:         state.DateTo,
		Indicator:  kind,
		Period:     period,
	})
	if errors.Is(err, chart.ErrSuperseded) {
		h.handleError(c, err, http.StatusConflict, "Chart request superseded")
		return
	}
	if err != nil {
		h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, result)
}

// HealthCheck handles GET /health requests
func (h *APIHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   ServiceVersion,
	})
}

// handleUpstreamError relays the upstream status, or 502 when the exchange
// could not be reached at all
func (h *APIHandler) handleUpstreamError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		status = statusErr.StatusCode
	}

	h.logger.Error("upstream request failed",
		slog.String("request_id", requestIDFrom(c)),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
		slog.Int("status_code", status),
	)

	c.JSON(status, gin.H{"error": true})
}

// handleError logs the error and sends appropriate HTTP response
func (h *APIHandler) handleError(c *gin.Context, err error, statusCode int, userMessage string) {
	requestIDStr := requestIDFrom(c)

	h.logger.Error("API error",
		slog.String("request_id", requestIDStr),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
		slog.Int("status_code", statusCode),
	)

	c.JSON(statusCode, gin.H{
		"error":      userMessage,
		"request_id": requestIDStr,
	})
}

// handleValidationError handles validation errors specifically
func (h *APIHandler) handleValidationError(c *gin.Context, err error) {
	h.handleError(c, err, http.StatusBadRequest, err.Error())
}

func requestIDFrom(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDContextKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return "unknown"
}
