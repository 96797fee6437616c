package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sobhanashine/sobhan-wallex-2/internal/core"
	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
)

type searchRequest struct {
	Value string `json:"value"`
}

type sortRequest struct {
	Key string `json:"key" binding:"required"`
}

type quoteRequest struct {
	Quote string `json:"quote" binding:"required"`
}

type resolutionRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}

type dateRangeRequest struct {
	Range string `json:"range" binding:"required"`
	From  int64  `json:"from"`
	To    int64  `json:"to"`
}

// GetView handles GET /api/view requests
func (h *APIHandler) GetView(c *gin.Context) {
	spotOnly, err := h.validator.ValidateSpotFlag(c.Query("spot"))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.store.Snapshot(spotOnly))
}

// RefreshMarkets handles POST /api/view/refresh requests
func (h *APIHandler) RefreshMarkets(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	if err := h.store.FetchMarkets(ctx); err != nil {
		h.handleUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.store.Snapshot(false))
}

// SetSearch handles PUT /api/view/search requests
func (h *APIHandler) SetSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, err)
		return
	}

	h.respondState(c, h.store.SetSearch(h.validator.SanitizeSearch(req.Value)))
}

// SetSort handles PUT /api/view/sort requests
func (h *APIHandler) SetSort(c *gin.Context) {
	var req sortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, err)
		return
	}

	key, err := model.ParseSortKey(h.validator.sanitizeInput(req.Key))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	state, err := h.store.SetSort(key)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}
	h.respondState(c, state)
}

// ToggleSortOrder handles POST /api/view/sort/toggle requests
func (h *APIHandler) ToggleSortOrder(c *gin.Context) {
	h.respondState(c, h.store.ToggleSortOrder())
}

// SetQuoteFilter handles PUT /api/view/quote requests
func (h *APIHandler) SetQuoteFilter(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, err)
		return
	}

	quote, err := model.ParseQuoteFilter(h.validator.sanitizeInput(req.Quote))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	state, err := h.store.SetQuoteFilter(quote)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}
	h.respondState(c, state)
}

// ToggleSelected handles POST /api/view/selected/:symbol requests
func (h *APIHandler) ToggleSelected(c *gin.Context) {
	symbol, err := h.validator.ValidateSymbol(c.Param("symbol"))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	h.respondState(c, h.store.ToggleSelected(symbol))
}

// ClearSelected handles DELETE /api/view/selected requests
func (h *APIHandler) ClearSelected(c *gin.Context) {
	h.respondState(c, h.store.ClearSelected())
}

// SetResolution handles PUT /api/view/resolution requests
func (h *APIHandler) SetResolution(c *gin.Context) {
	var req resolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, err)
		return
	}

	resolution, err := model.ParseResolution(h.validator.sanitizeInput(req.Resolution))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	state, err := h.store.SetResolution(resolution)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}
	h.respondState(c, state)
}

// SetDateRange handles PUT /api/view/range requests
func (h *APIHandler) SetDateRange(c *gin.Context) {
	var req dateRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, err)
		return
	}

	dateRange, err := model.ParseDateRange(h.validator.sanitizeInput(req.Range))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	state, err := h.store.SetDateRange(dateRange, req.From, req.To)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}
	h.respondState(c, state)
}

func (h *APIHandler) respondState(c *gin.Context, state core.ViewState) {
	c.JSON(http.StatusOK, gin.H{"state": state})
}
