package handlers

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/poe2-price-checker/backend/internal/services"
)

// maxItemTextBytes bounds request bodies carrying item text
const maxItemTextBytes = 64 * 1024

type ItemHandler struct {
	priceService *services.PriceService
}

func NewItemHandler(priceService *services.PriceService) *ItemHandler {
	return &ItemHandler{priceService: priceService}
}

type itemTextRequest struct {
	Text string `json:"text" binding:"required"`
}

func bindItemText(c *gin.Context) (string, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxItemTextBytes)
	var req itemTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return "", false
	}
	return req.Text, true
}

// ParseItem parses copied item text
// POST /api/items/parse
func (h *ItemHandler) ParseItem(c *gin.Context) {
	text, ok := bindItemText(c)
	if !ok {
		return
	}

	item, _, err := h.priceService.ParseAndEvaluate(text)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// EvaluateItem parses item text and scores its modifiers against the tier catalog
// POST /api/items/evaluate
func (h *ItemHandler) EvaluateItem(c *gin.Context) {
	text, ok := bindItemText(c)
	if !ok {
		return
	}

	item, eval, err := h.priceService.ParseAndEvaluate(text)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item":           item,
		"evaluation":     eval,
		"catalog_loaded": h.priceService.Evaluator().Loaded(),
	})
}

// CheckPrice runs a full price check
// POST /api/price-check
func (h *ItemHandler) CheckPrice(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxItemTextBytes)
	var req services.PriceCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	result, err := h.priceService.CheckPrice(c.Request.Context(), req)
	if err == nil {
		c.JSON(http.StatusOK, result)
		return
	}

	if errors.Is(err, services.ErrNotItemText) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Failed checks still carry the parsed item and completed tiers
	status := http.StatusBadGateway
	var rateErr *services.RateLimitError
	var apiErr *services.TradeAPIError
	switch {
	case errors.As(err, &rateErr):
		status = http.StatusTooManyRequests
		if rateErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rateErr.RetryAfter.Seconds()))))
		}
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrStatsNotLoaded):
		status = http.StatusServiceUnavailable
	}

	log.Printf("Price check failed: %v", err)
	c.JSON(status, result)
}
