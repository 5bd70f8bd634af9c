package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
	"github.com/codyseavey/poe2-price-checker/backend/internal/services"
)

type PriceHandler struct {
	priceService *services.PriceService
}

func NewPriceHandler(priceService *services.PriceService) *PriceHandler {
	return &PriceHandler{priceService: priceService}
}

type computeStatsRequest struct {
	Listings []models.Listing `json:"listings"`
}

// ComputeStats returns price statistics for a set of listings
// POST /api/stats/compute
func (h *PriceHandler) ComputeStats(c *gin.Context) {
	var req computeStatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":          services.ComputeStats(req.Listings),
		"currency_stats": services.ComputeCurrencyStats(req.Listings),
	})
}

type estimateRequest struct {
	BasePrice    float64                `json:"base_price"`
	Currency     string                 `json:"currency"`
	ListingCount int                    `json:"listing_count"`
	Text         string                 `json:"text"`       // item text to evaluate
	Evaluation   *models.ItemEvaluation `json:"evaluation"` // used when text is empty
}

// Estimate scales a base-type price by an item's evaluation
// POST /api/estimate
func (h *PriceHandler) Estimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.BasePrice <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "base_price must be positive"})
		return
	}
	if req.Currency == "" {
		req.Currency = "exalted"
	}

	var eval models.ItemEvaluation
	switch {
	case req.Text != "":
		_, parsed, err := h.priceService.ParseAndEvaluate(req.Text)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		eval = parsed
	case req.Evaluation != nil:
		eval = *req.Evaluation
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "text or evaluation is required"})
		return
	}

	estimate := services.EstimatePrice(req.BasePrice, req.Currency, req.ListingCount, eval)
	c.JSON(http.StatusOK, gin.H{
		"estimate":   estimate,
		"evaluation": eval,
	})
}
