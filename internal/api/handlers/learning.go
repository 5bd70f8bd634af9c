package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/poe2-price-checker/backend/internal/services"
)

const (
	maxHotPatternLimit = 100
	maxTrendDays       = 90
)

type LearningHandler struct {
	learning *services.LearningService
}

func NewLearningHandler(learning *services.LearningService) *LearningHandler {
	return &LearningHandler{learning: learning}
}

// GetEstimate learns a price for an item class and quality score
// GET /api/learning/estimate?class=Rings&score=60
func (h *LearningHandler) GetEstimate(c *gin.Context) {
	class := strings.TrimSpace(c.Query("class"))
	if class == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class is required"})
		return
	}
	score, err := strconv.Atoi(c.Query("score"))
	if err != nil || score < 0 || score > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "score must be an integer between 0 and 100"})
		return
	}

	estimate, err := h.learning.Estimate(class, score)
	if err != nil {
		learningError(c, err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}

// GetStats returns record counts and prices per item class
// GET /api/learning/stats
func (h *LearningHandler) GetStats(c *gin.Context) {
	stats, err := h.learning.Stats()
	if err != nil {
		learningError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetHotPatterns ranks modifier patterns by frequency and price
// GET /api/learning/patterns?limit=15
func (h *LearningHandler) GetHotPatterns(c *gin.Context) {
	limit, ok := positiveQuery(c, "limit", services.DefaultHotPatternLimit, maxHotPatternLimit)
	if !ok {
		return
	}

	report, err := h.learning.HotPatterns(limit)
	if err != nil {
		learningError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetInsights returns the best paying modifier categories, item classes and items
// GET /api/learning/insights
func (h *LearningHandler) GetInsights(c *gin.Context) {
	insights, err := h.learning.MarketInsights()
	if err != nil {
		learningError(c, err)
		return
	}
	c.JSON(http.StatusOK, insights)
}

// GetTrends returns daily medians and trend direction per item class
// GET /api/learning/trends?days=7
func (h *LearningHandler) GetTrends(c *gin.Context) {
	days, ok := positiveQuery(c, "days", services.DefaultTrendDays, maxTrendDays)
	if !ok {
		return
	}

	report, err := h.learning.PriceTrends(days)
	if err != nil {
		learningError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetCorrelation returns how strongly quality score tracks price per item class
// GET /api/learning/correlation
func (h *LearningHandler) GetCorrelation(c *gin.Context) {
	correlations, err := h.learning.QualityCorrelation()
	if err != nil {
		learningError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"correlations": correlations})
}

func learningError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrNotEnoughLearningData) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// positiveQuery reads an optional positive integer query parameter capped at ceiling.
// It writes the 400 response itself and returns false on a bad value.
func positiveQuery(c *gin.Context, name string, def, ceiling int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return min(n, ceiling), true
}
