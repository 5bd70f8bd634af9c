package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/poe2-price-checker/backend/internal/services"
)

// LeagueSource lists the trade leagues
type LeagueSource interface {
	Leagues(ctx context.Context) ([]services.League, error)
	League() string
}

type LeagueHandler struct {
	source LeagueSource
}

func NewLeagueHandler(source LeagueSource) *LeagueHandler {
	return &LeagueHandler{source: source}
}

// GetLeagues returns the PoE2 trade leagues and the one currently in use
// GET /api/leagues
func (h *LeagueHandler) GetLeagues(c *gin.Context) {
	leagues, err := h.source.Leagues(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leagues": leagues,
		"current": h.source.League(),
	})
}
