package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/codyseavey/poe2-price-checker/backend/internal/middleware"
)

// Handlers groups the API handlers; a nil Leagues, Learning or Admin handler skips its routes
type Handlers struct {
	Items    *ItemHandler
	Prices   *PriceHandler
	History  *HistoryHandler
	Learning *LearningHandler
	Leagues  *LeagueHandler
	Admin    *AdminHandler
}

// RegisterRoutes mounts the API under /api
func RegisterRoutes(r *gin.Engine, h Handlers, adminKey string) {
	api := r.Group("/api")

	api.POST("/items/parse", h.Items.ParseItem)
	api.POST("/items/evaluate", h.Items.EvaluateItem)
	api.POST("/price-check", h.Items.CheckPrice)

	api.POST("/stats/compute", h.Prices.ComputeStats)
	api.POST("/estimate", h.Prices.Estimate)

	api.GET("/history/:key", h.History.GetPriceHistory)
	api.GET("/scans", h.History.ListScans)
	api.GET("/scans/:id", h.History.GetScan)
	api.GET("/icons/:file", h.History.GetIcon)
	api.GET("/dynamics", h.History.GetPriceDynamics)

	if h.Learning != nil {
		learning := api.Group("/learning")
		learning.GET("/estimate", h.Learning.GetEstimate)
		learning.GET("/stats", h.Learning.GetStats)
		learning.GET("/patterns", h.Learning.GetHotPatterns)
		learning.GET("/insights", h.Learning.GetInsights)
		learning.GET("/trends", h.Learning.GetTrends)
		learning.GET("/correlation", h.Learning.GetCorrelation)
	}

	if h.Leagues != nil {
		api.GET("/leagues", h.Leagues.GetLeagues)
	}

	api.GET("/auth/status", middleware.AuthStatus(adminKey))
	api.POST("/auth/verify", middleware.VerifyAdminKey(adminKey))

	if h.Admin == nil {
		return
	}
	admin := api.Group("/admin", middleware.AdminKeyAuth(adminKey))
	admin.POST("/stats/reload", h.Admin.ReloadStats)
	admin.POST("/tiers/reload", h.Admin.ReloadTiers)
	admin.DELETE("/search-cache", h.Admin.ClearSearchCache)
	admin.DELETE("/history", h.Admin.ClearHistory)
	admin.DELETE("/learning", h.Admin.ClearLearning)
	admin.PUT("/league", h.Admin.SetLeague)
	admin.PUT("/session", h.Admin.SetSession)
	admin.POST("/maintenance/run", h.Admin.RunMaintenance)
	admin.GET("/status", h.Admin.GetStatus)
}
