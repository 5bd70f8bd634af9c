package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/poe2-price-checker/backend/internal/services"
)

// TradeSession is the mutable trade API session state
type TradeSession interface {
	League() string
	SetLeague(league string)
	SetPOESESSID(id string)
}

// LeagueSetter is anything that prices per league
type LeagueSetter interface {
	SetLeague(league string)
}

// AdminDeps wires the admin handler; nil members disable their endpoints
type AdminDeps struct {
	StatSync    *services.StatSyncService
	TierWatcher *services.TierCatalogWatcher
	Evaluator   *services.TierEvaluator
	Cache       *services.SearchCache
	History     *services.HistoryService
	Learning    *services.LearningService
	Maintenance *services.MaintenanceWorker
	Session     TradeSession
	Scout       LeagueSetter
}

type AdminHandler struct {
	deps AdminDeps
}

func NewAdminHandler(deps AdminDeps) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// ReloadStats reloads trade stat ids and waits for completion
// POST /api/admin/stats/reload
func (h *AdminHandler) ReloadStats(c *gin.Context) {
	if h.deps.StatSync == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stat sync not available"})
		return
	}

	if h.deps.StatSync.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "sync already in progress",
			"message": "A stat id sync is already running. Please wait for it to complete.",
		})
		return
	}

	result, err := h.deps.StatSync.Sync(c.Request.Context())
	switch {
	case errors.Is(err, services.ErrStatSyncRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
		return
	case errors.Is(err, services.ErrStatsNotLoaded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "result": result})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stat ids reloaded",
		"result":  result,
	})
}

// ReloadTiers reloads the tier catalog from disk
// POST /api/admin/tiers/reload
func (h *AdminHandler) ReloadTiers(c *gin.Context) {
	if h.deps.TierWatcher == nil || h.deps.Evaluator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tier catalog not configured"})
		return
	}

	if err := h.deps.TierWatcher.Reload(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	version, modifiers, _ := h.deps.Evaluator.CatalogInfo()
	c.JSON(http.StatusOK, gin.H{
		"message":   "Tier catalog reloaded",
		"version":   version,
		"modifiers": modifiers,
	})
}

// ClearSearchCache drops cached searches, optionally only for one item name or base type
// DELETE /api/admin/search-cache?name=&base=
func (h *AdminHandler) ClearSearchCache(c *gin.Context) {
	if h.deps.Cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search cache disabled"})
		return
	}

	removed := h.deps.Cache.Invalidate(c.Query("name"), c.Query("base"))
	c.JSON(http.StatusOK, gin.H{
		"removed": removed,
		"stats":   h.deps.Cache.Stats(),
	})
}

// ClearHistory deletes all price and scan history
// DELETE /api/admin/history
func (h *AdminHandler) ClearHistory(c *gin.Context) {
	if h.deps.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history not available"})
		return
	}

	deleted, err := h.deps.History.Clear()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// ClearLearning deletes all price learning records
// DELETE /api/admin/learning
func (h *AdminHandler) ClearLearning(c *gin.Context) {
	if h.deps.Learning == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "price learning not available"})
		return
	}

	deleted, err := h.deps.Learning.Clear()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type setLeagueRequest struct {
	League string `json:"league" binding:"required"`
}

// SetLeague switches the league used for trade searches and poe2scout prices
// PUT /api/admin/league
func (h *AdminHandler) SetLeague(c *gin.Context) {
	var req setLeagueRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.League) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "league is required"})
		return
	}
	if h.deps.Session == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade client not available"})
		return
	}

	league := strings.TrimSpace(req.League)
	h.deps.Session.SetLeague(league)
	if h.deps.Scout != nil {
		h.deps.Scout.SetLeague(league)
	}
	log.Printf("Admin: league set to %s", league)

	c.JSON(http.StatusOK, gin.H{"league": league})
}

type setSessionRequest struct {
	POESESSID string `json:"poesessid"`
}

// SetSession sets or clears the POESESSID cookie sent to the trade API
// PUT /api/admin/session
func (h *AdminHandler) SetSession(c *gin.Context) {
	var req setSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if h.deps.Session == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade client not available"})
		return
	}

	h.deps.Session.SetPOESESSID(strings.TrimSpace(req.POESESSID))
	c.JSON(http.StatusOK, gin.H{"session_set": req.POESESSID != ""})
}

// RunMaintenance starts a maintenance pass in the background
// POST /api/admin/maintenance/run
func (h *AdminHandler) RunMaintenance(c *gin.Context) {
	if h.deps.Maintenance == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "maintenance worker not available"})
		return
	}

	// The request context ends with the response, so the pass gets its own
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		h.deps.Maintenance.RunOnce(ctx)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Maintenance started",
		"status":  "running",
	})
}

// GetStatus reports stat ids, tier catalog, cache, history, learning and worker state
// GET /api/admin/status
func (h *AdminHandler) GetStatus(c *gin.Context) {
	status := gin.H{"debug": services.DebugEnabled()}

	if h.deps.Session != nil {
		status["league"] = h.deps.Session.League()
	}

	if h.deps.StatSync != nil {
		stats := gin.H{
			"running": h.deps.StatSync.IsRunning(),
			"loaded":  h.deps.StatSync.Resolver().Len(),
		}
		if last := h.deps.StatSync.LastSync(); !last.IsZero() {
			stats["last_sync"] = last
		}
		status["stat_ids"] = stats
	}

	if h.deps.Evaluator != nil {
		version, modifiers, err := h.deps.Evaluator.CatalogInfo()
		status["tier_catalog"] = gin.H{
			"loaded":    err == nil,
			"version":   version,
			"modifiers": modifiers,
		}
	}

	if h.deps.Cache != nil {
		status["search_cache"] = h.deps.Cache.Stats()
	}

	if h.deps.History != nil {
		items, records := h.deps.History.PriceHistoryCounts()
		status["history"] = gin.H{
			"items":         items,
			"price_records": records,
		}
	}

	if h.deps.Learning != nil {
		classes, records := h.deps.Learning.Counts()
		status["learning"] = gin.H{
			"item_classes": classes,
			"records":      records,
		}
	}

	if h.deps.Maintenance != nil {
		status["maintenance"] = h.deps.Maintenance.GetStatus()
	}

	c.JSON(http.StatusOK, status)
}
