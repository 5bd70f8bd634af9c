package handlers

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
	"github.com/codyseavey/poe2-price-checker/backend/internal/services"
)

const (
	defaultScanLimit = 20
	maxScanLimit     = 200
)

type HistoryHandler struct {
	history *services.HistoryService
	icons   *services.IconStorageService
}

func NewHistoryHandler(history *services.HistoryService, icons *services.IconStorageService) *HistoryHandler {
	return &HistoryHandler{history: history, icons: icons}
}

// GetPriceHistory returns recorded prices for an item key, oldest first
// GET /api/history/:key
func (h *HistoryHandler) GetPriceHistory(c *gin.Context) {
	key := models.NormalizeItemKey(c.Param("key"))
	if strings.Trim(key, "_") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item key is required"})
		return
	}

	records, err := h.history.PriceHistory(key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item_key": key,
		"records":  records,
	})
}

// GetPriceDynamics returns the price timeline of an item from scans and price records
// GET /api/dynamics?rarity=Rare&name=Storm Loop&base=Sapphire Ring
func (h *HistoryHandler) GetPriceDynamics(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	base := strings.TrimSpace(c.Query("base"))
	if name == "" && base == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name or base is required"})
		return
	}

	rarity := models.ParseRarity(c.Query("rarity"))
	dynamics, err := h.history.PriceDynamics(rarity, name, base)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dynamics)
}

// ListScans returns recent price checks, newest first
// GET /api/scans?limit=20
func (h *HistoryHandler) ListScans(c *gin.Context) {
	limit, ok := positiveQuery(c, "limit", defaultScanLimit, maxScanLimit)
	if !ok {
		return
	}

	scans, err := h.history.Scans(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scans": scans,
		"count": len(scans),
	})
}

// GetScan returns one scan record
// GET /api/scans/:id
func (h *HistoryHandler) GetScan(c *gin.Context) {
	scan, err := h.history.Scan(c.Param("id"))
	if errors.Is(err, services.ErrScanNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, scan)
}

// GetIcon serves a downloaded item icon
// GET /api/icons/:file
func (h *HistoryHandler) GetIcon(c *gin.Context) {
	if h.icons == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "icon not found"})
		return
	}

	path := h.icons.GetIconPath(c.Param("file"))
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "icon not found"})
		return
	}
	c.File(path)
}
