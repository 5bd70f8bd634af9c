package services

import (
	"sort"
	"strings"
	"time"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

const dynamicsChangeThreshold = 5.0

// PricePoint is one observed price of an item, from a scan or a price record
type PricePoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	Source        string    `json:"source"` // "scan" or "history"
	Change        *float64  `json:"change,omitempty"`
	ChangePercent *float64  `json:"change_percent,omitempty"`
	Trend         Trend     `json:"trend,omitempty"`
}

// PriceDynamics is the price timeline of one item with the change over the last day
type PriceDynamics struct {
	ItemKey          string       `json:"item_key"`
	Points           []PricePoint `json:"dynamics"`
	CurrentPrice     *float64     `json:"current_price"`
	Change24h        *float64     `json:"price_change_24h"`
	ChangePercent24h *float64     `json:"price_change_percent_24h"`
}

// PriceDynamics merges priced scans and price records of an item into one timeline,
// oldest first. Uniques match scans by name, everything else by base type.
// Observations within the same second are counted once.
func (s *HistoryService) PriceDynamics(rarity models.Rarity, name, baseType string) (*PriceDynamics, error) {
	query := s.db.Where("median_price > 0")
	if rarity == models.RarityUnique {
		query = query.Where("LOWER(item_name) = ?", strings.ToLower(name))
	} else {
		query = query.Where("LOWER(base_type) = ?", strings.ToLower(baseType))
	}
	var scans []models.ScanRecord
	if err := query.Order("created_at ASC, id ASC").Find(&scans).Error; err != nil {
		return nil, err
	}

	key := models.ItemKey(rarity, name, baseType)
	records, err := s.PriceHistory(key)
	if err != nil {
		return nil, err
	}

	var points []PricePoint
	seen := make(map[int64]bool)
	add := func(p PricePoint) {
		if sec := p.Timestamp.Unix(); !seen[sec] {
			seen[sec] = true
			points = append(points, p)
		}
	}
	for _, scan := range scans {
		add(PricePoint{Timestamp: scan.CreatedAt, Price: scan.MedianPrice, Currency: scan.Currency, Source: "scan"})
	}
	for _, r := range records {
		add(PricePoint{Timestamp: r.CreatedAt, Price: r.MedianPrice, Currency: r.Currency, Source: "history"})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })

	for i := 1; i < len(points); i++ {
		prev := points[i-1].Price
		if prev <= 0 {
			continue
		}
		change := round2(points[i].Price - prev)
		percent := round1((points[i].Price - prev) / prev * 100)
		points[i].Change = &change
		points[i].ChangePercent = &percent
		switch {
		case percent > dynamicsChangeThreshold:
			points[i].Trend = TrendUp
		case percent < -dynamicsChangeThreshold:
			points[i].Trend = TrendDown
		default:
			points[i].Trend = TrendStable
		}
	}

	dynamics := &PriceDynamics{ItemKey: key, Points: points}
	if len(points) == 0 {
		dynamics.Points = []PricePoint{}
		return dynamics, nil
	}
	current := points[len(points)-1].Price
	dynamics.CurrentPrice = &current

	dayAgo := time.Now().Add(-24 * time.Hour)
	var recent []PricePoint
	for _, p := range points {
		if !p.Timestamp.Before(dayAgo) {
			recent = append(recent, p)
		}
	}
	if len(recent) >= 2 && recent[0].Price > 0 {
		change := round2(recent[len(recent)-1].Price - recent[0].Price)
		percent := round1(change / recent[0].Price * 100)
		dynamics.Change24h = &change
		dynamics.ChangePercent24h = &percent
	}
	return dynamics, nil
}
