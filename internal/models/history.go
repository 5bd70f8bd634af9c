package models

import (
	"strings"
	"time"
	"unicode"
)

// StatCacheEntry persists one normalized modifier text → trade stat id mapping.
// Entries loaded from the trade API are refreshed after StatCacheTTL; nil ExpiresAt never expires.
type StatCacheEntry struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Normalized string     `gorm:"uniqueIndex;not null;size:255" json:"normalized"`
	Text       string     `gorm:"not null" json:"text"`
	StatID     string     `gorm:"not null;size:100;index" json:"stat_id"`
	Source     string     `gorm:"default:'api';size:20" json:"source"` // "api", "manual"
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at"`
}

func (StatCacheEntry) TableName() string {
	return "stat_cache_entries"
}

// IsExpired returns true if the entry has expired
func (e *StatCacheEntry) IsExpired() bool {
	if e.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*e.ExpiresAt)
}

// PriceRecord is one observed median price for an item key
type PriceRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ItemKey      string    `gorm:"not null;index" json:"item_key"`
	MedianPrice  float64   `json:"median_price"`
	Currency     string    `gorm:"size:40" json:"currency"`
	ListingCount int       `json:"listing_count"`
	SearchTier   int       `json:"search_tier"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// ItemKey builds the price history key for an item: rarity_name_basetype, lower-cased,
// with each part reduced to letters and digits joined by hyphens so keys are URL-safe
func ItemKey(rarity Rarity, name, baseType string) string {
	return itemKeyPart(string(rarity)) + "_" + itemKeyPart(name) + "_" + itemKeyPart(baseType)
}

// NormalizeItemKey rewrites a key in any older or hand-typed form into ItemKey's form
func NormalizeItemKey(key string) string {
	parts := strings.Split(strings.TrimSpace(key), "_")
	for i, part := range parts {
		parts[i] = itemKeyPart(part)
	}
	return strings.Join(parts, "_")
}

func itemKeyPart(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || r == '-'
	})
	kept := words[:0]
	for _, word := range words {
		word = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, word)
		if word != "" {
			kept = append(kept, word)
		}
	}
	return strings.Join(kept, "-")
}

// ScanRecord is one completed price check kept for the scan history view
type ScanRecord struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	ItemName      string    `json:"item_name"`
	BaseType      string    `gorm:"index" json:"basetype"`
	Rarity        Rarity    `gorm:"size:20" json:"rarity"`
	ItemClass     string    `json:"item_class"`
	Score         int       `json:"score"`
	Rating        Rating    `gorm:"size:20" json:"rating"`
	MedianPrice   float64   `json:"median_price"`
	Currency      string    `gorm:"size:40" json:"currency"`
	ListingCount  int       `json:"listing_count"`
	StoppedAtTier int       `json:"stopped_at_tier"`
	EstimateMin   *float64  `json:"estimate_min,omitempty"`
	EstimateMax   *float64  `json:"estimate_max,omitempty"`
	IconFile      string    `json:"icon_file,omitempty"`
	RawText       string    `json:"raw_text"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}
