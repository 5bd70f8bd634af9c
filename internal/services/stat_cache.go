package services

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

const (
	// StatCacheTTL is how long stat ids loaded from the trade API are trusted
	StatCacheTTL = 7 * 24 * time.Hour

	statCacheBatchSize = 500
)

// StatCacheStore persists trade stat definitions so a resolver can be built without the trade API
type StatCacheStore struct {
	db *gorm.DB
}

func NewStatCacheStore(db *gorm.DB) *StatCacheStore {
	return &StatCacheStore{db: db}
}

// Save upserts stat definitions keyed by normalized text. Within defs the first
// definition of a normalized text wins, matching StatResolver.SetStatIDs.
func (s *StatCacheStore) Save(defs []StatDefinition) (int, error) {
	if s.db == nil || len(defs) == 0 {
		return 0, nil
	}

	expiresAt := time.Now().Add(StatCacheTTL)
	seen := make(map[string]bool, len(defs))
	entries := make([]models.StatCacheEntry, 0, len(defs))
	for _, def := range defs {
		if def.ID == "" || def.Text == "" {
			continue
		}
		normalized := NormalizeModifierText(def.Text)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		entries = append(entries, models.StatCacheEntry{
			Normalized: normalized,
			Text:       def.Text,
			StatID:     def.ID,
			Source:     "api",
			CreatedAt:  time.Now(),
			ExpiresAt:  &expiresAt,
		})
	}
	if len(entries) == 0 {
		return 0, nil
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "normalized"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"text", "stat_id", "source", "expires_at",
		}),
	}).CreateInBatches(&entries, statCacheBatchSize).Error
	if err != nil {
		return 0, err
	}

	debugLog("Stat cache: saved %d definitions", len(entries))
	return len(entries), nil
}

// Load returns every unexpired cached definition
func (s *StatCacheStore) Load() ([]StatDefinition, error) {
	if s.db == nil {
		return nil, nil
	}

	var entries []models.StatCacheEntry
	err := s.db.Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Order("id").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	defs := make([]StatDefinition, 0, len(entries))
	for _, e := range entries {
		defs = append(defs, StatDefinition{ID: e.StatID, Text: e.Text})
	}
	return defs, nil
}

// Count returns the number of stored entries, expired ones included
func (s *StatCacheStore) Count() int64 {
	if s.db == nil {
		return 0
	}
	var count int64
	s.db.Model(&models.StatCacheEntry{}).Count(&count)
	return count
}

// Clear removes every cached definition
func (s *StatCacheStore) Clear() error {
	if s.db == nil {
		return nil
	}
	return s.db.Where("1 = 1").Delete(&models.StatCacheEntry{}).Error
}
