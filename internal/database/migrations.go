package database

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

// RunMigrations runs data fixups after schema changes.
// Safe to run on every start.
func RunMigrations(db *gorm.DB) error {
	if err := migrateItemKeys(db); err != nil {
		return err
	}
	return purgeExpiredStatCache(db)
}

// migrateItemKeys rewrites price history keys written before keys were URL-safe
func migrateItemKeys(db *gorm.DB) error {
	if !db.Migrator().HasTable("price_records") {
		return nil
	}

	var keys []string
	if err := db.Model(&models.PriceRecord{}).Distinct().Pluck("item_key", &keys).Error; err != nil {
		log.Printf("Warning: failed to read price_records item keys: %v", err)
		return nil
	}

	var updated int64
	for _, key := range keys {
		normalized := models.NormalizeItemKey(key)
		if normalized == key {
			continue
		}
		result := db.Model(&models.PriceRecord{}).Where("item_key = ?", key).Update("item_key", normalized)
		if result.Error != nil {
			log.Printf("Warning: failed to normalize item key %q: %v", key, result.Error)
			continue
		}
		updated += result.RowsAffected
	}
	if updated > 0 {
		log.Printf("Normalized %d price_records item keys", updated)
	}
	return nil
}

// purgeExpiredStatCache drops stat id mappings that are past their expiry
func purgeExpiredStatCache(db *gorm.DB) error {
	if !db.Migrator().HasTable("stat_cache_entries") {
		return nil
	}

	result := db.Exec(`DELETE FROM stat_cache_entries WHERE expires_at IS NOT NULL AND expires_at < ?`, time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Removed %d expired stat cache entries", result.RowsAffected)
	}
	return nil
}
