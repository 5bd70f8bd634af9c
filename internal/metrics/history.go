package metrics

import (
	"log"

	"gorm.io/gorm"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

// UpdateHistoryMetrics queries the database and updates history-related Prometheus metrics.
// Call this after history changes or periodically.
func UpdateHistoryMetrics(db *gorm.DB) {
	if db == nil {
		return
	}

	var priceRecords int64
	if err := db.Model(&models.PriceRecord{}).Count(&priceRecords).Error; err != nil {
		log.Printf("Metrics: failed to count price records: %v", err)
	} else {
		PriceRecordsTotal.Set(float64(priceRecords))
	}

	var scans int64
	if err := db.Model(&models.ScanRecord{}).Count(&scans).Error; err != nil {
		log.Printf("Metrics: failed to count scan records: %v", err)
	} else {
		ScanRecordsTotal.Set(float64(scans))
	}

	var learning int64
	if err := db.Model(&models.LearningRecord{}).Count(&learning).Error; err != nil {
		log.Printf("Metrics: failed to count learning records: %v", err)
	} else {
		LearningRecordsTotal.Set(float64(learning))
	}
}
