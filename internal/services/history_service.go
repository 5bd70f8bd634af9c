package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

const (
	MaxPriceRecordsPerItem = 100
	DefaultMaxScanRecords  = 50
)

// ErrScanNotFound is returned when a scan record id does not exist
var ErrScanNotFound = errors.New("scan record not found")

// HistoryService stores price history per item key and the scan history.
// Icons of scans that are trimmed or pruned are removed from disk.
type HistoryService struct {
	db       *gorm.DB
	icons    *IconStorageService
	maxScans int
}

func NewHistoryService(db *gorm.DB, icons *IconStorageService, maxScans int) *HistoryService {
	if maxScans <= 0 {
		maxScans = DefaultMaxScanRecords
	}
	return &HistoryService{db: db, icons: icons, maxScans: maxScans}
}

// AddPriceRecord appends a record and keeps only the newest MaxPriceRecordsPerItem for its key
func (s *HistoryService) AddPriceRecord(record *models.PriceRecord) error {
	if record.ItemKey == "" {
		return fmt.Errorf("price record without item key")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		keep := tx.Model(&models.PriceRecord{}).
			Select("id").
			Where("item_key = ?", record.ItemKey).
			Order("created_at DESC, id DESC").
			Limit(MaxPriceRecordsPerItem)
		return tx.Where("item_key = ? AND id NOT IN (?)", record.ItemKey, keep).
			Delete(&models.PriceRecord{}).Error
	})
}

// PriceHistory returns the records for an item key, oldest first
func (s *HistoryService) PriceHistory(itemKey string) ([]models.PriceRecord, error) {
	var records []models.PriceRecord
	err := s.db.Where("item_key = ?", itemKey).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	return records, err
}

// PriceHistoryCounts returns the number of distinct keys and the total number of records
func (s *HistoryService) PriceHistoryCounts() (items int64, records int64) {
	s.db.Model(&models.PriceRecord{}).Distinct("item_key").Count(&items)
	s.db.Model(&models.PriceRecord{}).Count(&records)
	return items, records
}

// AddScan stores a scan record, assigning its id, and trims the oldest scans beyond the limit
func (s *HistoryService) AddScan(record *models.ScanRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.db.Create(record).Error; err != nil {
		return err
	}

	var total int64
	if err := s.db.Model(&models.ScanRecord{}).Count(&total).Error; err != nil {
		return err
	}
	if total <= int64(s.maxScans) {
		return nil
	}

	var stale []models.ScanRecord
	err := s.db.Order("created_at ASC, id ASC").
		Limit(int(total) - s.maxScans).
		Find(&stale).Error
	if err != nil {
		return err
	}
	return s.deleteScans(stale)
}

// Scans returns the newest scans first. limit <= 0 returns all.
func (s *HistoryService) Scans(limit int) ([]models.ScanRecord, error) {
	query := s.db.Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []models.ScanRecord
	err := query.Find(&records).Error
	return records, err
}

// Scan returns one scan record by id
func (s *HistoryService) Scan(id string) (*models.ScanRecord, error) {
	var record models.ScanRecord
	if err := s.db.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScanNotFound
		}
		return nil, err
	}
	return &record, nil
}

// Clear removes the whole price and scan history. Returns the number of deleted rows.
func (s *HistoryService) Clear() (int64, error) {
	var scans []models.ScanRecord
	if err := s.db.Find(&scans).Error; err != nil {
		return 0, err
	}
	if err := s.deleteScans(scans); err != nil {
		return 0, err
	}

	result := s.db.Where("1 = 1").Delete(&models.PriceRecord{})
	if result.Error != nil {
		return 0, result.Error
	}
	log.Printf("History: cleared %d scans and %d price records", len(scans), result.RowsAffected)
	return int64(len(scans)) + result.RowsAffected, nil
}

// PruneOlderThan deletes price and scan records created before cutoff
func (s *HistoryService) PruneOlderThan(cutoff time.Time) (prices int64, scans int64, err error) {
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.PriceRecord{})
	if result.Error != nil {
		return 0, 0, result.Error
	}
	prices = result.RowsAffected

	var stale []models.ScanRecord
	if err := s.db.Where("created_at < ?", cutoff).Find(&stale).Error; err != nil {
		return prices, 0, err
	}
	if err := s.deleteScans(stale); err != nil {
		return prices, 0, err
	}
	return prices, int64(len(stale)), nil
}

func (s *HistoryService) deleteScans(records []models.ScanRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
		if s.icons != nil && r.IconFile != "" {
			if err := s.icons.DeleteIcon(r.IconFile); err != nil {
				log.Printf("History: failed to remove icon %s: %v", r.IconFile, err)
			}
		}
	}
	return s.db.Where("id IN ?", ids).Delete(&models.ScanRecord{}).Error
}
