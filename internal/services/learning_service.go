package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

const (
	MaxLearningRecordsPerClass = 100

	minLearningRecords    = 5
	minSimilarRecords     = 3
	learningQualityWindow = 15
)

// ErrNotEnoughLearningData is returned when too few priced items were recorded to learn from
var ErrNotEnoughLearningData = errors.New("not enough learning data")

// LearningService records priced rare and magic items per item class and derives
// learned estimates and market analytics from them. Prices are compared in exalted
// orbs using the current currency rates.
type LearningService struct {
	db    *gorm.DB
	rates func() CurrencyRates
	now   func() time.Time
}

// NewLearningService creates the service. rates may be nil to use DefaultCurrencyRates.
func NewLearningService(db *gorm.DB, rates func() CurrencyRates) *LearningService {
	if rates == nil {
		rates = DefaultCurrencyRates
	}
	return &LearningService{db: db, rates: rates, now: time.Now}
}

// SetRates replaces the currency rate source. Call before serving requests.
func (s *LearningService) SetRates(rates func() CurrencyRates) {
	s.rates = rates
}

// LearnedEstimate is a price range learned from items of the same class and similar quality
type LearnedEstimate struct {
	ItemClass       string  `json:"item_class"`
	QualityScore    int     `json:"quality_score"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
	Median          float64 `json:"median"`
	Average         float64 `json:"average"`
	WeightedAverage float64 `json:"weighted_average"`
	Currency        string  `json:"currency"`
	SampleCount     int     `json:"sample_count"`
	TotalRecords    int     `json:"total_records"`
	Widened         bool    `json:"widened"` // too few similar items, every record of the class was used
}

// NewLearningRecord builds a learning record from a priced item. Implicit modifiers are
// kept as implicit patterns, explicit and crafted ones take their tier from eval.
func NewLearningRecord(item *models.ParsedItem, eval models.ItemEvaluation, stats *models.PriceStats, searchTier int) *models.LearningRecord {
	record := &models.LearningRecord{
		ClassKey:     models.LearningClassKey(item.ItemClass),
		ItemClass:    item.ItemClass,
		BaseType:     item.BaseType,
		Rarity:       item.Rarity,
		QualityScore: eval.Score,
		Price:        stats.Median,
		Currency:     stats.Currency,
		SearchTier:   searchTier,
		ListingCount: stats.Count,
		ItemLevel:    item.ItemLevel,
		Armour:       item.Properties.Armour,
		Evasion:      item.Properties.Evasion,
		EnergyShield: item.Properties.EnergyShield,
		Block:        item.Properties.Block,
		Spirit:       item.Properties.Spirit,
		PhysicalDPS:  item.PhysicalDPS,
		ElementalDPS: item.ElementalDPS,
		TotalDPS:     item.DPS,
		Corrupted:    item.Corrupted,
	}
	if item.Sockets != nil {
		record.SocketCount = &item.Sockets.Count
		record.LinkedSockets = &item.Sockets.Linked
	}

	for _, mod := range item.ImplicitMods {
		record.Patterns = append(record.Patterns, models.LearningPattern{
			Pattern:  NormalizeModifierText(mod.Text),
			Category: CategorizeModifier(mod.Text),
			Value:    mod.Value,
			Implicit: true,
		})
	}
	for _, m := range eval.Modifiers {
		if m.Pattern == "" {
			continue
		}
		p := models.LearningPattern{Pattern: m.Pattern, Category: m.Category}
		if m.Match != nil {
			p.Tier = m.Match.Tier
		}
		if value := modifierValue(item, m.Text); value != nil {
			p.Value = value
		}
		record.Patterns = append(record.Patterns, p)
	}
	return record
}

func modifierValue(item *models.ParsedItem, text string) *float64 {
	for _, list := range [][]models.ItemModifier{item.ExplicitMods, item.CraftedMods} {
		for _, mod := range list {
			if mod.Text == text {
				return mod.Value
			}
		}
	}
	return nil
}

// Add stores a record and keeps only the newest MaxLearningRecordsPerClass of its class
func (s *LearningService) Add(record *models.LearningRecord) error {
	if record.ClassKey == "" {
		return fmt.Errorf("learning record without item class")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		keep := tx.Model(&models.LearningRecord{}).
			Select("id").
			Where("class_key = ?", record.ClassKey).
			Order("created_at DESC, id DESC").
			Limit(MaxLearningRecordsPerClass)
		var stale []uint
		err := tx.Model(&models.LearningRecord{}).
			Where("class_key = ? AND id NOT IN (?)", record.ClassKey, keep).
			Pluck("id", &stale).Error
		if err != nil || len(stale) == 0 {
			return err
		}
		if err := tx.Where("record_id IN ?", stale).Delete(&models.LearningPattern{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", stale).Delete(&models.LearningRecord{}).Error
	})
	if err != nil {
		return err
	}

	debugLog("Learning: %s @ %dq = %.1f %s", record.ItemClass, record.QualityScore, record.Price, record.Currency)
	return nil
}

// Records returns the records of one item class, newest first
func (s *LearningService) Records(itemClass string) ([]models.LearningRecord, error) {
	var records []models.LearningRecord
	err := s.db.Preload("Patterns").
		Where("class_key = ?", models.LearningClassKey(itemClass)).
		Order("created_at DESC, id DESC").
		Find(&records).Error
	return records, err
}

// recordsByClass returns every record grouped by class key, newest first within a class
func (s *LearningService) recordsByClass() (map[string][]models.LearningRecord, int, error) {
	var records []models.LearningRecord
	if err := s.db.Preload("Patterns").Order("created_at DESC, id DESC").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	byClass := make(map[string][]models.LearningRecord)
	for _, r := range records {
		byClass[r.ClassKey] = append(byClass[r.ClassKey], r)
	}
	return byClass, len(records), nil
}

// Counts returns the number of item classes and records
func (s *LearningService) Counts() (classes int64, records int64) {
	s.db.Model(&models.LearningRecord{}).Distinct("class_key").Count(&classes)
	s.db.Model(&models.LearningRecord{}).Count(&records)
	return classes, records
}

// Clear removes all learning data. Returns the number of deleted records.
func (s *LearningService) Clear() (int64, error) {
	if err := s.db.Where("1 = 1").Delete(&models.LearningPattern{}).Error; err != nil {
		return 0, err
	}
	result := s.db.Where("1 = 1").Delete(&models.LearningRecord{})
	if result.Error != nil {
		return 0, result.Error
	}
	log.Printf("Learning: cleared %d records", result.RowsAffected)
	return result.RowsAffected, nil
}

// Estimate learns a price for an item of the given class and quality score from
// recorded items within learningQualityWindow points of it
func (s *LearningService) Estimate(itemClass string, qualityScore int) (*LearnedEstimate, error) {
	records, err := s.Records(itemClass)
	if err != nil {
		return nil, err
	}
	if len(records) < minLearningRecords {
		return nil, fmt.Errorf("%w: %d records for %s, need %d", ErrNotEnoughLearningData, len(records), itemClass, minLearningRecords)
	}

	var similar []models.LearningRecord
	for _, r := range records {
		if abs(r.QualityScore-qualityScore) <= learningQualityWindow {
			similar = append(similar, r)
		}
	}
	widened := false
	if len(similar) < minSimilarRecords {
		similar = records
		widened = true
	}

	prices := make([]float64, len(similar))
	var weighted, weights float64
	for i, r := range similar {
		prices[i] = s.toExalted(r.Price, r.Currency)
		w := confidenceWeight(r)
		weighted += prices[i] * w
		weights += w
	}

	estimate := &LearnedEstimate{
		ItemClass:       records[0].ItemClass,
		QualityScore:    qualityScore,
		Min:             round1(minOf(prices)),
		Max:             round1(maxOf(prices)),
		Median:          round1(Median(prices)),
		Average:         round1(Mean(prices)),
		WeightedAverage: round1(weighted / weights),
		Currency:        "exalted",
		SampleCount:     len(similar),
		TotalRecords:    len(records),
		Widened:         widened,
	}
	debugLog("Learned estimate for %s @ %dq: %.1fex from %d records", itemClass, qualityScore, estimate.Average, estimate.SampleCount)
	return estimate, nil
}

// toExalted converts a price to exalted orbs at the current rates
func (s *LearningService) toExalted(amount float64, currency string) float64 {
	rates := s.rates()
	exalted := rates.ToChaos(1, "exalted")
	if exalted <= 0 {
		return amount
	}
	return rates.ToChaos(amount, currency) / exalted
}

// confidenceWeight favors records priced by narrower search tiers and more listings
func confidenceWeight(r models.LearningRecord) float64 {
	weight := 0.5
	switch r.SearchTier {
	case TierExact:
		weight = 1.5
	case TierSimilar:
		weight = 1.2
	case TierCoreMods:
		weight = 0.9
	case TierBaseOnly:
		weight = 0.6
	}

	switch {
	case r.ListingCount >= 10:
		weight *= 1.3
	case r.ListingCount >= 5:
		weight *= 1.1
	case r.ListingCount <= 2:
		weight *= 0.7
	}
	return weight
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = math.Min(m, v)
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = math.Max(m, v)
	}
	return m
}
