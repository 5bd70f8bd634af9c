package services

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

func newLearningRecord(class string, quality int, price float64, currency string, created time.Time, patterns ...models.LearningPattern) *models.LearningRecord {
	return &models.LearningRecord{
		ClassKey:     models.LearningClassKey(class),
		ItemClass:    class,
		BaseType:     "Base",
		Rarity:       models.RarityRare,
		QualityScore: quality,
		Price:        price,
		Currency:     currency,
		SearchTier:   TierSimilar,
		ListingCount: 5,
		Patterns:     patterns,
		CreatedAt:    created,
	}
}

func addLearningRecords(t *testing.T, svc *LearningService, records ...*models.LearningRecord) {
	t.Helper()
	for _, r := range records {
		if err := svc.Add(r); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}
}

func TestLearningRecordsCappedPerClass(t *testing.T) {
	db := newTestDB(t)
	svc := NewLearningService(db, nil)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < MaxLearningRecordsPerClass+5; i++ {
		addLearningRecords(t, svc, newLearningRecord("Rings", 50, float64(i), "exalted",
			base.Add(time.Duration(i)*time.Second),
			models.LearningPattern{Pattern: "# to maximum life", Category: models.CategoryLife}))
	}
	addLearningRecords(t, svc, newLearningRecord("Amulets", 50, 1, "exalted", time.Time{}))

	records, err := svc.Records("rings")
	if err != nil {
		t.Fatalf("Records() error: %v", err)
	}
	if len(records) != MaxLearningRecordsPerClass {
		t.Fatalf("got %d records, want %d", len(records), MaxLearningRecordsPerClass)
	}
	if records[0].Price != float64(MaxLearningRecordsPerClass+4) {
		t.Errorf("newest record = %v", records[0].Price)
	}
	if last := records[len(records)-1]; last.Price != 5 {
		t.Errorf("oldest kept record = %v, want 5", last.Price)
	}
	if len(records[0].Patterns) != 1 {
		t.Errorf("patterns not loaded: %+v", records[0].Patterns)
	}

	var patterns int64
	db.Model(&models.LearningPattern{}).Count(&patterns)
	if patterns != MaxLearningRecordsPerClass {
		t.Errorf("got %d patterns, want those of trimmed records removed", patterns)
	}

	classes, total := svc.Counts()
	if classes != 2 || total != MaxLearningRecordsPerClass+1 {
		t.Errorf("Counts() = %d, %d", classes, total)
	}

	if err := svc.Add(&models.LearningRecord{Price: 1}); err == nil {
		t.Error("expected error for record without item class")
	}
}

func TestLearnedEstimate(t *testing.T) {
	svc := NewLearningService(newTestDB(t), nil)
	now := time.Now()

	if _, err := svc.Estimate("Rings", 50); !errors.Is(err, ErrNotEnoughLearningData) {
		t.Fatalf("Estimate() on empty data error = %v, want ErrNotEnoughLearningData", err)
	}

	exact := newLearningRecord("Rings", 50, 10, "exalted", now)
	exact.SearchTier, exact.ListingCount = TierExact, 10
	baseOnly := newLearningRecord("Rings", 55, 20, "exalted", now)
	baseOnly.SearchTier, baseOnly.ListingCount = TierBaseOnly, 3
	thin := newLearningRecord("Rings", 60, 30, "exalted", now)
	thin.SearchTier, thin.ListingCount = TierBaseOnly, 1
	addLearningRecords(t, svc, exact, baseOnly, thin,
		newLearningRecord("Rings", 90, 10, "divine", now),
		newLearningRecord("Rings", 95, 200, "exalted", now),
		newLearningRecord("Amulets", 55, 1000, "exalted", now),
	)

	tests := []struct {
		name         string
		class        string
		quality      int
		wantSamples  int
		wantWidened  bool
		wantMin      float64
		wantMax      float64
		wantMedian   float64
		wantAverage  float64
		wantWeighted float64
	}{
		// weights 1.5*1.3, 0.6, 0.6*0.7
		{"Similar quality", "Rings", 55, 3, false, 10, 30, 20, 20, 14.8},
		{"Class names fold case", "rings", 45, 3, false, 10, 30, 20, 20, 14.8},
		// divine at 150c over exalted at 50c
		{"Too few similar widens to class", "Rings", 20, 5, true, 10, 200, 30, 58, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, err := svc.Estimate(tt.class, tt.quality)
			if err != nil {
				t.Fatalf("Estimate() error: %v", err)
			}
			if est.SampleCount != tt.wantSamples || est.TotalRecords != 5 || est.Widened != tt.wantWidened {
				t.Errorf("samples = %d of %d widened %v, want %d of 5 widened %v",
					est.SampleCount, est.TotalRecords, est.Widened, tt.wantSamples, tt.wantWidened)
			}
			if est.Min != tt.wantMin || est.Max != tt.wantMax || est.Median != tt.wantMedian || est.Average != tt.wantAverage {
				t.Errorf("min/max/median/avg = %v/%v/%v/%v, want %v/%v/%v/%v",
					est.Min, est.Max, est.Median, est.Average, tt.wantMin, tt.wantMax, tt.wantMedian, tt.wantAverage)
			}
			if tt.wantWeighted > 0 && est.WeightedAverage != tt.wantWeighted {
				t.Errorf("WeightedAverage = %v, want %v", est.WeightedAverage, tt.wantWeighted)
			}
			if est.Currency != "exalted" || est.ItemClass != "Rings" {
				t.Errorf("currency %q class %q", est.Currency, est.ItemClass)
			}
		})
	}
}

func TestLearningPricesFollowRates(t *testing.T) {
	svc := NewLearningService(newTestDB(t), nil)
	svc.SetRates(func() CurrencyRates {
		return CurrencyRates{"chaos": 1, "exalted": 100, "divine": 400}
	})
	now := time.Now()
	for i := 0; i < 5; i++ {
		addLearningRecords(t, svc, newLearningRecord("Boots", 40, 2, "divine", now))
	}

	est, err := svc.Estimate("Boots", 40)
	if err != nil {
		t.Fatalf("Estimate() error: %v", err)
	}
	if est.Median != 8 {
		t.Errorf("Median = %v, want 8 exalted for 2 divine", est.Median)
	}
}

func TestConfidenceWeight(t *testing.T) {
	tests := []struct {
		tier     int
		listings int
		want     float64
	}{
		{TierExact, 10, 1.95},
		{TierSimilar, 5, 1.32},
		{TierCoreMods, 3, 0.9},
		{TierBaseOnly, 2, 0.42},
		{7, 3, 0.5},
	}
	for _, tt := range tests {
		got := confidenceWeight(models.LearningRecord{SearchTier: tt.tier, ListingCount: tt.listings})
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("confidenceWeight(tier %d, %d listings) = %v, want %v", tt.tier, tt.listings, got, tt.want)
		}
	}
}

func TestNewLearningRecord(t *testing.T) {
	item := ParseItem(rareRingText)
	eval := newTestEvaluator(t).EvaluateItem(item)
	stats := &models.PriceStats{Currency: "exalted", Count: 7, Median: 12}

	record := NewLearningRecord(item, eval, stats, TierCoreMods)

	if record.ClassKey != "rings" || record.ItemClass != "Rings" || record.BaseType != "Sapphire Ring" {
		t.Errorf("class/base = %q/%q/%q", record.ClassKey, record.ItemClass, record.BaseType)
	}
	if record.QualityScore != eval.Score || record.Price != 12 || record.ListingCount != 7 || record.SearchTier != TierCoreMods {
		t.Errorf("unexpected pricing fields: %+v", record)
	}
	if record.ItemLevel == nil || *record.ItemLevel != 82 || !record.Corrupted {
		t.Errorf("ilvl/corrupted not carried: %+v", record)
	}

	byPattern := make(map[string]models.LearningPattern)
	for _, p := range record.Patterns {
		byPattern[p.Pattern] = p
	}
	if len(record.Patterns) != 5 {
		t.Errorf("got %d patterns, want 1 implicit and 4 explicit or crafted", len(record.Patterns))
	}

	tests := []struct {
		text     string
		implicit bool
		tier     int
		value    float64
	}{
		{"+18% to Cold Resistance", true, 0, 18},
		{"+85 to maximum Life", false, 2, 85},
		{"+32% to Fire Resistance", false, 3, 32},
		{"+15 to Dexterity", false, 0, 15},
	}
	for _, tt := range tests {
		p, ok := byPattern[NormalizeModifierText(tt.text)]
		if !ok {
			t.Errorf("no pattern for %q", tt.text)
			continue
		}
		if p.Implicit != tt.implicit || p.Tier != tt.tier || p.Value == nil || *p.Value != tt.value {
			t.Errorf("pattern %q = implicit %v tier %d value %v", p.Pattern, p.Implicit, p.Tier, p.Value)
		}
	}

	cats := map[models.ModifierCategory]bool{}
	for _, c := range record.Categories() {
		cats[c] = true
	}
	if !cats[models.CategoryLife] || !cats[models.CategoryResistance] {
		t.Errorf("Categories() = %v", record.Categories())
	}
}

func TestLearningClear(t *testing.T) {
	svc := NewLearningService(newTestDB(t), nil)
	addLearningRecords(t, svc,
		newLearningRecord("Rings", 50, 1, "exalted", time.Time{}, models.LearningPattern{Pattern: "a"}),
		newLearningRecord("Belts", 50, 1, "exalted", time.Time{}),
	)

	deleted, err := svc.Clear()
	if err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Clear() deleted %d, want 2", deleted)
	}
	if classes, records := svc.Counts(); classes != 0 || records != 0 {
		t.Errorf("Counts() after clear = %d, %d", classes, records)
	}
}
