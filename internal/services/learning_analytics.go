package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

const (
	DefaultHotPatternLimit = 15
	DefaultTrendDays       = 7

	trendRecentDays      = 2
	trendChangeThreshold = 10.0
	minCorrelationPoints = 5
	analyticsTopN        = 10
)

// HotPattern aggregates the prices of recorded items carrying one modifier pattern
type HotPattern struct {
	Pattern          string                  `json:"pattern"`
	DisplayName      string                  `json:"display_name"`
	Category         models.ModifierCategory `json:"category"`
	Count            int                     `json:"count"`
	MedianPrice      float64                 `json:"median_price"`
	AvgPrice         float64                 `json:"avg_price"`
	WeightedPrice    float64                 `json:"weighted_price"`
	MinPrice         float64                 `json:"min_price"`
	MaxPrice         float64                 `json:"max_price"`
	TierDistribution map[string]int          `json:"tier_distribution"`
	AvgTier          *float64                `json:"avg_tier,omitempty"`
}

type HotPatternsReport struct {
	Patterns      []HotPattern `json:"patterns"`
	TotalPatterns int          `json:"total_patterns"`
	TotalRecords  int          `json:"total_records"`
}

type CategoryInsight struct {
	Category models.ModifierCategory `json:"category"`
	AvgPrice float64                 `json:"avg_price"`
	Count    int                     `json:"count"`
}

type ClassInsight struct {
	ItemClass  string  `json:"item_class"`
	AvgPrice   float64 `json:"avg_price"`
	AvgQuality int     `json:"avg_quality"`
	Count      int     `json:"count"`
}

type TopLearnedItem struct {
	ItemClass    string    `json:"item_class"`
	BaseType     string    `json:"basetype"`
	Price        float64   `json:"price"`
	Currency     string    `json:"currency"`
	Exalted      float64   `json:"exalted"`
	QualityScore int       `json:"quality_score"`
	CreatedAt    time.Time `json:"created_at"`
}

// MarketInsights summarizes which modifier categories and item classes fetch the most
type MarketInsights struct {
	TotalRecords int               `json:"total_records"`
	HotMods      []CategoryInsight `json:"hot_mods"`
	ItemClasses  []ClassInsight    `json:"item_class_stats"`
	TopItems     []TopLearnedItem  `json:"top_items"`
	LastUpdated  time.Time         `json:"last_updated"`
}

type DailyMedian struct {
	Day    int     `json:"day"` // days ago, 0 is the last 24 hours
	Median float64 `json:"median"`
	Count  int     `json:"count"`
}

type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendStable  Trend = "stable"
	TrendUnknown Trend = "unknown"
)

type ClassTrend struct {
	ItemClass     string        `json:"item_class"`
	Daily         []DailyMedian `json:"daily_data"`
	Trend         Trend         `json:"trend"`
	ChangePercent float64       `json:"change_percent"`
	CurrentMedian float64       `json:"current_median"`
}

type PriceTrendsReport struct {
	Trends     []ClassTrend `json:"trends"`
	PeriodDays int          `json:"period_days"`
}

type QualityCorrelation struct {
	ItemClass     string             `json:"item_class"`
	Correlation   float64            `json:"correlation"`
	SampleSize    int                `json:"sample_size"`
	BucketMedians map[string]float64 `json:"bucket_medians"`
}

type ClassLearningStats struct {
	ItemClass   string  `json:"item_class"`
	Count       int     `json:"count"`
	AvgPrice    float64 `json:"avg_price"`
	MedianPrice float64 `json:"median_price"`
	MinPrice    float64 `json:"min_price"`
	MaxPrice    float64 `json:"max_price"`
}

type LearningStats struct {
	TotalRecords int                           `json:"total_records"`
	ItemClasses  int                           `json:"item_classes"`
	Classes      map[string]ClassLearningStats `json:"classes"`
}

// HotPatterns ranks explicit modifier patterns by how often they appear times their median price
func (s *LearningService) HotPatterns(limit int) (*HotPatternsReport, error) {
	if limit <= 0 {
		limit = DefaultHotPatternLimit
	}
	byClass, total, err := s.recordsByClass()
	if err != nil {
		return nil, err
	}
	if total < minLearningRecords {
		return nil, fmt.Errorf("%w: %d records, need %d", ErrNotEnoughLearningData, total, minLearningRecords)
	}

	type patternAgg struct {
		category models.ModifierCategory
		prices   []float64
		weighted float64
		weights  float64
		tiers    []int
	}
	aggs := make(map[string]*patternAgg)
	for _, records := range byClass {
		for _, r := range records {
			price := s.toExalted(r.Price, r.Currency)
			weight := confidenceWeight(r)
			for _, p := range r.Patterns {
				if p.Implicit {
					continue
				}
				agg, ok := aggs[p.Pattern]
				if !ok {
					agg = &patternAgg{}
					aggs[p.Pattern] = agg
				}
				agg.prices = append(agg.prices, price)
				agg.weighted += price * weight
				agg.weights += weight
				if p.Tier > 0 {
					agg.tiers = append(agg.tiers, p.Tier)
				}
				if p.Category != "" {
					agg.category = p.Category
				}
			}
		}
	}

	var patterns []HotPattern
	for pattern, agg := range aggs {
		if len(agg.prices) < 2 {
			continue
		}
		hp := HotPattern{
			Pattern:          pattern,
			DisplayName:      patternDisplayName(pattern),
			Category:         agg.category,
			Count:            len(agg.prices),
			MedianPrice:      round1(Median(agg.prices)),
			AvgPrice:         round1(Mean(agg.prices)),
			WeightedPrice:    round1(agg.weighted / agg.weights),
			MinPrice:         round1(minOf(agg.prices)),
			MaxPrice:         round1(maxOf(agg.prices)),
			TierDistribution: map[string]int{"T1": 0, "T2": 0, "T3": 0, "T4": 0, "T5+": 0},
		}
		if len(agg.tiers) > 0 {
			sum := 0
			for _, t := range agg.tiers {
				sum += t
				if t <= 4 {
					hp.TierDistribution[fmt.Sprintf("T%d", t)]++
				} else {
					hp.TierDistribution["T5+"]++
				}
			}
			avg := round1(float64(sum) / float64(len(agg.tiers)))
			hp.AvgTier = &avg
		}
		patterns = append(patterns, hp)
	}

	sort.Slice(patterns, func(i, j int) bool {
		vi := float64(patterns[i].Count) * patterns[i].MedianPrice
		vj := float64(patterns[j].Count) * patterns[j].MedianPrice
		if vi != vj {
			return vi > vj
		}
		return patterns[i].Pattern < patterns[j].Pattern
	})

	report := &HotPatternsReport{TotalPatterns: len(patterns), TotalRecords: total}
	report.Patterns = patterns[:min(limit, len(patterns))]
	return report, nil
}

// patternDisplayName shows placeholders as X, with a leading + for flat bonuses
func patternDisplayName(pattern string) string {
	name := strings.ReplaceAll(pattern, "#", "X")
	if strings.HasPrefix(name, "X ") || strings.HasPrefix(name, "X%") {
		name = "+" + name
	}
	return name
}

// MarketInsights reports the best paying modifier categories and item classes and the top priced items
func (s *LearningService) MarketInsights() (*MarketInsights, error) {
	byClass, total, err := s.recordsByClass()
	if err != nil {
		return nil, err
	}
	if total < minLearningRecords {
		return nil, fmt.Errorf("%w: %d records, need %d", ErrNotEnoughLearningData, total, minLearningRecords)
	}

	type sumCount struct {
		total float64
		count int
	}
	categories := make(map[models.ModifierCategory]*sumCount)
	insights := &MarketInsights{TotalRecords: total, LastUpdated: s.now()}
	var items []TopLearnedItem

	for _, records := range byClass {
		var classTotal float64
		qualityTotal := 0
		for _, r := range records {
			price := s.toExalted(r.Price, r.Currency)
			classTotal += price
			qualityTotal += r.QualityScore

			for _, cat := range r.Categories() {
				sc, ok := categories[cat]
				if !ok {
					sc = &sumCount{}
					categories[cat] = sc
				}
				sc.total += price
				sc.count++
			}

			items = append(items, TopLearnedItem{
				ItemClass:    r.ItemClass,
				BaseType:     r.BaseType,
				Price:        r.Price,
				Currency:     r.Currency,
				Exalted:      round1(price),
				QualityScore: r.QualityScore,
				CreatedAt:    r.CreatedAt,
			})
		}
		n := float64(len(records))
		insights.ItemClasses = append(insights.ItemClasses, ClassInsight{
			ItemClass:  records[0].ItemClass,
			AvgPrice:   round1(classTotal / n),
			AvgQuality: int(math.Round(float64(qualityTotal) / n)),
			Count:      len(records),
		})
	}

	for cat, sc := range categories {
		if sc.count < 2 {
			continue
		}
		insights.HotMods = append(insights.HotMods, CategoryInsight{
			Category: cat,
			AvgPrice: round1(sc.total / float64(sc.count)),
			Count:    sc.count,
		})
	}

	sort.Slice(insights.HotMods, func(i, j int) bool {
		if insights.HotMods[i].AvgPrice != insights.HotMods[j].AvgPrice {
			return insights.HotMods[i].AvgPrice > insights.HotMods[j].AvgPrice
		}
		return insights.HotMods[i].Category < insights.HotMods[j].Category
	})
	sort.Slice(insights.ItemClasses, func(i, j int) bool {
		if insights.ItemClasses[i].AvgPrice != insights.ItemClasses[j].AvgPrice {
			return insights.ItemClasses[i].AvgPrice > insights.ItemClasses[j].AvgPrice
		}
		return insights.ItemClasses[i].ItemClass < insights.ItemClasses[j].ItemClass
	})
	sort.SliceStable(items, func(i, j int) bool { return items[i].Exalted > items[j].Exalted })

	insights.HotMods = insights.HotMods[:min(analyticsTopN, len(insights.HotMods))]
	insights.ItemClasses = insights.ItemClasses[:min(analyticsTopN, len(insights.ItemClasses))]
	insights.TopItems = items[:min(5, len(items))]
	return insights, nil
}

// PriceTrends compares daily medians of the last trendRecentDays days with the rest of the period
func (s *LearningService) PriceTrends(days int) (*PriceTrendsReport, error) {
	if days <= 0 {
		days = DefaultTrendDays
	}
	byClass, _, err := s.recordsByClass()
	if err != nil {
		return nil, err
	}

	now := s.now()
	report := &PriceTrendsReport{Trends: []ClassTrend{}, PeriodDays: days}
	for _, records := range byClass {
		daily := make(map[int][]float64)
		for _, r := range records {
			day := int(now.Sub(r.CreatedAt) / (24 * time.Hour))
			if day < 0 || day >= days {
				continue
			}
			daily[day] = append(daily[day], s.toExalted(r.Price, r.Currency))
		}

		var medians []DailyMedian
		for day := 0; day < days; day++ {
			if prices := daily[day]; len(prices) > 0 {
				medians = append(medians, DailyMedian{Day: day, Median: round1(Median(prices)), Count: len(prices)})
			}
		}
		if len(medians) < 2 {
			continue
		}

		var recent, older []float64
		for _, d := range medians {
			if d.Day <= trendRecentDays {
				recent = append(recent, d.Median)
			} else {
				older = append(older, d.Median)
			}
		}

		trend := ClassTrend{
			ItemClass:     records[0].ItemClass,
			Daily:         medians,
			Trend:         TrendUnknown,
			CurrentMedian: medians[0].Median,
		}
		if len(recent) > 0 && len(older) > 0 {
			change := 0.0
			if olderAvg := Mean(older); olderAvg > 0 {
				change = (Mean(recent) - olderAvg) / olderAvg * 100
			}
			trend.ChangePercent = round1(change)
			switch {
			case change > trendChangeThreshold:
				trend.Trend = TrendUp
			case change < -trendChangeThreshold:
				trend.Trend = TrendDown
			default:
				trend.Trend = TrendStable
			}
		}
		report.Trends = append(report.Trends, trend)
	}

	sort.Slice(report.Trends, func(i, j int) bool {
		ci, cj := math.Abs(report.Trends[i].ChangePercent), math.Abs(report.Trends[j].ChangePercent)
		if ci != cj {
			return ci > cj
		}
		return report.Trends[i].ItemClass < report.Trends[j].ItemClass
	})
	report.Trends = report.Trends[:min(analyticsTopN, len(report.Trends))]
	return report, nil
}

var qualityBuckets = []struct {
	label string
	max   int
}{
	{"0-25", 25},
	{"26-50", 50},
	{"51-75", 75},
	{"76-100", math.MaxInt},
}

// QualityCorrelation returns the Pearson correlation of quality score and price per item class
func (s *LearningService) QualityCorrelation() ([]QualityCorrelation, error) {
	byClass, _, err := s.recordsByClass()
	if err != nil {
		return nil, err
	}

	correlations := []QualityCorrelation{}
	for _, records := range byClass {
		if len(records) < minCorrelationPoints {
			continue
		}

		qualities := make([]float64, len(records))
		prices := make([]float64, len(records))
		buckets := make(map[string][]float64)
		for i, r := range records {
			qualities[i] = float64(r.QualityScore)
			prices[i] = s.toExalted(r.Price, r.Currency)
			for _, b := range qualityBuckets {
				if r.QualityScore <= b.max {
					buckets[b.label] = append(buckets[b.label], prices[i])
					break
				}
			}
		}

		medians := make(map[string]float64, len(buckets))
		for label, values := range buckets {
			medians[label] = round1(Median(values))
		}
		correlations = append(correlations, QualityCorrelation{
			ItemClass:     records[0].ItemClass,
			Correlation:   round2(pearson(qualities, prices)),
			SampleSize:    len(records),
			BucketMedians: medians,
		})
	}

	sort.Slice(correlations, func(i, j int) bool {
		ci, cj := math.Abs(correlations[i].Correlation), math.Abs(correlations[j].Correlation)
		if ci != cj {
			return ci > cj
		}
		return correlations[i].ItemClass < correlations[j].ItemClass
	})
	return correlations[:min(analyticsTopN, len(correlations))], nil
}

// pearson returns 0 when either series has no variance
func pearson(xs, ys []float64) float64 {
	mx, my := Mean(xs), Mean(ys)
	var num, dx, dy float64
	for i := range xs {
		num += (xs[i] - mx) * (ys[i] - my)
		dx += (xs[i] - mx) * (xs[i] - mx)
		dy += (ys[i] - my) * (ys[i] - my)
	}
	if dx == 0 || dy == 0 {
		return 0
	}
	return num / math.Sqrt(dx*dy)
}

// Stats summarizes the recorded prices of every item class
func (s *LearningService) Stats() (*LearningStats, error) {
	byClass, total, err := s.recordsByClass()
	if err != nil {
		return nil, err
	}

	stats := &LearningStats{TotalRecords: total, Classes: make(map[string]ClassLearningStats, len(byClass))}
	for key, records := range byClass {
		prices := make([]float64, len(records))
		for i, r := range records {
			prices[i] = s.toExalted(r.Price, r.Currency)
		}
		stats.Classes[key] = ClassLearningStats{
			ItemClass:   records[0].ItemClass,
			Count:       len(records),
			AvgPrice:    round1(Mean(prices)),
			MedianPrice: round1(Median(prices)),
			MinPrice:    round1(minOf(prices)),
			MaxPrice:    round1(maxOf(prices)),
		}
	}
	stats.ItemClasses = len(stats.Classes)
	return stats, nil
}
