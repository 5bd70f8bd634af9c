package services

import (
	"math"
	"sort"
	"strings"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

// currencyGroup holds the positive prices seen for one currency, in listing order
type currencyGroup struct {
	currency string
	prices   []float64
}

// groupByCurrency groups priced listings by lower-cased currency, ordered by first appearance.
// Listings without a currency or with a non-positive amount carry no price signal and are skipped.
func groupByCurrency(listings []models.Listing) []*currencyGroup {
	var groups []*currencyGroup
	index := make(map[string]*currencyGroup)

	for _, l := range listings {
		currency := strings.ToLower(strings.TrimSpace(l.Currency))
		if currency == "" || l.Amount <= 0 || math.IsNaN(l.Amount) || math.IsInf(l.Amount, 0) {
			continue
		}
		g, ok := index[currency]
		if !ok {
			g = &currencyGroup{currency: currency}
			index[currency] = g
			groups = append(groups, g)
		}
		g.prices = append(g.prices, l.Amount)
	}
	return groups
}

// ComputeStats returns statistics for the dominant currency of listings, nil when
// no listing carries a usable price. Ties go to the currency seen first.
func ComputeStats(listings []models.Listing) *models.PriceStats {
	groups := groupByCurrency(listings)
	if len(groups) == 0 {
		return nil
	}

	dominant := groups[0]
	for _, g := range groups[1:] {
		if len(g.prices) > len(dominant.prices) {
			dominant = g
		}
	}

	stats := statsForGroup(dominant)
	return &stats
}

// ComputeCurrencyStats returns statistics for every currency, most listings first
func ComputeCurrencyStats(listings []models.Listing) []models.PriceStats {
	groups := groupByCurrency(listings)
	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].prices) > len(groups[j].prices)
	})

	result := make([]models.PriceStats, 0, len(groups))
	for _, g := range groups {
		result = append(result, statsForGroup(g))
	}
	return result
}

func statsForGroup(g *currencyGroup) models.PriceStats {
	sorted := make([]float64, len(g.prices))
	copy(sorted, g.prices)
	sort.Float64s(sorted)

	mean := Mean(sorted)
	stdDev := StdDev(sorted)

	return models.PriceStats{
		Currency:   g.currency,
		Count:      len(sorted),
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Median:     Median(sorted),
		Mean:       mean,
		P10:        Percentile(sorted, 10),
		P25:        Percentile(sorted, 25),
		P75:        Percentile(sorted, 75),
		P90:        Percentile(sorted, 90),
		StdDev:     stdDev,
		Volatility: VolatilityFor(mean, stdDev),
	}
}

// Mean returns the arithmetic mean, 0 for no values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median returns the middle value, or the mean of the two middle values; 0 for no values
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := sortedCopy(values)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Percentile interpolates linearly between the two sorted values around p/100*(n-1).
// p is clamped to [0, 100]; 0 for no values.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := sortedCopy(values)
	p = math.Max(0, math.Min(100, p))

	idx := p / 100 * float64(n-1)
	lower := int(math.Floor(idx))
	upper := min(lower+1, n-1)
	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// StdDev returns the population standard deviation; 0 for fewer than two values
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

// VolatilityFor labels the coefficient of variation stdDev/mean
func VolatilityFor(mean, stdDev float64) models.Volatility {
	if mean == 0 {
		return models.VolatilityLow
	}
	cv := stdDev / mean
	switch {
	case cv < 0.25:
		return models.VolatilityLow
	case cv < 0.5:
		return models.VolatilityMedium
	default:
		return models.VolatilityHigh
	}
}

func sortedCopy(values []float64) []float64 {
	if sort.Float64sAreSorted(values) {
		return values
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}
