package services

import (
	"math"
	"testing"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

func testListings(pairs ...interface{}) []models.Listing {
	var result []models.Listing
	for i := 0; i+1 < len(pairs); i += 2 {
		result = append(result, models.Listing{
			Amount:   toFloat(pairs[i]),
			Currency: pairs[i+1].(string),
		})
	}
	return result
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeStatsBasic(t *testing.T) {
	stats := ComputeStats(testListings(10, "chaos", 20, "chaos", 30, "chaos"))
	if stats == nil {
		t.Fatal("ComputeStats returned nil")
	}
	if stats.Min != 10 || stats.Max != 30 || stats.Median != 20 || stats.Mean != 20 {
		t.Errorf("min/max/median/mean = %v/%v/%v/%v, want 10/30/20/20", stats.Min, stats.Max, stats.Median, stats.Mean)
	}
	if stats.Currency != "chaos" || stats.Count != 3 {
		t.Errorf("currency/count = %s/%d, want chaos/3", stats.Currency, stats.Count)
	}
	if stats.P25 != 15 || stats.P75 != 25 {
		t.Errorf("P25/P75 = %v/%v, want 15/25", stats.P25, stats.P75)
	}
	// population std dev of 10,20,30 = sqrt(200/3)
	if !almostEqual(stats.StdDev, math.Sqrt(200.0/3.0)) {
		t.Errorf("StdDev = %v", stats.StdDev)
	}
	// cv ~0.41
	if stats.Volatility != models.VolatilityMedium {
		t.Errorf("Volatility = %s, want medium", stats.Volatility)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	if ComputeStats(nil) != nil {
		t.Error("ComputeStats(nil) should be nil")
	}
	if ComputeStats(testListings(0, "chaos", -5, "divine", 3, "")) != nil {
		t.Error("listings without usable prices should yield nil")
	}
	if got := ComputeCurrencyStats(nil); len(got) != 0 {
		t.Errorf("ComputeCurrencyStats(nil) = %v, want empty", got)
	}
}

func TestComputeStatsDominantCurrency(t *testing.T) {
	tests := []struct {
		name     string
		input    []models.Listing
		currency string
		count    int
	}{
		{"Most listings wins", testListings(1, "divine", 50, "Exalted", 60, "exalted", 2, "divine", 70, "EXALTED"), "exalted", 3},
		{"Tie goes to first seen", testListings(1, "divine", 50, "exalted", 2, "divine", 60, "exalted"), "divine", 2},
		{"Case insensitive", testListings(1, "Chaos", 2, "CHAOS"), "chaos", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := ComputeStats(tt.input)
			if stats == nil {
				t.Fatal("ComputeStats returned nil")
			}
			if stats.Currency != tt.currency || stats.Count != tt.count {
				t.Errorf("currency/count = %s/%d, want %s/%d", stats.Currency, stats.Count, tt.currency, tt.count)
			}
		})
	}
}

func TestComputeCurrencyStats(t *testing.T) {
	all := ComputeCurrencyStats(testListings(1, "divine", 50, "exalted", 60, "exalted", 100, "chaos", 70, "exalted", 2, "divine"))
	if len(all) != 3 {
		t.Fatalf("got %d groups, want 3", len(all))
	}
	want := []struct {
		currency string
		count    int
	}{{"exalted", 3}, {"divine", 2}, {"chaos", 1}}
	for i, w := range want {
		if all[i].Currency != w.currency || all[i].Count != w.count {
			t.Errorf("group %d = %s/%d, want %s/%d", i, all[i].Currency, all[i].Count, w.currency, w.count)
		}
	}
}

func TestPercentileMatchesMedian(t *testing.T) {
	inputs := [][]float64{
		{5},
		{1, 2},
		{3, 1, 2},
		{10, 20, 30, 40},
		{7.5, 1.25, 100, 3, 3, 42},
		{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7},
	}
	for _, values := range inputs {
		if p, m := Percentile(values, 50), Median(values); !almostEqual(p, m) {
			t.Errorf("Percentile(%v, 50) = %v, Median = %v", values, p, m)
		}
	}
}

func TestPercentileEdges(t *testing.T) {
	values := []float64{4, 1, 3, 2}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{100, 4},
		{-10, 1},
		{150, 4},
		{10, 1.3},
		{90, 3.7},
	}
	for _, tt := range tests {
		if got := Percentile(values, tt.p); !almostEqual(got, tt.want) {
			t.Errorf("Percentile(%v, %v) = %v, want %v", values, tt.p, got, tt.want)
		}
	}
	if Percentile(nil, 50) != 0 || Median(nil) != 0 {
		t.Error("empty input should give 0")
	}
	// input must not be reordered
	if values[0] != 4 {
		t.Error("Percentile sorted its input in place")
	}
}

func TestStdDevAndVolatility(t *testing.T) {
	if StdDev([]float64{42}) != 0 {
		t.Error("StdDev of one value should be 0")
	}
	if got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}); got != 2 {
		t.Errorf("StdDev = %v, want 2 (population)", got)
	}

	tests := []struct {
		mean, std float64
		want      models.Volatility
	}{
		{0, 5, models.VolatilityLow},
		{100, 10, models.VolatilityLow},
		{100, 25, models.VolatilityMedium},
		{100, 49, models.VolatilityMedium},
		{100, 50, models.VolatilityHigh},
	}
	for _, tt := range tests {
		if got := VolatilityFor(tt.mean, tt.std); got != tt.want {
			t.Errorf("VolatilityFor(%v, %v) = %s, want %s", tt.mean, tt.std, got, tt.want)
		}
	}
}
