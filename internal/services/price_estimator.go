package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

// multiplierRange scales a base-type price by item quality
type multiplierRange struct {
	min, max float64
}

var ratingMultipliers = map[models.Rating]multiplierRange{
	models.RatingExcellent: {1.5, 3.0},
	models.RatingGreat:     {1.2, 2.0},
	models.RatingGood:      {1.0, 1.5},
	models.RatingOkay:      {0.8, 1.2},
	models.RatingTrash:     {0.5, 0.9},
}

// EstimatePrice turns the price of the plain base type into a range for this item.
// basePrice is usually the median of a base-only search.
func EstimatePrice(basePrice float64, baseCurrency string, baseListingCount int, eval models.ItemEvaluation) models.PriceEstimate {
	mult, ok := ratingMultipliers[eval.Rating]
	if !ok {
		mult = ratingMultipliers[models.RatingTrash]
	}

	t1 := eval.CountTier(1)
	t2 := eval.CountTier(2)

	switch {
	case t1 >= 2:
		mult.min *= 1.15
		mult.max *= 1.25
	case t1 == 1:
		mult.min *= 1.05
		mult.max *= 1.1
	}
	if t2 >= 2 {
		mult.min *= 1.05
		mult.max *= 1.1
	}

	var confidence models.Confidence
	switch {
	case baseListingCount >= 10 && eval.TieredCount >= 3:
		confidence = models.ConfidenceHigh
	case baseListingCount >= 5 || eval.TieredCount >= 2:
		confidence = models.ConfidenceMedium
	default:
		confidence = models.ConfidenceLow
	}

	reason := []string{fmt.Sprintf("%s item (score %d)", eval.Rating, eval.Score)}
	if t1 > 0 {
		reason = append(reason, fmt.Sprintf("%d T1 modifier(s)", t1))
	}
	if t2 > 0 {
		reason = append(reason, fmt.Sprintf("%d T2 modifier(s)", t2))
	}

	return models.PriceEstimate{
		Min:           round1(basePrice * mult.min),
		Max:           round1(basePrice * mult.max),
		Currency:      baseCurrency,
		Confidence:    confidence,
		Reason:        strings.Join(reason, ", "),
		Basis:         fmt.Sprintf("base type price %s %s from %d listing(s)", formatAmount(basePrice), baseCurrency, baseListingCount),
		MinMultiplier: mult.min,
		MaxMultiplier: mult.max,
	}
}

func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
