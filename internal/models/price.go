package models

type Volatility string

const (
	VolatilityLow    Volatility = "low"
	VolatilityMedium Volatility = "medium"
	VolatilityHigh   Volatility = "high"
)

// PriceStats describes the price distribution of one currency group of listings
type PriceStats struct {
	Currency   string     `json:"currency"`
	Count      int        `json:"count"`
	Min        float64    `json:"min"`
	Max        float64    `json:"max"`
	Median     float64    `json:"median"`
	Mean       float64    `json:"mean"`
	P10        float64    `json:"p10"`
	P25        float64    `json:"p25"`
	P75        float64    `json:"p75"`
	P90        float64    `json:"p90"`
	StdDev     float64    `json:"std_dev"`
	Volatility Volatility `json:"volatility"`
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// PriceEstimate is a multiplier-adjusted price range derived from base-type stats
type PriceEstimate struct {
	Min           float64    `json:"min"`
	Max           float64    `json:"max"`
	Currency      string     `json:"currency"`
	Confidence    Confidence `json:"confidence"`
	Reason        string     `json:"reason"`
	Basis         string     `json:"basis"`
	MinMultiplier float64    `json:"min_multiplier"`
	MaxMultiplier float64    `json:"max_multiplier"`
}

// ScoutPrice is a price from the poe2scout aggregation service
type ScoutPrice struct {
	Name       string     `json:"name"`
	Exalted    float64    `json:"exalted"`
	Chaos      float64    `json:"chaos"`
	Divine     float64    `json:"divine"`
	Listings   int        `json:"listings"`
	Confidence Confidence `json:"confidence"`
	Icon       string     `json:"icon,omitempty"`
}
