package models

// ModifierCategory is a coarse grouping of modifiers used for weighting and search priority
type ModifierCategory string

const (
	CategoryLife       ModifierCategory = "life"
	CategorySpeed      ModifierCategory = "speed"
	CategoryCritical   ModifierCategory = "critical"
	CategoryDamage     ModifierCategory = "damage"
	CategoryResistance ModifierCategory = "resistance"
	CategoryDefense    ModifierCategory = "defense"
	CategoryAttribute  ModifierCategory = "attribute"
	CategoryAccuracy   ModifierCategory = "accuracy"
	CategoryMana       ModifierCategory = "mana"
	CategoryUnknown    ModifierCategory = "unknown"
)

// ParseModifierCategory maps a catalog category string to a ModifierCategory.
// The catalog builder emits "other" for anything it could not classify.
func ParseModifierCategory(s string) ModifierCategory {
	switch ModifierCategory(s) {
	case CategoryLife, CategorySpeed, CategoryCritical, CategoryDamage, CategoryResistance,
		CategoryDefense, CategoryAttribute, CategoryAccuracy, CategoryMana:
		return ModifierCategory(s)
	default:
		return CategoryUnknown
	}
}

type Rating string

const (
	RatingTrash     Rating = "trash"
	RatingOkay      Rating = "okay"
	RatingGood      Rating = "good"
	RatingGreat     Rating = "great"
	RatingExcellent Rating = "excellent"
)

// RatingForScore applies the fixed rating thresholds
func RatingForScore(score int) Rating {
	switch {
	case score >= 85:
		return RatingExcellent
	case score >= 70:
		return RatingGreat
	case score >= 55:
		return RatingGood
	case score >= 40:
		return RatingOkay
	default:
		return RatingTrash
	}
}

// TierRange is one tier of a modifier in the tier catalog. Tier 1 is the best.
type TierRange struct {
	Tier int     `json:"tier"`
	Name string  `json:"name"`
	ILvl int     `json:"ilvl"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// TierModifier is a catalog entry for one modifier family
type TierModifier struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	TextPattern string      `json:"textPattern"`
	ItemClasses []string    `json:"itemClasses"`
	Tiers       []TierRange `json:"tiers"`
	Category    string      `json:"category"`
	IsPrefix    bool        `json:"isPrefix"`
	Tags        []string    `json:"tags"`
}

// TierCatalog is the modifier_tiers.json document
type TierCatalog struct {
	Modifiers   []TierModifier `json:"modifiers"`
	Version     string         `json:"version"`
	LastUpdated string         `json:"lastUpdated"`
	Source      string         `json:"source"`
}

// ModifierTierMatch is the tier lookup result for one modifier. Not persisted.
type ModifierTierMatch struct {
	Tier        int              `json:"tier"`
	TotalTiers  int              `json:"total_tiers"`
	TierPercent float64          `json:"tier_percent"`
	RollPercent float64          `json:"roll_percent"`
	Category    ModifierCategory `json:"category"`
	Range       TierRange        `json:"range"`
}

// ModifierEvaluation is the evaluator output for a single modifier
type ModifierEvaluation struct {
	Text        string             `json:"text"`
	Type        ModifierType       `json:"type"`
	Pattern     string             `json:"pattern"`
	Category    ModifierCategory   `json:"category"`
	Match       *ModifierTierMatch `json:"match,omitempty"`
	HasTierData bool               `json:"has_tier_data"`
	Score       int                `json:"score"`
	Bonus       int                `json:"bonus,omitempty"`
	Note        string             `json:"note,omitempty"`
}

// ItemEvaluation is derived from a ParsedItem and the tier catalog; recomputed on demand
type ItemEvaluation struct {
	Score         int                  `json:"score"`
	Rating        Rating               `json:"rating"`
	IsGood        bool                 `json:"is_good"`
	Modifiers     []ModifierEvaluation `json:"modifiers"`
	Suggestions   []string             `json:"suggestions"`
	Summary       string               `json:"summary"`
	TieredCount   int                  `json:"tiered_count"`
	HighTierCount int                  `json:"high_tier_count"` // tier <= 3
}

// CountTier returns how many evaluated modifiers matched exactly the given tier
func (e *ItemEvaluation) CountTier(tier int) int {
	n := 0
	for _, m := range e.Modifiers {
		if m.Match != nil && m.Match.Tier == tier {
			n++
		}
	}
	return n
}
