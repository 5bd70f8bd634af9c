package models

import "time"

// Listing is one priced marketplace listing
type Listing struct {
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Account   string    `json:"account"`
	Character string    `json:"character,omitempty"`
	Online    *string   `json:"online,omitempty"` // "online", "afk", ... nil when offline or unknown
	Whisper   string    `json:"whisper,omitempty"`
	Indexed   time.Time `json:"indexed"`
}

// StatFilter is a structured modifier filter for the trade search
type StatFilter struct {
	StatID string   `json:"id"`
	Text   string   `json:"text"`
	Min    *float64 `json:"min,omitempty"`
}

// PropertyFilters are non-modifier filters derived from the item's properties.
// Nil fields are not sent.
type PropertyFilters struct {
	MinItemLevel    *int     `json:"min_ilvl,omitempty"`
	MinQuality      *int     `json:"min_quality,omitempty"`
	MinSockets      *int     `json:"min_sockets,omitempty"`
	MinPhysicalDPS  *int     `json:"min_pdps,omitempty"`
	MinElementalDPS *int     `json:"min_edps,omitempty"`
	MinArmour       *int     `json:"min_armour,omitempty"`
	MinEvasion      *int     `json:"min_evasion,omitempty"`
	MinEnergyShield *int     `json:"min_energy_shield,omitempty"`
	MinBlock        *int     `json:"min_block,omitempty"`
	MinSpirit       *int     `json:"min_spirit,omitempty"`
	MinAttackSpeed  *float64 `json:"min_aps,omitempty"`
	MinCritChance   *float64 `json:"min_crit,omitempty"`
	MinGemLevel     *int     `json:"min_gem_level,omitempty"`
	Corrupted       *bool    `json:"corrupted,omitempty"`
}

// TradeQuery is what the search collaborator receives for one tier
type TradeQuery struct {
	BaseType     string          `json:"base_type,omitempty"`
	Rarity       Rarity          `json:"rarity"`
	Name         string          `json:"name,omitempty"`
	StatFilters  []StatFilter    `json:"stat_filters"`
	StatMinMatch int             `json:"stat_min_match"` // how many of StatFilters must match
	Properties   PropertyFilters `json:"properties"`
	Limit        int             `json:"limit"` // listings to fetch
}

// SearchResult is the search collaborator's answer
type SearchResult struct {
	Total    int       `json:"total"`
	Listings []Listing `json:"listings"`
	Icon     string    `json:"icon,omitempty"`
}

// SearchTier is the outcome of one attempted tier of a progressive search
type SearchTier struct {
	Tier        int       `json:"tier"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Total       int       `json:"total"`
	Listings    []Listing `json:"listings"`
	Fetched     int       `json:"fetched"`
	Error       string    `json:"error,omitempty"`
}

// SearchOutcome is the full result of a progressive search run
type SearchOutcome struct {
	Tiers         []SearchTier `json:"tiers"`
	StoppedAtTier int          `json:"stopped_at_tier"`
	TotalSearches int          `json:"total_searches"`
	Icon          string       `json:"icon,omitempty"`
	FromCache     bool         `json:"from_cache"`
	Error         string       `json:"error,omitempty"`

	// StatsUnresolved is set when stat id resolution failed and the tiers ran
	// without modifier filters
	StatsUnresolved bool `json:"stats_unresolved,omitempty"`
}

// Final returns the last successfully completed tier, nil when none succeeded
func (o *SearchOutcome) Final() *SearchTier {
	for i := len(o.Tiers) - 1; i >= 0; i-- {
		if o.Tiers[i].Error == "" {
			return &o.Tiers[i]
		}
	}
	return nil
}
