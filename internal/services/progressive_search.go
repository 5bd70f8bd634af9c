package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/codyseavey/poe2-price-checker/backend/internal/metrics"
	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

const (
	TierExact = iota
	TierSimilar
	TierCoreMods
	TierBaseOnly
)

const (
	defaultMinListings = 5
	defaultMaxRetries  = 2
	defaultRetryAfter  = 5 * time.Second
	coreModifierCount  = 3
)

// Searcher runs one structured trade search and fetches up to query.Limit listings
type Searcher interface {
	Search(ctx context.Context, query models.TradeQuery) (*models.SearchResult, error)
}

// StatLookup resolves modifier texts to trade stat ids in bulk
type StatLookup interface {
	Resolve(ctx context.Context, texts []string) (map[string]string, error)
}

// TierError reports the tier at which a progressive search failed
type TierError struct {
	Tier int
	Err  error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("search tier %d: %v", e.Tier, e.Err)
}

func (e *TierError) Unwrap() error {
	return e.Err
}

// SearchOptions tunes the progressive search
type SearchOptions struct {
	MinListings int           // stop at the first tier with at least this many results
	MaxRetries  int           // retries per tier when rate limited
	FetchLimits [4]int        // listings fetched per tier
	RetryAfter  time.Duration // wait when a rate limit carries no Retry-After
}

// DefaultSearchOptions returns the standard early-stop and fetch settings
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		MinListings: defaultMinListings,
		MaxRetries:  defaultMaxRetries,
		FetchLimits: [4]int{10, 10, 10, 15},
		RetryAfter:  defaultRetryAfter,
	}
}

var tierNames = [4]struct{ name, description string }{
	{"Exact Match", "All mods, 100% values"},
	{"Similar", "All mods, 80% values"},
	{"Core Mods", "Top 3 mods, 50% values"},
	{"Base Only", "Base type and rarity only"},
}

// Search priority of a modifier category; higher is used first in the core mods tier
var categoryPriority = map[models.ModifierCategory]int{
	models.CategoryLife:       95,
	models.CategorySpeed:      90,
	models.CategoryCritical:   85,
	models.CategoryResistance: 75,
	models.CategoryDamage:     65,
	models.CategoryAttribute:  55,
	models.CategoryMana:       50,
	models.CategoryDefense:    45,
	models.CategoryAccuracy:   40,
	models.CategoryUnknown:    25,
}

// searchModifier is an enabled modifier with a resolved stat id
type searchModifier struct {
	Text     string
	StatID   string
	Value    *float64
	Priority int
}

// ProgressiveSearch runs tiered trade searches from most to least specific
type ProgressiveSearch struct {
	searcher Searcher
	stats    StatLookup
	opts     SearchOptions
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewProgressiveSearch(searcher Searcher, stats StatLookup, opts SearchOptions) *ProgressiveSearch {
	if opts.MinListings <= 0 {
		opts.MinListings = defaultMinListings
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = defaultRetryAfter
	}
	for i, limit := range opts.FetchLimits {
		if limit <= 0 {
			opts.FetchLimits[i] = DefaultSearchOptions().FetchLimits[i]
		}
	}
	return &ProgressiveSearch{
		searcher: searcher,
		stats:    stats,
		opts:     opts,
		sleep:    sleepContext,
	}
}

// Run searches tier by tier and stops at the first tier with enough listings.
// Every attempted tier is part of the outcome. On a search failure the outcome
// holds the tiers completed so far and the error is a *TierError.
// ErrStatsNotLoaded is returned before any search when stat ids are not available yet.
func (s *ProgressiveSearch) Run(ctx context.Context, item *models.ParsedItem) (*models.SearchOutcome, error) {
	outcome := &models.SearchOutcome{Tiers: []models.SearchTier{}}

	mods, err := s.resolveModifiers(ctx, item)
	switch {
	case errors.Is(err, ErrStatsNotLoaded):
		outcome.Error = err.Error()
		return outcome, err
	case err != nil:
		log.Printf("Search: stat resolution failed, searching without modifier filters: %v", err)
		outcome.StatsUnresolved = true
	}
	log.Printf("Search: %s %q: %d searchable modifiers", item.Rarity, item.DisplayName(), len(mods))

	for tier := TierExact; tier <= TierBaseOnly; tier++ {
		query, ok := BuildTierQuery(tier, item, mods)
		if !ok {
			debugLog("Search: skipping tier %d", tier)
			continue
		}
		query.Limit = s.opts.FetchLimits[tier]

		result, searches, err := s.searchWithRetry(ctx, tier, query)
		outcome.TotalSearches += searches

		if err != nil {
			outcome.Tiers = append(outcome.Tiers, models.SearchTier{
				Tier:        tier,
				Name:        tierNames[tier].name,
				Description: tierNames[tier].description,
				Listings:    []models.Listing{},
				Error:       err.Error(),
			})
			outcome.Error = err.Error()
			metrics.TradeSearchesTotal.WithLabelValues(tierLabel(tier), "error").Inc()
			log.Printf("Search: tier %d failed after %d searches: %v", tier, searches, err)
			return outcome, &TierError{Tier: tier, Err: err}
		}

		listings := result.Listings
		if listings == nil {
			listings = []models.Listing{}
		}
		outcome.Tiers = append(outcome.Tiers, models.SearchTier{
			Tier:        tier,
			Name:        tierNames[tier].name,
			Description: tierNames[tier].description,
			Total:       result.Total,
			Listings:    listings,
			Fetched:     len(listings),
		})
		outcome.StoppedAtTier = tier
		if outcome.Icon == "" && result.Icon != "" {
			outcome.Icon = result.Icon
		}

		log.Printf("Search: tier %d: %d total, %d fetched", tier, result.Total, len(listings))

		if result.Total >= s.opts.MinListings {
			metrics.TradeSearchesTotal.WithLabelValues(tierLabel(tier), "enough").Inc()
			break
		}
		metrics.TradeSearchesTotal.WithLabelValues(tierLabel(tier), "too_few").Inc()
	}

	if len(outcome.Tiers) == 0 {
		outcome.Error = "no search tier applicable"
	} else if outcome.Final().Total == 0 {
		outcome.Error = "No listings found in any tier"
	}

	return outcome, nil
}

// resolveModifiers resolves stat ids once for every enabled modifier.
// Modifiers without an id are left out of all tiers.
func (s *ProgressiveSearch) resolveModifiers(ctx context.Context, item *models.ParsedItem) ([]searchModifier, error) {
	// Unique searches never filter on modifiers
	if item.Rarity == models.RarityUnique {
		return nil, nil
	}

	var enabled []models.ItemModifier
	for _, mod := range item.AllModifiers() {
		if mod.Enabled {
			enabled = append(enabled, mod)
		}
	}
	if len(enabled) == 0 || s.stats == nil {
		return nil, nil
	}

	texts := make([]string, len(enabled))
	for i, mod := range enabled {
		texts[i] = mod.Text
	}

	ids, err := s.stats.Resolve(ctx, texts)
	if err != nil {
		return nil, err
	}

	mods := make([]searchModifier, 0, len(enabled))
	for _, mod := range enabled {
		id := mod.StatID
		if id == "" {
			id = ids[mod.Text]
		}
		if id == "" {
			debugLog("Search: no stat id for %q", mod.Text)
			continue
		}
		mods = append(mods, searchModifier{
			Text:     mod.Text,
			StatID:   id,
			Value:    mod.Value,
			Priority: categoryPriority[CategorizeModifier(mod.Text)],
		})
	}
	return mods, nil
}

func (s *ProgressiveSearch) searchWithRetry(ctx context.Context, tier int, query models.TradeQuery) (*models.SearchResult, int, error) {
	searches := 0
	for attempt := 0; ; attempt++ {
		searches++
		result, err := s.searcher.Search(ctx, query)
		if err == nil {
			return result, searches, nil
		}

		var rateErr *RateLimitError
		if !errors.As(err, &rateErr) || attempt >= s.opts.MaxRetries {
			return nil, searches, err
		}

		wait := rateErr.RetryAfter
		if wait <= 0 {
			wait = s.opts.RetryAfter
		}
		log.Printf("Search: tier %d rate limited, retry %d/%d after %s", tier, attempt+1, s.opts.MaxRetries, wait)
		if err := s.sleep(ctx, wait); err != nil {
			return nil, searches, err
		}
	}
}

// BuildTierQuery builds the trade query for one tier. It returns false when the
// tier does not apply to the item.
func BuildTierQuery(tier int, item *models.ParsedItem, mods []searchModifier) (models.TradeQuery, bool) {
	query := models.TradeQuery{
		Rarity:      item.Rarity,
		StatFilters: []models.StatFilter{},
	}

	// Magic base type lines carry affix names and cannot be searched as a type
	if item.Rarity != models.RarityMagic {
		query.BaseType = item.BaseType
	}

	switch item.Rarity {
	case models.RarityUnique:
		// Uniques have fixed modifiers; the name is the whole search
		if tier != TierExact {
			return query, false
		}
		query.Name = item.Name
		query.Properties = buildPropertyFilters(item)
		return query, true
	case models.RarityMagic:
		if tier == TierBaseOnly {
			return query, false
		}
	}

	switch tier {
	case TierExact:
		query.StatFilters = statFilters(mods, 1.0)
		query.StatMinMatch = len(query.StatFilters)
	case TierSimilar:
		query.StatFilters = statFilters(mods, 0.8)
		query.StatMinMatch = max(1, len(query.StatFilters)-1)
	case TierCoreMods:
		query.StatFilters = statFilters(topModifiers(mods, coreModifierCount), 0.5)
		query.StatMinMatch = min(2, len(query.StatFilters))
	case TierBaseOnly:
		return query, true
	default:
		return query, false
	}

	if len(query.StatFilters) == 0 {
		return query, false
	}
	query.Properties = buildPropertyFilters(item)
	return query, true
}

func statFilters(mods []searchModifier, factor float64) []models.StatFilter {
	filters := make([]models.StatFilter, 0, len(mods))
	for _, mod := range mods {
		filter := models.StatFilter{StatID: mod.StatID, Text: mod.Text}
		if mod.Value != nil {
			if v := math.Floor(*mod.Value * factor); v > 0 {
				filter.Min = &v
			}
		}
		filters = append(filters, filter)
	}
	return filters
}

// topModifiers returns the n highest priority modifiers, keeping item order among equals
func topModifiers(mods []searchModifier, n int) []searchModifier {
	sorted := make([]searchModifier, len(mods))
	copy(sorted, mods)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// buildPropertyFilters relaxes the item's own properties into minimums
func buildPropertyFilters(item *models.ParsedItem) models.PropertyFilters {
	var f models.PropertyFilters
	props := item.Properties

	if item.ItemLevel != nil && *item.ItemLevel > 1 {
		f.MinItemLevel = intPtr(max(1, *item.ItemLevel-10))
	}
	if props.Quality != nil && *props.Quality > 0 {
		f.MinQuality = intPtr(max(0, *props.Quality-5))
	}
	if item.Sockets != nil && item.Sockets.Count >= 2 {
		f.MinSockets = intPtr(item.Sockets.Count - 1)
	}
	if item.PhysicalDPS != nil && *item.PhysicalDPS > 0 {
		f.MinPhysicalDPS = intPtr(int(*item.PhysicalDPS * 0.7))
	}
	if item.ElementalDPS != nil && *item.ElementalDPS > 0 {
		f.MinElementalDPS = intPtr(int(*item.ElementalDPS * 0.7))
	}
	f.MinArmour = relaxedMinimum(props.Armour, 50)
	f.MinEvasion = relaxedMinimum(props.Evasion, 50)
	f.MinEnergyShield = relaxedMinimum(props.EnergyShield, 30)
	f.MinBlock = relaxedMinimum(props.Block, 10)
	f.MinSpirit = relaxedMinimum(props.Spirit, 10)
	if props.AttackSpeed != nil && *props.AttackSpeed > 1.0 {
		f.MinAttackSpeed = floatPtr(math.Round(*props.AttackSpeed*0.9*100) / 100)
	}
	if props.CritChance != nil && *props.CritChance > 5.0 {
		f.MinCritChance = floatPtr(math.Round(*props.CritChance*0.8*10) / 10)
	}
	if item.GemLevel != nil && *item.GemLevel > 1 {
		f.MinGemLevel = intPtr(*item.GemLevel)
	}
	if item.Corrupted {
		corrupted := true
		f.Corrupted = &corrupted
	}
	return f
}

// relaxedMinimum returns 70% of value when value exceeds threshold
func relaxedMinimum(value *int, threshold int) *int {
	if value == nil || *value <= threshold {
		return nil
	}
	return intPtr(int(float64(*value) * 0.7))
}

func tierLabel(tier int) string {
	return fmt.Sprintf("%d", tier)
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
