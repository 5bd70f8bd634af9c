package services

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/codyseavey/poe2-price-checker/backend/internal/metrics"
	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

// ErrNotItemText is returned when the submitted text is not a game item
var ErrNotItemText = errors.New("text is not a game item")

// ScoutLookup is the poe2scout side of a price check
type ScoutLookup interface {
	Price(ctx context.Context, name string, rarity models.Rarity) (*models.ScoutPrice, error)
	Rates() CurrencyRates
}

// PriceCheckRequest is one price check
type PriceCheckRequest struct {
	Text         string   `json:"text"`
	DisabledMods []string `json:"disabled_mods"` // modifier lines excluded from the search
	SkipCache    bool     `json:"skip_cache"`
	SkipHistory  bool     `json:"skip_history"`
}

// PriceCheckResult is everything a price check produced. On a failed search the
// result still carries the item, its evaluation and the completed tiers.
type PriceCheckResult struct {
	Item          *models.ParsedItem    `json:"item"`
	Evaluation    models.ItemEvaluation `json:"evaluation"`
	Search        *models.SearchOutcome `json:"search,omitempty"`
	Listings      []models.Listing      `json:"listings"`
	Stats         *models.PriceStats    `json:"stats,omitempty"`
	CurrencyStats []models.PriceStats   `json:"currency_stats"`
	Estimate      *models.PriceEstimate `json:"estimate,omitempty"`
	Scout         *models.ScoutPrice    `json:"scout,omitempty"`
	Source        string                `json:"source"` // "trade" or "poe2scout"
	ScanID        string                `json:"scan_id,omitempty"`
	Error         string                `json:"error,omitempty"`
	Duration      time.Duration         `json:"duration"`
}

// PriceServiceDeps wires the price check pipeline. Scout, Cache, History, Learning and Icons are optional.
type PriceServiceDeps struct {
	Searcher  Searcher
	Stats     StatLookup
	Evaluator *TierEvaluator
	Scout     ScoutLookup
	Cache     *SearchCache
	History   *HistoryService
	Learning  *LearningService
	Icons     *IconStorageService
	League    func() string
	Options   SearchOptions
}

// PriceService runs the whole price check: parse, evaluate, search, aggregate and record
type PriceService struct {
	deps PriceServiceDeps
}

func NewPriceService(deps PriceServiceDeps) *PriceService {
	if deps.Evaluator == nil {
		deps.Evaluator = NewTierEvaluator()
	}
	if deps.League == nil {
		deps.League = func() string { return "Standard" }
	}
	return &PriceService{deps: deps}
}

// Evaluator returns the tier evaluator used for price checks
func (s *PriceService) Evaluator() *TierEvaluator {
	return s.deps.Evaluator
}

// Cache returns the search cache, nil when caching is disabled
func (s *PriceService) Cache() *SearchCache {
	return s.deps.Cache
}

// ParseAndEvaluate parses item text and scores its modifiers
func (s *PriceService) ParseAndEvaluate(text string) (*models.ParsedItem, models.ItemEvaluation, error) {
	if !LooksLikeItemText(text) {
		return nil, models.ItemEvaluation{}, ErrNotItemText
	}
	item := ParseItem(text)
	if item == nil {
		return nil, models.ItemEvaluation{}, ErrNotItemText
	}
	metrics.ItemsParsedTotal.WithLabelValues(strings.ToLower(string(item.Rarity))).Inc()
	return item, s.deps.Evaluator.EvaluateItem(item), nil
}

// CheckPrice prices an item. A non-nil result is returned with every error except ErrNotItemText.
func (s *PriceService) CheckPrice(ctx context.Context, req PriceCheckRequest) (*PriceCheckResult, error) {
	start := time.Now()
	defer func() {
		metrics.PriceCheckDuration.Observe(time.Since(start).Seconds())
	}()

	item, eval, err := s.ParseAndEvaluate(req.Text)
	if err != nil {
		metrics.PriceChecksTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	disableModifiers(item, req.DisabledMods)

	result := &PriceCheckResult{
		Item:          item,
		Evaluation:    eval,
		Listings:      []models.Listing{},
		CurrencyStats: []models.PriceStats{},
		Source:        "trade",
	}

	if item.Rarity == models.RarityCurrency {
		if s.fillFromScout(ctx, result) {
			s.finish(ctx, req, result, start, "scout")
			return result, nil
		}
	}

	outcome, searchErr := s.search(ctx, item, req.SkipCache)
	result.Search = outcome

	if final := outcome.Final(); final != nil {
		s.aggregate(result, final)
	}

	if searchErr != nil {
		result.Error = searchErr.Error()
		if len(result.Listings) == 0 && item.Rarity == models.RarityUnique && s.fillFromScout(ctx, result) {
			s.finish(ctx, req, result, start, "scout")
			return result, nil
		}
		s.finish(ctx, req, result, start, "error")
		return result, searchErr
	}

	if len(result.Listings) == 0 && item.Rarity == models.RarityUnique {
		s.fillFromScout(ctx, result)
	}

	outcomeLabel := "priced"
	if result.Stats == nil && result.Scout == nil {
		outcomeLabel = "no_listings"
	}
	s.finish(ctx, req, result, start, outcomeLabel)
	return result, nil
}

func (s *PriceService) search(ctx context.Context, item *models.ParsedItem, skipCache bool) (*models.SearchOutcome, error) {
	key := SearchCacheKey(s.deps.League(), item)
	if s.deps.Cache != nil && !skipCache {
		if cached, ok := s.deps.Cache.Get(key); ok {
			debugLog("Search cache hit for %s", key)
			return cached, nil
		}
	}

	outcome, err := NewProgressiveSearch(s.deps.Searcher, s.deps.Stats, s.deps.Options).Run(ctx, item)
	if err == nil && s.deps.Cache != nil {
		s.deps.Cache.Put(key, outcome)
	}
	return outcome, err
}

// aggregate fills listings, stats and, for base-only results, the estimate
func (s *PriceService) aggregate(result *PriceCheckResult, final *models.SearchTier) {
	listings := append([]models.Listing(nil), final.Listings...)
	if s.deps.Scout != nil {
		rates := s.deps.Scout.Rates()
		sort.SliceStable(listings, func(i, j int) bool {
			return rates.ToChaos(listings[i].Amount, listings[i].Currency) < rates.ToChaos(listings[j].Amount, listings[j].Currency)
		})
	}
	result.Listings = listings
	result.Stats = ComputeStats(listings)
	result.CurrencyStats = ComputeCurrencyStats(listings)

	rarity := result.Item.Rarity
	if final.Tier == TierBaseOnly && result.Stats != nil &&
		(rarity == models.RarityRare || rarity == models.RarityMagic) {
		estimate := EstimatePrice(result.Stats.Median, result.Stats.Currency, result.Stats.Count, result.Evaluation)
		result.Estimate = &estimate
	}
}

func (s *PriceService) fillFromScout(ctx context.Context, result *PriceCheckResult) bool {
	if s.deps.Scout == nil {
		return false
	}
	price, err := s.deps.Scout.Price(ctx, result.Item.DisplayName(), result.Item.Rarity)
	if err != nil {
		if !errors.Is(err, ErrScoutNotFound) {
			log.Printf("Price check: poe2scout lookup failed for %s: %v", result.Item.DisplayName(), err)
		}
		return false
	}
	result.Scout = price
	result.Source = "poe2scout"
	return true
}

// finish records history, learning data and metrics
func (s *PriceService) finish(ctx context.Context, req PriceCheckRequest, result *PriceCheckResult, start time.Time, outcome string) {
	result.Duration = time.Since(start)
	metrics.PriceChecksTotal.WithLabelValues(outcome).Inc()

	if req.SkipHistory || outcome == "error" {
		return
	}
	s.learn(result)
	if s.deps.History == nil {
		return
	}

	item := result.Item
	scan := &models.ScanRecord{
		ItemName:  item.Name,
		BaseType:  item.BaseType,
		Rarity:    item.Rarity,
		ItemClass: item.ItemClass,
		Score:     result.Evaluation.Score,
		Rating:    result.Evaluation.Rating,
		RawText:   item.RawText,
	}

	switch {
	case result.Stats != nil:
		scan.MedianPrice = result.Stats.Median
		scan.Currency = result.Stats.Currency
		scan.ListingCount = result.Stats.Count
	case result.Scout != nil:
		scan.MedianPrice = result.Scout.Exalted
		scan.Currency = "exalted"
		scan.ListingCount = result.Scout.Listings
	}
	if result.Search != nil {
		scan.StoppedAtTier = result.Search.StoppedAtTier
	}
	if result.Estimate != nil {
		scan.EstimateMin = &result.Estimate.Min
		scan.EstimateMax = &result.Estimate.Max
	}

	if scan.MedianPrice > 0 {
		record := &models.PriceRecord{
			ItemKey:      models.ItemKey(item.Rarity, item.Name, item.BaseType),
			MedianPrice:  scan.MedianPrice,
			Currency:     scan.Currency,
			ListingCount: scan.ListingCount,
			SearchTier:   scan.StoppedAtTier,
		}
		if err := s.deps.History.AddPriceRecord(record); err != nil {
			log.Printf("Price check: failed to save price record: %v", err)
		}
	}

	if s.deps.Icons != nil {
		if iconURL := s.iconURL(result); iconURL != "" {
			if filename, err := s.deps.Icons.DownloadIcon(ctx, iconURL); err != nil {
				debugLog("Icon download failed for %s: %v", iconURL, err)
			} else {
				scan.IconFile = filename
			}
		}
	}

	if err := s.deps.History.AddScan(scan); err != nil {
		log.Printf("Price check: failed to save scan: %v", err)
		return
	}
	result.ScanID = scan.ID
}

// learn records trade-priced rare and magic items for the learned estimates
func (s *PriceService) learn(result *PriceCheckResult) {
	item := result.Item
	if s.deps.Learning == nil || result.Stats == nil || result.Search == nil || item.ItemClass == "" {
		return
	}
	if item.Rarity != models.RarityRare && item.Rarity != models.RarityMagic {
		return
	}
	record := NewLearningRecord(item, result.Evaluation, result.Stats, result.Search.StoppedAtTier)
	if err := s.deps.Learning.Add(record); err != nil {
		log.Printf("Price check: failed to save learning record: %v", err)
	}
}

func (s *PriceService) iconURL(result *PriceCheckResult) string {
	if result.Search != nil && result.Search.Icon != "" {
		return result.Search.Icon
	}
	if result.Scout != nil {
		return result.Scout.Icon
	}
	return ""
}

// disableModifiers turns off modifiers whose text is in disabled
func disableModifiers(item *models.ParsedItem, disabled []string) {
	if len(disabled) == 0 {
		return
	}
	off := make(map[string]bool, len(disabled))
	for _, text := range disabled {
		off[strings.TrimSpace(text)] = true
	}
	for _, list := range [][]models.ItemModifier{item.ImplicitMods, item.ExplicitMods, item.CraftedMods} {
		for i := range list {
			if off[list[i].Text] {
				list[i].Enabled = false
			}
		}
	}
}
