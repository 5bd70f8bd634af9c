package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

const divineOrbText = `Item Class: Stackable Currency
Rarity: Currency
Divine Orb
--------
Stack Size: 3/20
--------
Randomises the numeric values of the random modifiers on an item`

type fakeScout struct {
	price *models.ScoutPrice
	err   error
	calls int
}

func (f *fakeScout) Price(_ context.Context, _ string, _ models.Rarity) (*models.ScoutPrice, error) {
	f.calls++
	return f.price, f.err
}

func (f *fakeScout) Rates() CurrencyRates {
	return DefaultCurrencyRates()
}

func newTestPriceService(t *testing.T, searcher Searcher, scout ScoutLookup) (*PriceService, *HistoryService) {
	t.Helper()
	history := NewHistoryService(newTestDB(t), nil, DefaultMaxScanRecords)
	deps := PriceServiceDeps{
		Searcher: searcher,
		Stats:    &fakeStatLookup{},
		Cache:    NewSearchCache(10, time.Minute),
		History:  history,
		Options:  DefaultSearchOptions(),
		Scout:    scout,
	}
	return NewPriceService(deps), history
}

func TestCheckPriceRareItem(t *testing.T) {
	searcher := &fakeSearcher{results: []fakeSearchResult{found(10)}}
	svc, history := newTestPriceService(t, searcher, nil)

	result, err := svc.CheckPrice(context.Background(), PriceCheckRequest{Text: rareRingText})
	if err != nil {
		t.Fatalf("CheckPrice() error = %v", err)
	}

	if result.Source != "trade" {
		t.Errorf("Source = %q, want trade", result.Source)
	}
	if len(result.Listings) != 3 {
		t.Errorf("Expected 3 listings, got %d", len(result.Listings))
	}
	if result.Stats == nil || result.Stats.Median != 2 || result.Stats.Currency != "exalted" {
		t.Fatalf("Unexpected stats: %+v", result.Stats)
	}
	if result.Estimate != nil {
		t.Error("Estimate should only be set for base-only results")
	}
	if len(result.Evaluation.Modifiers) != 4 {
		t.Errorf("Expected 4 evaluated modifiers, got %d", len(result.Evaluation.Modifiers))
	}
	if result.ScanID == "" {
		t.Error("Expected the scan to be recorded")
	}

	records, err := history.PriceHistory(models.ItemKey(models.RarityRare, "Storm Loop", "Sapphire Ring"))
	if err != nil {
		t.Fatalf("PriceHistory() error = %v", err)
	}
	if len(records) != 1 || records[0].MedianPrice != 2 {
		t.Errorf("Unexpected price history: %+v", records)
	}

	scan, err := history.Scan(result.ScanID)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if scan.ItemName != "Storm Loop" || scan.ListingCount != 3 {
		t.Errorf("Unexpected scan: %+v", scan)
	}
}

func TestCheckPriceBaseOnlyEstimate(t *testing.T) {
	empty := fakeSearchResult{result: &models.SearchResult{}}
	searcher := &fakeSearcher{results: []fakeSearchResult{empty, empty, empty, found(8)}}
	svc, history := newTestPriceService(t, searcher, nil)

	result, err := svc.CheckPrice(context.Background(), PriceCheckRequest{Text: rareRingText})
	if err != nil {
		t.Fatalf("CheckPrice() error = %v", err)
	}

	if result.Search.StoppedAtTier != TierBaseOnly {
		t.Fatalf("StoppedAtTier = %d, want %d", result.Search.StoppedAtTier, TierBaseOnly)
	}
	if result.Estimate == nil {
		t.Fatal("Expected an estimate at the base-only tier")
	}
	if result.Estimate.Min > result.Estimate.Max {
		t.Errorf("Estimate min %v > max %v", result.Estimate.Min, result.Estimate.Max)
	}

	scan, err := history.Scan(result.ScanID)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if scan.EstimateMin == nil || scan.StoppedAtTier != TierBaseOnly {
		t.Errorf("Scan should carry the estimate and tier: %+v", scan)
	}
}

func TestCheckPriceUsesCache(t *testing.T) {
	searcher := &fakeSearcher{results: []fakeSearchResult{found(10)}}
	svc, _ := newTestPriceService(t, searcher, nil)
	ctx := context.Background()

	if _, err := svc.CheckPrice(ctx, PriceCheckRequest{Text: rareRingText, SkipHistory: true}); err != nil {
		t.Fatalf("First CheckPrice() error = %v", err)
	}
	searches := len(searcher.queries)

	result, err := svc.CheckPrice(ctx, PriceCheckRequest{Text: rareRingText, SkipHistory: true})
	if err != nil {
		t.Fatalf("Second CheckPrice() error = %v", err)
	}
	if len(searcher.queries) != searches {
		t.Errorf("Cached check searched again: %d -> %d", searches, len(searcher.queries))
	}
	if !result.Search.FromCache {
		t.Error("Expected FromCache on the second check")
	}
	if result.ScanID != "" {
		t.Error("SkipHistory should not record a scan")
	}

	if _, err := svc.CheckPrice(ctx, PriceCheckRequest{Text: rareRingText, SkipCache: true, SkipHistory: true}); err != nil {
		t.Fatalf("Uncached CheckPrice() error = %v", err)
	}
	if len(searcher.queries) == searches {
		t.Error("SkipCache should search again")
	}
}

func TestCheckPriceDisabledModifiers(t *testing.T) {
	searcher := &fakeSearcher{results: []fakeSearchResult{found(10)}}
	svc, _ := newTestPriceService(t, searcher, nil)

	_, err := svc.CheckPrice(context.Background(), PriceCheckRequest{
		Text:         rareRingText,
		DisabledMods: []string{"+85 to maximum Life", " +15 to Dexterity "},
		SkipHistory:  true,
	})
	if err != nil {
		t.Fatalf("CheckPrice() error = %v", err)
	}

	filters := searcher.queries[0].StatFilters
	if len(filters) != 3 {
		t.Errorf("Expected 3 stat filters with two modifiers disabled, got %d", len(filters))
	}
}

func TestCheckPriceNotItemText(t *testing.T) {
	svc, _ := newTestPriceService(t, &fakeSearcher{}, nil)

	for _, text := range []string{"", "hello there", "just\ntwo lines"} {
		result, err := svc.CheckPrice(context.Background(), PriceCheckRequest{Text: text})
		if !errors.Is(err, ErrNotItemText) {
			t.Errorf("CheckPrice(%q) error = %v, want ErrNotItemText", text, err)
		}
		if result != nil {
			t.Errorf("CheckPrice(%q) should return no result", text)
		}
	}
}

func TestCheckPriceCurrencyUsesScout(t *testing.T) {
	scout := &fakeScout{price: &models.ScoutPrice{Name: "Divine Orb", Exalted: 180, Chaos: 60, Divine: 1, Listings: 40, Confidence: models.ConfidenceHigh}}
	searcher := &fakeSearcher{}
	svc, history := newTestPriceService(t, searcher, scout)

	result, err := svc.CheckPrice(context.Background(), PriceCheckRequest{Text: divineOrbText})
	if err != nil {
		t.Fatalf("CheckPrice() error = %v", err)
	}

	if result.Source != "poe2scout" || result.Scout == nil {
		t.Fatalf("Expected a poe2scout price, got source %q", result.Source)
	}
	if len(searcher.queries) != 0 {
		t.Errorf("Currency with a scout price should not hit trade search, searched %d times", len(searcher.queries))
	}

	scan, err := history.Scan(result.ScanID)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if scan.MedianPrice != 180 || scan.Currency != "exalted" {
		t.Errorf("Scan price = %v %s, want 180 exalted", scan.MedianPrice, scan.Currency)
	}
}

func TestCheckPriceCurrencyScoutMissFallsBackToTrade(t *testing.T) {
	scout := &fakeScout{err: ErrScoutNotFound}
	searcher := &fakeSearcher{results: []fakeSearchResult{found(10)}}
	svc, _ := newTestPriceService(t, searcher, scout)

	result, err := svc.CheckPrice(context.Background(), PriceCheckRequest{Text: divineOrbText, SkipHistory: true})
	if err != nil {
		t.Fatalf("CheckPrice() error = %v", err)
	}
	if result.Source != "trade" {
		t.Errorf("Source = %q, want trade", result.Source)
	}
	if len(searcher.queries) == 0 {
		t.Error("Expected a trade search after the scout miss")
	}
}

func TestCheckPriceBeforeStatSync(t *testing.T) {
	db := newTestDB(t)
	source := &fakeStatSource{defs: []StatDefinition{
		{ID: "explicit.stat_life", Text: "+# to maximum Life"},
		{ID: "explicit.stat_cold", Text: "+#% to Cold Resistance"},
	}}
	statSync := NewStatSyncService(source, NewStatCacheStore(db))
	searcher := &fakeSearcher{results: []fakeSearchResult{found(10)}}
	svc := NewPriceService(PriceServiceDeps{
		Searcher: searcher,
		Stats:    statSync,
		Cache:    NewSearchCache(10, time.Minute),
		Options:  DefaultSearchOptions(),
	})
	ctx := context.Background()

	result, err := svc.CheckPrice(ctx, PriceCheckRequest{Text: rareRingText})
	if !errors.Is(err, ErrStatsNotLoaded) {
		t.Fatalf("CheckPrice() error = %v, want ErrStatsNotLoaded", err)
	}
	if result == nil || result.Error == "" {
		t.Error("Result should carry the error")
	}
	if len(searcher.queries) != 0 {
		t.Errorf("No trade search should run before stat ids load, got %d", len(searcher.queries))
	}
	if svc.Cache().Stats().Size != 0 {
		t.Error("Nothing should be cached before stat ids load")
	}

	if _, err := statSync.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	result, err = svc.CheckPrice(ctx, PriceCheckRequest{Text: rareRingText})
	if err != nil {
		t.Fatalf("CheckPrice() after sync error = %v", err)
	}
	if result.Search.FromCache {
		t.Error("Result after sync should not come from cache")
	}
	if len(searcher.queries) == 0 || len(searcher.queries[0].StatFilters) == 0 {
		t.Error("Searches after sync should filter on resolved modifiers")
	}
}

func TestCheckPriceSearchFailure(t *testing.T) {
	searcher := &fakeSearcher{results: []fakeSearchResult{{err: errors.New("upstream down")}}}
	svc, history := newTestPriceService(t, searcher, nil)

	result, err := svc.CheckPrice(context.Background(), PriceCheckRequest{Text: rareRingText})
	if err == nil {
		t.Fatal("Expected error")
	}
	var tierErr *TierError
	if !errors.As(err, &tierErr) {
		t.Errorf("Expected *TierError, got %T", err)
	}
	if result == nil || result.Item == nil {
		t.Fatal("Failed checks should still return the parsed item")
	}
	if result.Error == "" {
		t.Error("Result should carry the error message")
	}

	scans, err := history.Scans(10)
	if err != nil {
		t.Fatalf("Scans() error = %v", err)
	}
	if len(scans) != 0 {
		t.Errorf("Failed checks should not be recorded, got %d scans", len(scans))
	}
	if svc.Cache().Stats().Size != 0 {
		t.Error("Failed searches should not be cached")
	}
}

func TestCheckPriceUniqueWithoutListingsUsesScout(t *testing.T) {
	text := `Item Class: Belts
Rarity: Unique
Headhunter
Heavy Belt
--------
Item Level: 80
--------
+60 to maximum Life`
	scout := &fakeScout{price: &models.ScoutPrice{Name: "Headhunter", Exalted: 900, Listings: 4, Confidence: models.ConfidenceMedium}}
	svc, _ := newTestPriceService(t, &fakeSearcher{}, scout)

	result, err := svc.CheckPrice(context.Background(), PriceCheckRequest{Text: text, SkipHistory: true})
	if err != nil {
		t.Fatalf("CheckPrice() error = %v", err)
	}
	if result.Scout == nil || result.Source != "poe2scout" {
		t.Errorf("Expected scout fallback, got source %q", result.Source)
	}
	if scout.calls != 1 {
		t.Errorf("Scout called %d times, want 1", scout.calls)
	}
}

func TestCheckPriceRecordsLearning(t *testing.T) {
	uniqueText := `Item Class: Belts
Rarity: Unique
Headhunter
Heavy Belt
--------
Item Level: 80
--------
+60 to maximum Life`

	tests := []struct {
		name        string
		text        string
		skipHistory bool
		wantClass   string
		wantRecords int
	}{
		{"Rare item is learned", rareRingText, false, "Rings", 1},
		{"Unique items are priced by name", uniqueText, false, "Belts", 0},
		{"Skipped history skips learning", rareRingText, true, "Rings", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			learning := NewLearningService(newTestDB(t), nil)
			svc := NewPriceService(PriceServiceDeps{
				Searcher:  &fakeSearcher{results: []fakeSearchResult{found(10)}},
				Stats:     &fakeStatLookup{},
				Evaluator: newTestEvaluator(t),
				Learning:  learning,
				Options:   DefaultSearchOptions(),
			})

			result, err := svc.CheckPrice(context.Background(), PriceCheckRequest{Text: tt.text, SkipHistory: tt.skipHistory})
			if err != nil {
				t.Fatalf("CheckPrice() error = %v", err)
			}

			records, err := learning.Records(tt.wantClass)
			if err != nil {
				t.Fatalf("Records() error = %v", err)
			}
			if len(records) != tt.wantRecords {
				t.Fatalf("got %d learning records, want %d", len(records), tt.wantRecords)
			}
			if tt.wantRecords == 0 {
				return
			}

			r := records[0]
			if r.QualityScore != result.Evaluation.Score || r.Price != 2 || r.Currency != "exalted" || r.ListingCount != 3 {
				t.Errorf("unexpected record: %+v", r)
			}
			if r.SearchTier != result.Search.StoppedAtTier {
				t.Errorf("SearchTier = %d, want %d", r.SearchTier, result.Search.StoppedAtTier)
			}
			if len(r.Patterns) != 5 {
				t.Errorf("got %d patterns, want 5", len(r.Patterns))
			}
		})
	}
}
