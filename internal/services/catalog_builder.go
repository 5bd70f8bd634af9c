package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

const (
	// Poe2DBBase is the base URL of the poe2db item class pages
	Poe2DBBase = "https://poe2db.tw/us"

	DefaultCatalogDelay = 1500 * time.Millisecond

	modsViewMarker    = "new ModsView("
	maxModsViewLength = 1_000_000
)

// CatalogPage is one poe2db page listing the modifiers of an item class.
// ItemClass is the "Item Class:" line the game client prints for that class.
type CatalogPage struct {
	ItemClass string
	Slug      string
}

// CatalogPages are the item class pages the catalog is built from
var CatalogPages = []CatalogPage{
	{"Body Armours", "Body_Armours_str"},
	{"Body Armours", "Body_Armours_dex"},
	{"Body Armours", "Body_Armours_int"},
	{"Body Armours", "Body_Armours_str_dex"},
	{"Body Armours", "Body_Armours_str_int"},
	{"Body Armours", "Body_Armours_dex_int"},
	{"Helmets", "Helmets_str"},
	{"Helmets", "Helmets_dex"},
	{"Helmets", "Helmets_int"},
	{"Gloves", "Gloves_str"},
	{"Gloves", "Gloves_dex"},
	{"Gloves", "Gloves_int"},
	{"Boots", "Boots_str"},
	{"Boots", "Boots_dex"},
	{"Boots", "Boots_int"},
	{"Amulets", "Amulets"},
	{"Rings", "Rings"},
	{"Belts", "Belts"},
	{"Claws", "Claws"},
	{"Daggers", "Daggers"},
	{"Wands", "Wands"},
	{"One Hand Swords", "One_Hand_Swords"},
	{"Two Hand Swords", "Two_Hand_Swords"},
	{"One Hand Axes", "One_Hand_Axes"},
	{"Two Hand Axes", "Two_Hand_Axes"},
	{"One Hand Maces", "One_Hand_Maces"},
	{"Two Hand Maces", "Two_Hand_Maces"},
	{"Sceptres", "Sceptres"},
	{"Spears", "Spears"},
	{"Flails", "Flails"},
	{"Bows", "Bows"},
	{"Staves", "Staves"},
	{"Quarterstaves", "Quarterstaves"},
	{"Crossbows", "Crossbows"},
	{"Quivers", "Quivers"},
	{"Shields", "Shields_str"},
	{"Shields", "Shields_dex"},
	{"Shields", "Shields_int"},
	{"Foci", "Foci"},
}

// Category keywords checked against the modifier family name, in order
var catalogCategoryKeywords = []struct {
	category string
	keywords []string
}{
	{"life", []string{"life"}},
	{"mana", []string{"mana"}},
	{"resistance", []string{"resistance", "resist"}},
	{"attribute", []string{"strength", "dexterity", "intelligence"}},
	{"defense", []string{"armour", "evasion", "energy shield", "ward"}},
	{"damage", []string{"damage", "adds"}},
	{"critical", []string{"critical"}},
	{"speed", []string{"speed"}},
	{"accuracy", []string{"accuracy"}},
}

// Fallback categories derived from tags
var catalogTagCategories = []struct {
	fragment string
	category string
}{
	{"resist", "resistance"},
	{"life", "life"},
	{"damage", "damage"},
	{"attribute", "attribute"},
	{"defence", "defense"},
	{"defense", "defense"},
	{"speed", "speed"},
}

var (
	valueRangeRegex  = regexp.MustCompile(`[+\-]?\(?\s*(\d+(?:\.\d+)?)\s*[—–-]\s*(\d+(?:\.\d+)?)\s*\)?`)
	singleValueRegex = regexp.MustCompile(`[+\-]?(\d+(?:\.\d+)?)`)
)

// flexInt accepts both JSON numbers and numeric strings
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*f = flexInt(n)
	return nil
}

// ModsView is the modifier data embedded in a poe2db item class page
type ModsView struct {
	Normal []ModsViewEntry `json:"normal"`
}

// ModsViewEntry is one modifier tier as poe2db publishes it
type ModsViewEntry struct {
	Name              string   `json:"Name"`
	Level             flexInt  `json:"Level"`
	ModFamilyList     []string `json:"ModFamilyList"`
	ModGenerationType flexInt  `json:"ModGenerationTypeID"` // 1 prefix, 2 suffix
	ModNo             []string `json:"mod_no"`
	Str               string   `json:"str"`
}

// CatalogBuilder downloads poe2db pages and turns them into a tier catalog
type CatalogBuilder struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

func NewCatalogBuilder(baseURL string, delay time.Duration) *CatalogBuilder {
	if baseURL == "" {
		baseURL = Poe2DBBase
	}
	if delay <= 0 {
		delay = DefaultCatalogDelay
	}
	return &CatalogBuilder{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Every(delay), 1),
	}
}

// Build fetches every page and merges the modifiers into one catalog.
// Pages that fail are logged and skipped.
func (b *CatalogBuilder) Build(ctx context.Context, pages []CatalogPage) (*models.TierCatalog, error) {
	var all []models.TierModifier
	fetched := 0

	for _, page := range pages {
		view, err := b.FetchModsView(ctx, page.Slug)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("Catalog: failed to fetch %s: %v", page.ItemClass, err)
			continue
		}

		mods := ParseModsView(view, page.ItemClass)
		log.Printf("Catalog: %s: %d modifier families", page.ItemClass, len(mods))
		all = append(all, mods...)
		fetched++
	}

	if fetched == 0 {
		return nil, fmt.Errorf("no catalog pages could be fetched")
	}

	return &models.TierCatalog{
		Modifiers:   MergeModifiers(all),
		Version:     "0.1.0",
		LastUpdated: time.Now().Format(time.RFC3339),
		Source:      "poe2db.tw",
	}, nil
}

// FetchModsView downloads a page and decodes its ModsView data
func (b *CatalogBuilder) FetchModsView(ctx context.Context, slug string) (*ModsView, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/"+slug, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", tradeUserAgent)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	var raw string
	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		if js, ok := ExtractModsViewJSON(script.Text()); ok {
			raw = js
			return false
		}
		return true
	})
	if raw == "" {
		return nil, fmt.Errorf("no ModsView data on page %s", slug)
	}

	return DecodeModsView(raw)
}

// DecodeModsView decodes the object literal found by ExtractModsViewJSON
func DecodeModsView(raw string) (*ModsView, error) {
	var view ModsView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return nil, fmt.Errorf("decode ModsView: %w", err)
	}
	return &view, nil
}

// ExtractModsViewJSON returns the object literal passed to "new ModsView(" by
// scanning for its balanced closing brace. Braces inside strings are ignored.
func ExtractModsViewJSON(text string) (string, bool) {
	idx := strings.Index(text, modsViewMarker)
	if idx == -1 {
		return "", false
	}
	start := idx + len(modsViewMarker)
	limit := min(start+maxModsViewLength, len(text))

	depth := 0
	inString := false
	escaped := false
	for i := start; i < limit; i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseModsView groups entries by modifier family and orders tiers so the
// highest item level is tier 1
func ParseModsView(view *ModsView, itemClass string) []models.TierModifier {
	if view == nil {
		return nil
	}

	families := make(map[string][]ModsViewEntry)
	var order []string
	for _, entry := range view.Normal {
		if len(entry.ModFamilyList) == 0 {
			continue
		}
		names := append([]string(nil), entry.ModFamilyList...)
		sort.Strings(names)
		key := strings.Join(names, ", ")
		if _, ok := families[key]; !ok {
			order = append(order, key)
		}
		families[key] = append(families[key], entry)
	}

	mods := make([]models.TierModifier, 0, len(order))
	for _, family := range order {
		entries := families[family]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Level < entries[j].Level })

		tags := ExtractTags(entries[0].ModNo)
		tiers := make([]models.TierRange, 0, len(entries))
		for i := len(entries) - 1; i >= 0; i-- {
			minVal, maxVal, _ := ParseValueRange(entries[i].Str)
			level := int(entries[i].Level)
			if level == 0 {
				level = 1
			}
			tiers = append(tiers, models.TierRange{
				Tier: len(tiers) + 1,
				Name: entries[i].Name,
				ILvl: level,
				Min:  minVal,
				Max:  maxVal,
			})
		}
		_, _, pattern := ParseValueRange(entries[len(entries)-1].Str)

		mods = append(mods, models.TierModifier{
			ID:          "explicit." + strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(family), ",", ""), " ", "_"),
			Name:        family,
			TextPattern: pattern,
			ItemClasses: []string{itemClass},
			Tiers:       tiers,
			Category:    DetectCategory(family, tags),
			IsPrefix:    entries[0].ModGenerationType == 1,
			Tags:        tags,
		})
	}
	return mods
}

// ParseValueRange reads the first value range of a modifier line like
// "+(5—8) to Strength" and returns min, max and the text with ranges replaced by #
func ParseValueRange(fragment string) (float64, float64, string) {
	text := strings.TrimSpace(htmlText(fragment))

	if m := valueRangeRegex.FindStringSubmatch(text); m != nil {
		minVal, _ := strconv.ParseFloat(m[1], 64)
		maxVal, _ := strconv.ParseFloat(m[2], 64)
		pattern := valueRangeRegex.ReplaceAllString(text, "#")
		return minVal, maxVal, collapseSpaces(pattern)
	}

	if loc := singleValueRegex.FindStringSubmatchIndex(text); loc != nil {
		val, _ := strconv.ParseFloat(text[loc[2]:loc[3]], 64)
		pattern := text[:loc[0]] + "#" + text[loc[1]:]
		return val, val, collapseSpaces(pattern)
	}

	return 0, 0, text
}

// ExtractTags reads data-tag attributes from mod_no badges, falling back to badge text
func ExtractTags(badges []string) []string {
	tags := []string{}
	for _, badge := range badges {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(badge))
		if err != nil {
			continue
		}
		found := false
		doc.Find("[data-tag]").Each(func(_ int, s *goquery.Selection) {
			if tag, ok := s.Attr("data-tag"); ok && tag != "" {
				tags = append(tags, tag)
				found = true
			}
		})
		if !found {
			if text := strings.ToLower(strings.TrimSpace(doc.Text())); text != "" {
				tags = append(tags, text)
			}
		}
	}
	return tags
}

// DetectCategory classifies a modifier family by name ignoring spaces, then by tags.
// Unknown is "other".
func DetectCategory(family string, tags []string) string {
	name := strings.ReplaceAll(strings.ToLower(family), " ", "")
	for _, c := range catalogCategoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(name, strings.ReplaceAll(kw, " ", "")) {
				return c.category
			}
		}
	}

	for _, tag := range tags {
		tag = strings.ToLower(tag)
		for _, tc := range catalogTagCategories {
			if strings.Contains(tag, tc.fragment) {
				return tc.category
			}
		}
	}
	return "other"
}

// MergeModifiers folds families that appear on several item classes with the same
// tier table into one entry. A family whose tiers differ by class stays separate so
// the evaluator can pick the entry for the item's class.
func MergeModifiers(mods []models.TierModifier) []models.TierModifier {
	type mergeKey struct {
		name     string
		isPrefix bool
		tiers    string
	}
	index := make(map[mergeKey]int)
	merged := make([]models.TierModifier, 0, len(mods))

	for _, mod := range mods {
		key := mergeKey{mod.Name, mod.IsPrefix, tierSignature(mod.Tiers)}
		i, ok := index[key]
		if !ok {
			mod.ItemClasses = append([]string(nil), mod.ItemClasses...)
			index[key] = len(merged)
			merged = append(merged, mod)
			continue
		}
		for _, class := range mod.ItemClasses {
			if !slices.Contains(merged[i].ItemClasses, class) {
				merged[i].ItemClasses = append(merged[i].ItemClasses, class)
			}
		}
	}
	return merged
}

func tierSignature(tiers []models.TierRange) string {
	var b strings.Builder
	for _, t := range tiers {
		fmt.Fprintf(&b, "%d:%g-%g;", t.ILvl, t.Min, t.Max)
	}
	return b.String()
}

// MarshalCatalog renders a catalog the way modifier_tiers.json is stored
func MarshalCatalog(catalog *models.TierCatalog) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(catalog); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func htmlText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return doc.Text()
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}
