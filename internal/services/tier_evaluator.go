package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

// ErrNoTierCatalog is returned when a catalog operation needs a loaded catalog
var ErrNoTierCatalog = errors.New("tier catalog not loaded")

const (
	neutralModifierScore = 30
	maxRareAffixes       = 6
	highTierThreshold    = 3
	lowTierThreshold     = 5
	lowRollPercent       = 30
)

var categoryWeights = map[models.ModifierCategory]float64{
	models.CategoryLife:       1.2,
	models.CategorySpeed:      1.25,
	models.CategoryCritical:   1.15,
	models.CategoryDamage:     1.1,
	models.CategoryResistance: 1.0,
	models.CategoryDefense:    0.9,
	models.CategoryAttribute:  0.8,
	models.CategoryAccuracy:   0.75,
	models.CategoryMana:       0.7,
	models.CategoryUnknown:    0.6,
}

// Modifiers valued on almost any item. At most one bonus applies, first match wins.
var valuableModifierBonuses = []struct {
	pattern *regexp.Regexp
	bonus   int
}{
	{regexp.MustCompile(`movement speed`), 20},
	{regexp.MustCompile(`to level of all .*skills`), 20},
	{regexp.MustCompile(`to all elemental resistances`), 15},
	{regexp.MustCompile(`critical (?:damage bonus|strike multiplier)`), 15},
	{regexp.MustCompile(`% increased maximum life`), 15},
}

// tierIndex is an immutable lookup view of a loaded catalog
type tierIndex struct {
	entries   map[string][]models.TierModifier
	version   string
	modifiers int
}

// TierEvaluator scores modifiers against the tier catalog.
// Until a catalog is loaded every modifier gets a neutral score.
type TierEvaluator struct {
	index atomic.Pointer[tierIndex]
}

func NewTierEvaluator() *TierEvaluator {
	return &TierEvaluator{}
}

// LoadTierCatalog replaces the current catalog
func (e *TierEvaluator) LoadTierCatalog(catalog *models.TierCatalog) error {
	if catalog == nil {
		return fmt.Errorf("load tier catalog: %w", ErrNoTierCatalog)
	}

	idx := &tierIndex{
		entries: make(map[string][]models.TierModifier),
		version: catalog.Version,
	}
	for _, mod := range catalog.Modifiers {
		if mod.TextPattern == "" || len(mod.Tiers) == 0 {
			continue
		}
		tiers := make([]models.TierRange, len(mod.Tiers))
		copy(tiers, mod.Tiers)
		sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Tier < tiers[j].Tier })
		mod.Tiers = tiers

		key := NormalizeModifierText(mod.TextPattern)
		idx.entries[key] = append(idx.entries[key], mod)
		idx.modifiers++
	}

	e.index.Store(idx)
	infoLog("Loaded tier catalog %q: %d modifiers, %d patterns", idx.version, idx.modifiers, len(idx.entries))
	return nil
}

// LoadTierCatalogJSON parses and loads a modifier_tiers.json document
func (e *TierEvaluator) LoadTierCatalogJSON(data []byte) error {
	var catalog models.TierCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("parse tier catalog: %w", err)
	}
	return e.LoadTierCatalog(&catalog)
}

// LoadTierCatalogFile reads and loads a catalog from disk
func (e *TierEvaluator) LoadTierCatalogFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tier catalog: %w", err)
	}
	return e.LoadTierCatalogJSON(data)
}

// Loaded reports whether a catalog is available
func (e *TierEvaluator) Loaded() bool {
	return e.index.Load() != nil
}

// CatalogInfo returns the loaded catalog version and modifier count
func (e *TierEvaluator) CatalogInfo() (string, int, error) {
	idx := e.index.Load()
	if idx == nil {
		return "", 0, ErrNoTierCatalog
	}
	return idx.version, idx.modifiers, nil
}

// EvaluateModifier scores a single modifier without item class context
func (e *TierEvaluator) EvaluateModifier(mod models.ItemModifier) models.ModifierEvaluation {
	return e.evaluateModifier(e.index.Load(), mod, "")
}

func (e *TierEvaluator) evaluateModifier(idx *tierIndex, mod models.ItemModifier, itemClass string) models.ModifierEvaluation {
	pattern := NormalizeModifierText(mod.Text)
	eval := models.ModifierEvaluation{
		Text:     mod.Text,
		Type:     mod.Type,
		Pattern:  pattern,
		Category: CategorizeModifier(mod.Text),
		Score:    neutralModifierScore,
	}

	entry, ok := idx.lookup(pattern, itemClass)
	if !ok || mod.Value == nil {
		eval.Note = "no tier data"
		return eval
	}

	if category := models.ParseModifierCategory(entry.Category); category != models.CategoryUnknown {
		eval.Category = category
	}

	value := math.Abs(*mod.Value)
	tierIdx := selectTier(entry.Tiers, value)
	rng := entry.Tiers[tierIdx]
	tier := tierIdx + 1
	total := len(entry.Tiers)
	roll := rollPercent(rng, value)

	eval.HasTierData = true
	eval.Match = &models.ModifierTierMatch{
		Tier:        tier,
		TotalTiers:  total,
		TierPercent: tierPercent(tier, total),
		RollPercent: roll,
		Category:    eval.Category,
		Range:       rng,
	}
	eval.Bonus = modifierBonus(mod.Text)
	eval.Score = TierScore(tier, total, roll, eval.Category, eval.Bonus)
	if eval.Bonus > 0 {
		eval.Note = fmt.Sprintf("T%d, valuable modifier (+%d)", tier, eval.Bonus)
	} else {
		eval.Note = fmt.Sprintf("T%d of %d", tier, total)
	}
	return eval
}

// lookup prefers the catalog entry whose item classes include the item's class
func (idx *tierIndex) lookup(pattern, itemClass string) (models.TierModifier, bool) {
	if idx == nil {
		return models.TierModifier{}, false
	}
	candidates := idx.entries[pattern]
	if len(candidates) == 0 {
		return models.TierModifier{}, false
	}
	if want := itemClassKey(itemClass); want != "" {
		for _, c := range candidates {
			for _, class := range c.ItemClasses {
				if itemClassKey(class) == want {
					return c, true
				}
			}
		}
	}
	return candidates[0], true
}

// itemClassKey folds "Body Armour (Str)", "Body Armours" and "body armour" to one key
func itemClassKey(class string) string {
	if i := strings.IndexByte(class, '('); i >= 0 {
		class = class[:i]
	}
	class = strings.ToLower(strings.TrimSpace(class))
	if irregular, ok := irregularItemClasses[class]; ok {
		return irregular
	}
	return strings.TrimSuffix(class, "s")
}

var irregularItemClasses = map[string]string{
	"staves":       "staff",
	"quarterstaves": "quarterstaff",
	"foci":         "focus",
}

// selectTier returns the index of the tier containing value, or the nearest one.
// Ties go to the better (lower index) tier.
func selectTier(tiers []models.TierRange, value float64) int {
	best := 0
	bestDistance := math.Inf(1)
	for i, t := range tiers {
		lo, hi := math.Min(t.Min, t.Max), math.Max(t.Min, t.Max)
		var distance float64
		switch {
		case value < lo:
			distance = lo - value
		case value > hi:
			distance = value - hi
		default:
			return i
		}
		if distance < bestDistance {
			best = i
			bestDistance = distance
		}
	}
	return best
}

func rollPercent(rng models.TierRange, value float64) float64 {
	if rng.Max == rng.Min {
		return 100
	}
	pct := (value - rng.Min) / (rng.Max - rng.Min) * 100
	return math.Max(0, math.Min(100, pct))
}

func tierPercent(tier, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(total-tier+1) / float64(total) * 100
}

func modifierBonus(text string) int {
	lower := strings.ToLower(text)
	for _, b := range valuableModifierBonuses {
		if b.pattern.MatchString(lower) {
			return b.bonus
		}
	}
	return 0
}

// TierScore combines tier position, roll quality, category weight and bonus into 0-100
func TierScore(tier, totalTiers int, roll float64, category models.ModifierCategory, bonus int) int {
	weight, ok := categoryWeights[category]
	if !ok {
		weight = categoryWeights[models.CategoryUnknown]
	}
	raw := tierPercent(tier, totalTiers)*0.85 + roll/100*15
	score := raw*weight + float64(bonus)
	return int(math.Round(math.Max(0, math.Min(100, score))))
}

// EvaluateItem scores the explicit and crafted modifiers of an item and sets the
// Tier label ("T1", ...) on each modifier that matched a catalog entry
func (e *TierEvaluator) EvaluateItem(item *models.ParsedItem) models.ItemEvaluation {
	idx := e.index.Load()
	result := models.ItemEvaluation{
		Modifiers:   []models.ModifierEvaluation{},
		Suggestions: []string{},
	}

	total := 0
	lowTier := 0
	lowRoll := 0
	for _, mods := range [][]models.ItemModifier{item.ExplicitMods, item.CraftedMods} {
		for i := range mods {
			eval := e.evaluateModifier(idx, mods[i], item.ItemClass)
			result.Modifiers = append(result.Modifiers, eval)
			mods[i].Tier = ""
			if eval.Match == nil {
				continue
			}
			mods[i].Tier = fmt.Sprintf("T%d", eval.Match.Tier)
			result.TieredCount++
			total += eval.Score
			if eval.Match.Tier <= highTierThreshold {
				result.HighTierCount++
				if eval.Match.RollPercent < lowRollPercent {
					lowRoll++
				}
			}
			if eval.Match.Tier >= lowTierThreshold {
				lowTier++
			}
		}
	}

	score := neutralModifierScore
	if result.TieredCount > 0 {
		score = int(math.Round(float64(total) / float64(result.TieredCount)))
	}
	if result.HighTierCount > 3 {
		score = min(score+5, 100)
	}

	result.Score = score
	result.Rating = models.RatingForScore(score)
	result.IsGood = score >= 65 || result.HighTierCount >= 3

	if idx == nil {
		result.Suggestions = append(result.Suggestions, "Tier data not loaded, modifier scores are neutral")
	}
	if item.Rarity == models.RarityRare {
		if open := maxRareAffixes - item.AffixCount(); open > 0 {
			result.Suggestions = append(result.Suggestions, fmt.Sprintf("%d open affix slot(s) left for crafting", open))
		}
	}
	if lowTier > 0 {
		result.Suggestions = append(result.Suggestions, fmt.Sprintf("%d low-tier modifier(s) (T%d or worse)", lowTier, lowTierThreshold))
	}
	if lowRoll > 0 {
		result.Suggestions = append(result.Suggestions, fmt.Sprintf("%d high-tier modifier(s) rolled below %d%%", lowRoll, lowRollPercent))
	}

	result.Summary = fmt.Sprintf("%s (score %d): %d of %d modifiers with tier data, %d at T1-T%d",
		result.Rating, score, result.TieredCount, len(result.Modifiers), result.HighTierCount, highTierThreshold)

	return result
}
