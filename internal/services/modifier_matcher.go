package services

import (
	"regexp"
	"strings"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

var (
	normalizeRangeRegex  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)`)
	normalizeNumberRegex = regexp.MustCompile(`\d+(?:\.\d+)?`)
	normalizeSignRegex   = regexp.MustCompile(`[+-]#`)
	whitespaceRegex      = regexp.MustCompile(`\s+`)
)

// NormalizeModifierText turns modifier text into its canonical key:
// lower case, numbers replaced by '#', signs dropped, markers stripped, spaces collapsed.
// "+32% to Fire Resistance (crafted)" becomes "#% to fire resistance" and a range
// like "10-20" is read as "# to #".
func NormalizeModifierText(text string) string {
	normalized := modifierMarkerRegex.ReplaceAllString(text, "")
	normalized = normalizeRangeRegex.ReplaceAllString(normalized, "$1 to $2")
	normalized = strings.ToLower(normalized)
	normalized = normalizeNumberRegex.ReplaceAllString(normalized, "#")
	normalized = normalizeSignRegex.ReplaceAllString(normalized, "#")
	normalized = whitespaceRegex.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// modifierTemplate recognises one known stat line in normalized form
type modifierTemplate struct {
	pattern  *regexp.Regexp
	category models.ModifierCategory
}

// modifierTemplates is scanned top to bottom and the first match wins, so
// specific lines ("all elemental resistances") must precede their generic
// relatives ("fire resistance", "resistances").
var modifierTemplates = []modifierTemplate{
	{regexp.MustCompile(`#% increased movement speed`), models.CategorySpeed},
	{regexp.MustCompile(`# to level of all (?:[a-z]+ )*skills`), models.CategoryDamage},
	{regexp.MustCompile(`#% to all elemental resistances`), models.CategoryResistance},
	{regexp.MustCompile(`#% to (?:fire|cold|lightning|chaos) resistance`), models.CategoryResistance},
	{regexp.MustCompile(`#% to (?:fire|cold|lightning) and (?:fire|cold|lightning) resistances`), models.CategoryResistance},
	{regexp.MustCompile(`#% increased maximum life`), models.CategoryLife},
	{regexp.MustCompile(`# to maximum life`), models.CategoryLife},
	{regexp.MustCompile(`# life regeneration per second`), models.CategoryLife},
	{regexp.MustCompile(`#% of (?:physical )?(?:attack )?damage leeched as life`), models.CategoryLife},
	{regexp.MustCompile(`gain # life per enemy killed`), models.CategoryLife},
	{regexp.MustCompile(`#% (?:increased|to) critical (?:damage bonus|strike multiplier)`), models.CategoryCritical},
	{regexp.MustCompile(`#% (?:increased|to) critical (?:hit|strike) chance(?: for spells)?`), models.CategoryCritical},
	{regexp.MustCompile(`#% increased (?:attack|cast|skill) speed`), models.CategorySpeed},
	{regexp.MustCompile(`#% increased projectile speed`), models.CategorySpeed},
	{regexp.MustCompile(`adds # to # (?:physical|fire|cold|lightning|chaos) damage(?: to attacks| to spells)?`), models.CategoryDamage},
	{regexp.MustCompile(`#% increased (?:physical|elemental|fire|cold|lightning|chaos|spell|attack|projectile) damage`), models.CategoryDamage},
	{regexp.MustCompile(`#% increased damage`), models.CategoryDamage},
	{regexp.MustCompile(`#% increased maximum mana`), models.CategoryMana},
	{regexp.MustCompile(`# to maximum mana`), models.CategoryMana},
	{regexp.MustCompile(`#% increased mana regeneration rate`), models.CategoryMana},
	{regexp.MustCompile(`# to all attributes`), models.CategoryAttribute},
	{regexp.MustCompile(`# to (?:strength|dexterity|intelligence)(?: and (?:strength|dexterity|intelligence))?`), models.CategoryAttribute},
	{regexp.MustCompile(`# to accuracy rating`), models.CategoryAccuracy},
	{regexp.MustCompile(`#% increased accuracy rating`), models.CategoryAccuracy},
	{regexp.MustCompile(`#% increased (?:armour|evasion rating|energy shield)(?: and (?:armour|evasion|energy shield))?`), models.CategoryDefense},
	{regexp.MustCompile(`# to (?:armour|evasion rating|maximum energy shield)`), models.CategoryDefense},
	{regexp.MustCompile(`#% (?:increased|to) block chance`), models.CategoryDefense},
	{regexp.MustCompile(`# to spirit`), models.CategoryDefense},
}

// MatchResult is the matcher output for one modifier line
type MatchResult struct {
	Pattern  string                  `json:"pattern"`
	StatID   string                  `json:"stat_id,omitempty"` // empty: text search only
	Values   []float64               `json:"values"`
	Category models.ModifierCategory `json:"category,omitempty"`
}

// ModifierMatcher maps free modifier text to a canonical pattern, category and stat id
type ModifierMatcher struct {
	resolver *StatResolver
}

// NewModifierMatcher creates a matcher; resolver may be nil, in which case no stat ids are returned
func NewModifierMatcher(resolver *StatResolver) *ModifierMatcher {
	return &ModifierMatcher{resolver: resolver}
}

// Match runs the template table against text
func (m *ModifierMatcher) Match(text string) MatchResult {
	normalized := NormalizeModifierText(text)
	result := MatchResult{
		Pattern: normalized,
		Values:  ExtractNumbers(modifierMarkerRegex.ReplaceAllString(text, "")),
	}

	if category, pattern, ok := MatchTemplate(normalized); ok {
		result.Pattern = pattern
		result.Category = category
	}

	if m.resolver != nil {
		result.StatID = m.resolver.Lookup(text)
	}

	return result
}

// MatchTemplate finds the first template matching already-normalized text.
// Returns the matched canonical fragment and its category.
func MatchTemplate(normalized string) (models.ModifierCategory, string, bool) {
	for _, tmpl := range modifierTemplates {
		if loc := tmpl.pattern.FindStringIndex(normalized); loc != nil {
			return tmpl.category, normalized[loc[0]:loc[1]], true
		}
	}
	return "", "", false
}

// CategorizeModifier returns the template category of text, or CategoryUnknown
func CategorizeModifier(text string) models.ModifierCategory {
	if category, _, ok := MatchTemplate(NormalizeModifierText(text)); ok {
		return category
	}
	return models.CategoryUnknown
}
