package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

// Maximum accepted item text length to keep regex work bounded
const maxItemTextLength = 20000

// SectionKind tags what a section of an item card contains
type SectionKind int

const (
	SectionNone SectionKind = iota
	SectionRequirements
	SectionItemLevel
	SectionQuality
	SectionSockets
	SectionStackSize
	SectionGemLevel
	SectionFlags
	SectionNote
	SectionProperties
	SectionFlavor
	SectionModifiers
)

func (k SectionKind) String() string {
	switch k {
	case SectionRequirements:
		return "requirements"
	case SectionItemLevel:
		return "item_level"
	case SectionQuality:
		return "quality"
	case SectionSockets:
		return "sockets"
	case SectionStackSize:
		return "stack_size"
	case SectionGemLevel:
		return "gem_level"
	case SectionFlags:
		return "flags"
	case SectionNote:
		return "note"
	case SectionProperties:
		return "properties"
	case SectionFlavor:
		return "flavor"
	case SectionModifiers:
		return "modifiers"
	default:
		return "none"
	}
}

// sectionClassifier returns the section kind it recognises, or SectionNone
type sectionClassifier func(lines []string) SectionKind

// sectionClassifiers run top to bottom; the first non-None answer wins.
// Modifiers is the fallback and must stay last.
var sectionClassifiers = []sectionClassifier{
	prefixClassifier(SectionRequirements, "Requirements:", "Requires:"),
	prefixClassifier(SectionItemLevel, "Item Level:"),
	prefixClassifier(SectionQuality, "Quality:"),
	prefixClassifier(SectionSockets, "Sockets:"),
	prefixClassifier(SectionStackSize, "Stack Size:"),
	prefixClassifier(SectionGemLevel, "Level:"),
	classifyFlags,
	classifyNote,
	classifyProperties,
	classifyFlavor,
	func([]string) SectionKind { return SectionModifiers },
}

// ClassifySection returns the kind of a non-header section
func ClassifySection(lines []string) SectionKind {
	if len(lines) == 0 {
		return SectionNone
	}
	for _, classify := range sectionClassifiers {
		if kind := classify(lines); kind != SectionNone {
			return kind
		}
	}
	return SectionNone
}

func prefixClassifier(kind SectionKind, prefixes ...string) sectionClassifier {
	return func(lines []string) SectionKind {
		for _, prefix := range prefixes {
			if strings.HasPrefix(lines[0], prefix) {
				return kind
			}
		}
		return SectionNone
	}
}

var flagKeywords = map[string]bool{
	"Corrupted":    true,
	"Mirrored":     true,
	"Unidentified": true,
}

func classifyFlags(lines []string) SectionKind {
	for _, line := range lines {
		if !flagKeywords[line] {
			return SectionNone
		}
	}
	return SectionFlags
}

// Usage hints the client prints on currency, jewels and flasks
var noteLinePrefixes = []string{
	"Note:",
	"Right click",
	"Right-click",
	"Shift click",
	"Place into",
	"Travel to",
	"Can be used",
}

func classifyNote(lines []string) SectionKind {
	for _, prefix := range noteLinePrefixes {
		if strings.HasPrefix(lines[0], prefix) {
			return SectionNote
		}
	}
	return SectionNone
}

func classifyProperties(lines []string) SectionKind {
	for _, line := range lines {
		if matchesPropertyLine(line) {
			return SectionProperties
		}
	}
	return SectionNone
}

func classifyFlavor(lines []string) SectionKind {
	for _, line := range lines {
		if !isFlavorLine(line) {
			return SectionNone
		}
	}
	return SectionFlavor
}

func isFlavorLine(line string) bool {
	return len(line) >= 2 && strings.HasPrefix(line, `"`) && strings.HasSuffix(line, `"`)
}

// propertyRule maps one property line pattern to the field it sets
type propertyRule struct {
	pattern *regexp.Regexp
	apply   func(props *models.ItemProperties, m []string, line string)
}

var rangePattern = regexp.MustCompile(`(\d+)-(\d+)`)

// propertyRules is the declarative property table. New stat lines only need a new entry.
var propertyRules = []propertyRule{
	{regexp.MustCompile(`^Quality: \+?(\d+)%`), func(p *models.ItemProperties, m []string, _ string) {
		p.Quality = intPtr(atoi(m[1]))
	}},
	{regexp.MustCompile(`^Physical Damage: (\d+)-(\d+)`), func(p *models.ItemProperties, m []string, _ string) {
		p.PhysicalDamage = &models.DamageRange{Min: atof(m[1]), Max: atof(m[2])}
	}},
	{regexp.MustCompile(`^Elemental Damage: `), func(p *models.ItemProperties, _ []string, line string) {
		for _, r := range rangePattern.FindAllStringSubmatch(line, -1) {
			p.ElementalDamage = append(p.ElementalDamage, models.DamageRange{Min: atof(r[1]), Max: atof(r[2])})
		}
	}},
	{regexp.MustCompile(`^(?:Fire|Cold|Lightning) Damage: (\d+)-(\d+)`), func(p *models.ItemProperties, m []string, _ string) {
		p.ElementalDamage = append(p.ElementalDamage, models.DamageRange{Min: atof(m[1]), Max: atof(m[2])})
	}},
	{regexp.MustCompile(`^Chaos Damage: (\d+)-(\d+)`), func(p *models.ItemProperties, m []string, _ string) {
		p.ChaosDamage = &models.DamageRange{Min: atof(m[1]), Max: atof(m[2])}
	}},
	{regexp.MustCompile(`^Critical (?:Hit|Strike) Chance: ([\d.]+)%`), func(p *models.ItemProperties, m []string, _ string) {
		p.CritChance = floatPtr(atof(m[1]))
	}},
	{regexp.MustCompile(`^Attacks per Second: ([\d.]+)`), func(p *models.ItemProperties, m []string, _ string) {
		p.AttackSpeed = floatPtr(atof(m[1]))
	}},
	{regexp.MustCompile(`^Weapon Range: ([\d.]+)`), func(p *models.ItemProperties, m []string, _ string) {
		p.WeaponRange = floatPtr(atof(m[1]))
	}},
	{regexp.MustCompile(`^Reload Time: ([\d.]+)`), func(p *models.ItemProperties, m []string, _ string) {
		p.ReloadTime = floatPtr(atof(m[1]))
	}},
	{regexp.MustCompile(`^Armour: (\d+)`), func(p *models.ItemProperties, m []string, _ string) {
		p.Armour = intPtr(atoi(m[1]))
	}},
	{regexp.MustCompile(`^Evasion Rating: (\d+)`), func(p *models.ItemProperties, m []string, _ string) {
		p.Evasion = intPtr(atoi(m[1]))
	}},
	{regexp.MustCompile(`^Energy Shield: (\d+)`), func(p *models.ItemProperties, m []string, _ string) {
		p.EnergyShield = intPtr(atoi(m[1]))
	}},
	{regexp.MustCompile(`^(?i:Chance to Block|Block chance): (\d+)%`), func(p *models.ItemProperties, m []string, _ string) {
		p.Block = intPtr(atoi(m[1]))
	}},
	{regexp.MustCompile(`^Spirit: (\d+)`), func(p *models.ItemProperties, m []string, _ string) {
		p.Spirit = intPtr(atoi(m[1]))
	}},
}

func matchesPropertyLine(line string) bool {
	for _, rule := range propertyRules {
		if rule.pattern.MatchString(line) {
			return true
		}
	}
	return false
}

// applyPropertyLine runs the first matching rule; returns false if none matched
func applyPropertyLine(props *models.ItemProperties, line string) bool {
	for _, rule := range propertyRules {
		if m := rule.pattern.FindStringSubmatch(line); m != nil {
			rule.apply(props, m, line)
			return true
		}
	}
	return false
}

var (
	numberPattern       = regexp.MustCompile(`[+-]?\d+(?:\.\d+)?`)
	modifierMarkerRegex = regexp.MustCompile(`\s*\((implicit|crafted|enchant|rune|fractured|desecrated|augmented|unmet)\)`)
	requiresLevelRegex  = regexp.MustCompile(`Level (\d+)`)
	requiresAttrRegex   = regexp.MustCompile(`(\d+) (Str|Dex|Int)`)
	stackSizeRegex      = regexp.MustCompile(`^Stack Size: ([\d,]+)/([\d,]+)`)
	firstIntRegex       = regexp.MustCompile(`\d+`)
)

// ExtractNumbers returns every signed integer or decimal in text, left to right.
// A hyphen right after a digit separates a range ("10-20") and is not a sign.
func ExtractNumbers(text string) []float64 {
	matches := numberPattern.FindAllStringIndex(text, -1)
	values := make([]float64, 0, len(matches))
	for _, loc := range matches {
		start := loc[0]
		if text[start] == '-' && start > 0 && isDigit(text[start-1]) {
			start++
		}
		if v, err := strconv.ParseFloat(text[start:loc[1]], 64); err == nil {
			values = append(values, v)
		}
	}
	return values
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// itemParser carries the state of one parse pass
type itemParser struct {
	item          *models.ParsedItem
	pastItemLevel bool
	// set once the first modifier section after the item level has been seen
	implicitSlotUsed bool
}

// ParseItem parses item text copied from the game client.
// Returns nil only for empty or whitespace-only input.
func ParseItem(text string) *models.ParsedItem {
	if len(text) > maxItemTextLength {
		cut := maxItemTextLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	sections := SplitSections(text)
	if len(sections) == 0 {
		return nil
	}

	p := &itemParser{
		item: &models.ParsedItem{
			RawText:      text,
			Rarity:       models.RarityNormal,
			ImplicitMods: []models.ItemModifier{},
			ExplicitMods: []models.ItemModifier{},
			CraftedMods:  []models.ItemModifier{},
		},
	}

	p.parseHeader(sections[0])
	for _, section := range sections[1:] {
		p.parseSection(section)
	}
	computeDPS(p.item)

	debugLog("parsed %s %q (%s): %d implicit, %d explicit, %d crafted",
		p.item.Rarity, p.item.DisplayName(), p.item.ItemClass,
		len(p.item.ImplicitMods), len(p.item.ExplicitMods), len(p.item.CraftedMods))

	return p.item
}

func (p *itemParser) parseHeader(lines []string) {
	var unlabeled []string
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "Item Class:"):
			p.item.ItemClass = strings.TrimSpace(strings.TrimPrefix(line, "Item Class:"))
		case strings.HasPrefix(line, "Rarity:"):
			p.item.Rarity = models.ParseRarity(strings.TrimPrefix(line, "Rarity:"))
		default:
			unlabeled = append(unlabeled, line)
		}
	}

	switch len(unlabeled) {
	case 0:
	case 1:
		// A lone line is the base type; base types carry no separate display name
		p.item.BaseType = unlabeled[0]
	default:
		p.item.Name = unlabeled[0]
		p.item.BaseType = unlabeled[1]
	}

	if p.item.Rarity == models.RarityNormal {
		p.item.BaseType = strings.TrimPrefix(p.item.BaseType, "Superior ")
	}

	if p.item.BaseType == "" {
		switch {
		case p.item.Name != "":
			p.item.BaseType = p.item.Name
		case p.item.ItemClass != "":
			p.item.BaseType = p.item.ItemClass
		default:
			p.item.BaseType = "Unknown"
		}
	}
}

func (p *itemParser) parseSection(lines []string) {
	switch ClassifySection(lines) {
	case SectionRequirements:
		p.parseRequirements(lines)
	case SectionItemLevel:
		p.item.ItemLevel = intPtr(firstInt(lines[0]))
		p.pastItemLevel = true
	case SectionQuality, SectionProperties:
		for _, line := range lines {
			applyPropertyLine(&p.item.Properties, line)
		}
	case SectionSockets:
		p.item.Sockets = parseSockets(strings.TrimSpace(strings.TrimPrefix(lines[0], "Sockets:")))
	case SectionStackSize:
		if m := stackSizeRegex.FindStringSubmatch(lines[0]); m != nil {
			p.item.StackSize = intPtr(atoi(strings.ReplaceAll(m[1], ",", "")))
			p.item.MaxStackSize = intPtr(atoi(strings.ReplaceAll(m[2], ",", "")))
		}
	case SectionGemLevel:
		p.item.GemLevel = intPtr(firstInt(lines[0]))
		for _, line := range lines[1:] {
			applyPropertyLine(&p.item.Properties, line)
		}
	case SectionFlags:
		for _, line := range lines {
			switch line {
			case "Corrupted":
				p.item.Corrupted = true
			case "Mirrored":
				p.item.Mirrored = true
			case "Unidentified":
				p.item.Unidentified = true
			}
		}
	case SectionModifiers:
		p.parseModifierSection(lines)
	}
}

func (p *itemParser) parseRequirements(lines []string) {
	req := &p.item.Requirements

	// Single line form: "Requires: Level 65, 100 Str, 50 Int"
	if strings.HasPrefix(lines[0], "Requires:") {
		if m := requiresLevelRegex.FindStringSubmatch(lines[0]); m != nil {
			req.Level = intPtr(atoi(m[1]))
		}
		for _, m := range requiresAttrRegex.FindAllStringSubmatch(lines[0], -1) {
			setAttributeRequirement(req, m[2], atoi(m[1]))
		}
		return
	}

	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		n := firstInt(value)
		switch strings.TrimSpace(key) {
		case "Level":
			req.Level = intPtr(n)
		default:
			setAttributeRequirement(req, strings.TrimSpace(key), n)
		}
	}
}

func setAttributeRequirement(req *models.Requirements, attr string, n int) {
	switch attr {
	case "Str", "Strength":
		req.Strength = intPtr(n)
	case "Dex", "Dexterity":
		req.Dexterity = intPtr(n)
	case "Int", "Intelligence":
		req.Intelligence = intPtr(n)
	}
}

// parseSockets reads "S S S" or linked "S-S-S S" groups
func parseSockets(raw string) *models.Sockets {
	sockets := &models.Sockets{Raw: raw}
	for _, group := range strings.Fields(raw) {
		size := len(strings.Split(group, "-"))
		sockets.Count += size
		if size > sockets.Linked {
			sockets.Linked = size
		}
	}
	return sockets
}

// modifierSectionType decides the default provenance of a modifier section.
//
// Implicits are not always marked by the client, so the first short section after
// the item level without crafted lines is assumed to be implicit. This misreads
// e.g. a rare with no implicit and at most three explicits; kept as a known approximation.
func (p *itemParser) modifierSectionType(lines []string) models.ModifierType {
	hasImplicitMarker := false
	hasCraftedMarker := false
	for _, line := range lines {
		if strings.Contains(line, "(implicit)") {
			hasImplicitMarker = true
		}
		if strings.Contains(line, "(crafted)") {
			hasCraftedMarker = true
		}
	}

	firstAfterItemLevel := p.pastItemLevel && !p.implicitSlotUsed
	if p.pastItemLevel {
		p.implicitSlotUsed = true
	}

	if hasImplicitMarker {
		return models.ModifierImplicit
	}
	if firstAfterItemLevel && len(lines) <= 3 && !hasCraftedMarker {
		return models.ModifierImplicit
	}
	return models.ModifierExplicit
}

func (p *itemParser) parseModifierSection(lines []string) {
	sectionType := p.modifierSectionType(lines)

	for _, line := range lines {
		if isFlavorLine(line) {
			continue
		}

		modType := sectionType
		switch {
		case strings.Contains(line, "(crafted)"):
			modType = models.ModifierCrafted
		case strings.Contains(line, "(enchant)"), strings.Contains(line, "(rune)"):
			modType = models.ModifierEnchant
		}

		mod := newModifier(line, modType)
		switch modType {
		case models.ModifierCrafted:
			p.item.CraftedMods = append(p.item.CraftedMods, mod)
		case models.ModifierImplicit, models.ModifierEnchant:
			p.item.ImplicitMods = append(p.item.ImplicitMods, mod)
		default:
			p.item.ExplicitMods = append(p.item.ExplicitMods, mod)
		}
	}
}

func newModifier(line string, modType models.ModifierType) models.ItemModifier {
	text := strings.TrimSpace(modifierMarkerRegex.ReplaceAllString(line, ""))
	values := ExtractNumbers(text)

	mod := models.ItemModifier{
		Text:    text,
		Type:    modType,
		Values:  values,
		Enabled: true,
	}
	if len(values) > 0 {
		mod.Value = floatPtr(values[0])
	}
	return mod
}

// computeDPS derives DPS fields; only weapons with an attack speed get them
func computeDPS(item *models.ParsedItem) {
	props := item.Properties
	if props.AttackSpeed == nil {
		return
	}
	aps := *props.AttackSpeed

	physical := 0.0
	if props.PhysicalDamage != nil {
		physical = props.PhysicalDamage.Average() * aps
	}

	elemental := 0.0
	for _, r := range props.ElementalDamage {
		elemental += r.Average() * aps
	}

	item.PhysicalDPS = floatPtr(round1(physical))
	item.ElementalDPS = floatPtr(round1(elemental))
	item.DPS = floatPtr(round1(physical + elemental))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func firstInt(s string) int {
	return atoi(firstIntRegex.FindString(s))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(s, "+"))
	return n
}

func atof(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func intPtr(n int) *int {
	return &n
}

func floatPtr(v float64) *float64 {
	return &v
}
