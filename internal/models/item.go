package models

import "strings"

type Rarity string

const (
	RarityNormal         Rarity = "Normal"
	RarityMagic          Rarity = "Magic"
	RarityRare           Rarity = "Rare"
	RarityUnique         Rarity = "Unique"
	RarityCurrency       Rarity = "Currency"
	RarityGem            Rarity = "Gem"
	RarityDivinationCard Rarity = "Divination Card"
)

// ParseRarity maps the value of a "Rarity:" header line to a Rarity.
// Unknown values fall back to Normal.
func ParseRarity(s string) Rarity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "magic":
		return RarityMagic
	case "rare":
		return RarityRare
	case "unique":
		return RarityUnique
	case "currency":
		return RarityCurrency
	case "gem":
		return RarityGem
	case "divination card":
		return RarityDivinationCard
	default:
		return RarityNormal
	}
}

// AllRarities returns every rarity the parser can produce
func AllRarities() []Rarity {
	return []Rarity{
		RarityNormal,
		RarityMagic,
		RarityRare,
		RarityUnique,
		RarityCurrency,
		RarityGem,
		RarityDivinationCard,
	}
}

// ModifierType is the provenance of a modifier line
type ModifierType string

const (
	ModifierImplicit ModifierType = "implicit"
	ModifierExplicit ModifierType = "explicit"
	ModifierCrafted  ModifierType = "crafted"
	ModifierEnchant  ModifierType = "enchant"
)

// ItemModifier is a single stat line of an item. It belongs to exactly one
// of the ParsedItem modifier lists.
type ItemModifier struct {
	Text    string       `json:"text"`
	Type    ModifierType `json:"type"`
	Values  []float64    `json:"values"`
	Value   *float64     `json:"value"` // first entry of Values, nil when the line has no numbers
	Enabled bool         `json:"enabled"`
	Tier    string       `json:"tier,omitempty"`    // e.g. "T2", filled by the evaluator for display
	StatID  string       `json:"stat_id,omitempty"` // marketplace stat id once resolved
}

// DamageRange is a "min-max" damage property
type DamageRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Average returns the midpoint of the range
func (d DamageRange) Average() float64 {
	return (d.Min + d.Max) / 2
}

// Sockets describes the "Sockets:" line of an item
type Sockets struct {
	Raw    string `json:"raw"`
	Count  int    `json:"count"`
	Linked int    `json:"linked"` // size of the largest linked group
}

// Requirements holds the level and attribute requirements of an item
type Requirements struct {
	Level        *int `json:"level,omitempty"`
	Strength     *int `json:"strength,omitempty"`
	Dexterity    *int `json:"dexterity,omitempty"`
	Intelligence *int `json:"intelligence,omitempty"`
}

// ItemProperties are the numeric properties shown above the modifiers.
// Nil fields were not present in the item text.
type ItemProperties struct {
	Quality         *int          `json:"quality,omitempty"`
	Armour          *int          `json:"armour,omitempty"`
	Evasion         *int          `json:"evasion,omitempty"`
	EnergyShield    *int          `json:"energy_shield,omitempty"`
	Block           *int          `json:"block,omitempty"`
	Spirit          *int          `json:"spirit,omitempty"`
	PhysicalDamage  *DamageRange  `json:"physical_damage,omitempty"`
	ElementalDamage []DamageRange `json:"elemental_damage,omitempty"`
	ChaosDamage     *DamageRange  `json:"chaos_damage,omitempty"`
	AttackSpeed     *float64      `json:"attack_speed,omitempty"`
	CritChance      *float64      `json:"crit_chance,omitempty"`
	WeaponRange     *float64      `json:"weapon_range,omitempty"`
	ReloadTime      *float64      `json:"reload_time,omitempty"`
}

// ParsedItem is the structured form of an item card copied from the game client
type ParsedItem struct {
	RawText      string         `json:"raw_text"`
	ItemClass    string         `json:"item_class"`
	Rarity       Rarity         `json:"rarity"`
	Name         string         `json:"name"`
	BaseType     string         `json:"basetype"`
	ItemLevel    *int           `json:"item_level,omitempty"`
	GemLevel     *int           `json:"gem_level,omitempty"`
	StackSize    *int           `json:"stack_size,omitempty"`
	MaxStackSize *int           `json:"max_stack_size,omitempty"`
	Requirements Requirements   `json:"requirements"`
	Properties   ItemProperties `json:"properties"`
	Sockets      *Sockets       `json:"sockets,omitempty"`

	ImplicitMods []ItemModifier `json:"implicit_mods"`
	ExplicitMods []ItemModifier `json:"explicit_mods"`
	CraftedMods  []ItemModifier `json:"crafted_mods"`

	Corrupted    bool `json:"corrupted"`
	Mirrored     bool `json:"mirrored"`
	Unidentified bool `json:"unidentified"`

	PhysicalDPS  *float64 `json:"pdps,omitempty"`
	ElementalDPS *float64 `json:"edps,omitempty"`
	DPS          *float64 `json:"dps,omitempty"`
}

// AllModifiers returns implicit, explicit and crafted modifiers in that order
func (p *ParsedItem) AllModifiers() []ItemModifier {
	all := make([]ItemModifier, 0, len(p.ImplicitMods)+len(p.ExplicitMods)+len(p.CraftedMods))
	all = append(all, p.ImplicitMods...)
	all = append(all, p.ExplicitMods...)
	all = append(all, p.CraftedMods...)
	return all
}

// AffixCount is the number of modifiers occupying prefix/suffix slots
func (p *ParsedItem) AffixCount() int {
	return len(p.ExplicitMods) + len(p.CraftedMods)
}

// DisplayName returns the name for uniques and rares, the base type otherwise
func (p *ParsedItem) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.BaseType
}
