package services

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

const rareRingText = `Item Class: Rings
Rarity: Rare
Storm Loop
Sapphire Ring
--------
Requirements:
Level: 45
Int: 30
--------
Item Level: 82
--------
+18% to Cold Resistance (implicit)
--------
+85 to maximum Life
+32% to Fire Resistance
+12% to Lightning Resistance
+15 to Dexterity (crafted)
--------
Corrupted`

const rareMaceText = `Item Class: Two Hand Maces
Rarity: Rare
Doom Crusher
Temple Maul
--------
Quality: +20% (augmented)
Physical Damage: 10-20 (augmented)
Critical Hit Chance: 5.00%
Attacks per Second: 1.50
--------
Requires: Level 65, 120 Str
--------
Sockets: S-S S
--------
Item Level: 82
--------
Adds 5 to 10 Fire Damage
+2 to Level of all Melee Skills
--------
"Crush them all"`

func TestParseItemEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n", " \r\n --------\n"} {
		if item := ParseItem(input); item != nil {
			t.Errorf("ParseItem(%q) = %+v, want nil", input, item)
		}
	}
}

func TestParseItemRareRing(t *testing.T) {
	item := ParseItem(rareRingText)
	if item == nil {
		t.Fatal("ParseItem returned nil")
	}

	if item.ItemClass != "Rings" {
		t.Errorf("ItemClass = %q, want Rings", item.ItemClass)
	}
	if item.Rarity != models.RarityRare {
		t.Errorf("Rarity = %s, want Rare", item.Rarity)
	}
	if item.Name != "Storm Loop" || item.BaseType != "Sapphire Ring" {
		t.Errorf("Name/BaseType = %q/%q, want Storm Loop/Sapphire Ring", item.Name, item.BaseType)
	}
	if item.ItemLevel == nil || *item.ItemLevel != 82 {
		t.Errorf("ItemLevel = %v, want 82", item.ItemLevel)
	}
	if item.Requirements.Level == nil || *item.Requirements.Level != 45 {
		t.Errorf("Requirements.Level = %v, want 45", item.Requirements.Level)
	}
	if item.Requirements.Intelligence == nil || *item.Requirements.Intelligence != 30 {
		t.Errorf("Requirements.Intelligence = %v, want 30", item.Requirements.Intelligence)
	}
	if !item.Corrupted {
		t.Error("Corrupted = false, want true")
	}

	if len(item.ImplicitMods) != 1 {
		t.Fatalf("ImplicitMods = %d, want 1", len(item.ImplicitMods))
	}
	if item.ImplicitMods[0].Text != "+18% to Cold Resistance" {
		t.Errorf("implicit text = %q, marker should be stripped", item.ImplicitMods[0].Text)
	}
	if len(item.ExplicitMods) != 3 {
		t.Errorf("ExplicitMods = %d, want 3", len(item.ExplicitMods))
	}
	if len(item.CraftedMods) != 1 || item.CraftedMods[0].Type != models.ModifierCrafted {
		t.Errorf("CraftedMods = %+v, want one crafted modifier", item.CraftedMods)
	}

	life := item.ExplicitMods[0]
	if life.Value == nil || *life.Value != 85 {
		t.Errorf("life Value = %v, want 85", life.Value)
	}
	if !life.Enabled {
		t.Error("modifiers should be enabled by default")
	}
}

func TestParseItemQualityAndItemLevel(t *testing.T) {
	text := "Item Class: Body Armours\nRarity: Rare\nHate Shell\nFull Plate\n--------\nQuality: +20% (augmented)\nArmour: 512 (augmented)\n--------\nItem Level: 82"
	item := ParseItem(text)
	if item == nil {
		t.Fatal("ParseItem returned nil")
	}
	if item.Properties.Quality == nil || *item.Properties.Quality != 20 {
		t.Errorf("Quality = %v, want 20", item.Properties.Quality)
	}
	if item.ItemLevel == nil || *item.ItemLevel != 82 {
		t.Errorf("ItemLevel = %v, want 82", item.ItemLevel)
	}
	if item.Properties.Armour == nil || *item.Properties.Armour != 512 {
		t.Errorf("Armour = %v, want 512", item.Properties.Armour)
	}
	if item.DPS != nil {
		t.Errorf("DPS = %v, want nil without attack speed", *item.DPS)
	}
}

func TestParseItemWeaponDPS(t *testing.T) {
	item := ParseItem(rareMaceText)
	if item == nil {
		t.Fatal("ParseItem returned nil")
	}

	if item.DPS == nil || *item.DPS != 22.5 {
		t.Errorf("DPS = %v, want 22.5", item.DPS)
	}
	if item.PhysicalDPS == nil || *item.PhysicalDPS != 22.5 {
		t.Errorf("PhysicalDPS = %v, want 22.5", item.PhysicalDPS)
	}
	if item.ElementalDPS == nil || *item.ElementalDPS != 0 {
		t.Errorf("ElementalDPS = %v, want 0", item.ElementalDPS)
	}
	if item.Properties.CritChance == nil || *item.Properties.CritChance != 5 {
		t.Errorf("CritChance = %v, want 5", item.Properties.CritChance)
	}
	if item.Requirements.Level == nil || *item.Requirements.Level != 65 {
		t.Errorf("Requirements.Level = %v, want 65", item.Requirements.Level)
	}
	if item.Requirements.Strength == nil || *item.Requirements.Strength != 120 {
		t.Errorf("Requirements.Strength = %v, want 120", item.Requirements.Strength)
	}
	if item.Sockets == nil || item.Sockets.Count != 3 || item.Sockets.Linked != 2 {
		t.Errorf("Sockets = %+v, want 3 sockets with 2 linked", item.Sockets)
	}

	// Two lines after item level is still short enough to be read as implicits
	if len(item.ImplicitMods) != 2 || len(item.ExplicitMods) != 0 {
		t.Errorf("implicit/explicit = %d/%d, want 2/0", len(item.ImplicitMods), len(item.ExplicitMods))
	}
	if vals := item.ImplicitMods[0].Values; !reflect.DeepEqual(vals, []float64{5, 10}) {
		t.Errorf("Values = %v, want [5 10]", vals)
	}
}

func TestParseItemElementalDPS(t *testing.T) {
	text := `Item Class: Bows
Rarity: Rare
Grim Arc
Recurve Bow
--------
Physical Damage: 20-40
Elemental Damage: 10-20 (augmented), 5-15 (augmented)
Attacks per Second: 1.20
--------
Item Level: 70`

	item := ParseItem(text)
	if item == nil {
		t.Fatal("ParseItem returned nil")
	}
	if len(item.Properties.ElementalDamage) != 2 {
		t.Fatalf("ElementalDamage = %v, want 2 ranges", item.Properties.ElementalDamage)
	}
	// (15 + 10) * 1.2 = 30, 30 * 1.2 = 36
	if item.ElementalDPS == nil || *item.ElementalDPS != 30 {
		t.Errorf("ElementalDPS = %v, want 30", item.ElementalDPS)
	}
	if item.DPS == nil || *item.DPS != 66 {
		t.Errorf("DPS = %v, want 66", item.DPS)
	}
}

func TestParseItemHeaderEdgeCases(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantName     string
		wantBaseType string
		wantRarity   models.Rarity
	}{
		{
			name:         "Normal single line",
			input:        "Item Class: Rings\nRarity: Normal\nSuperior Iron Ring\n--------\nItem Level: 10",
			wantBaseType: "Iron Ring",
			wantRarity:   models.RarityNormal,
		},
		{
			name:         "Magic single line",
			input:        "Item Class: Rings\nRarity: Magic\nSapphire Ring of the Whale\n--------\nItem Level: 10",
			wantBaseType: "Sapphire Ring of the Whale",
			wantRarity:   models.RarityMagic,
		},
		{
			name:         "Unidentified rare",
			input:        "Item Class: Rings\nRarity: Rare\nRuby Ring\n--------\nUnidentified",
			wantBaseType: "Ruby Ring",
			wantRarity:   models.RarityRare,
		},
		{
			name:         "Unique",
			input:        "Item Class: Belts\nRarity: Unique\nHeadhunter\nHeavy Belt",
			wantName:     "Headhunter",
			wantBaseType: "Heavy Belt",
			wantRarity:   models.RarityUnique,
		},
		{
			name:         "No name lines falls back to item class",
			input:        "Item Class: Waystones\nRarity: Normal",
			wantBaseType: "Waystones",
			wantRarity:   models.RarityNormal,
		},
		{
			name:         "Nothing but text",
			input:        "just some text",
			wantBaseType: "just some text",
			wantRarity:   models.RarityNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := ParseItem(tt.input)
			if item == nil {
				t.Fatal("ParseItem returned nil")
			}
			if item.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", item.Name, tt.wantName)
			}
			if item.BaseType != tt.wantBaseType {
				t.Errorf("BaseType = %q, want %q", item.BaseType, tt.wantBaseType)
			}
			if item.Rarity != tt.wantRarity {
				t.Errorf("Rarity = %s, want %s", item.Rarity, tt.wantRarity)
			}
		})
	}
}

func TestParseItemImplicitHeuristic(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantImplicit int
		wantExplicit int
		wantCrafted  int
	}{
		{
			name:         "Short unmarked section after item level is implicit",
			body:         "+10% to Cold Resistance\n--------\n+50 to maximum Life\n+20% to Fire Resistance",
			wantImplicit: 1,
			wantExplicit: 2,
		},
		{
			name:         "Long first section is explicit",
			body:         "+50 to maximum Life\n+20% to Fire Resistance\n+10 to Strength\n+5 to Dexterity",
			wantExplicit: 4,
		},
		{
			name:         "Crafted line keeps first section explicit",
			body:         "+50 to maximum Life\n+10 to Strength (crafted)",
			wantExplicit: 1,
			wantCrafted:  1,
		},
		{
			name:         "Only first section can be the guessed implicit",
			body:         "+10% to Cold Resistance\n--------\n+50 to maximum Life\n--------\n+10 to Strength",
			wantImplicit: 1,
			wantExplicit: 2,
		},
		{
			name:         "Enchant goes to implicit list",
			body:         "+10% to Cold Resistance (enchant)\n+8% to Fire Resistance (rune)\n+50 to maximum Life\n+20 to Strength",
			wantImplicit: 2,
			wantExplicit: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "Item Class: Rings\nRarity: Rare\nDoom Band\nIron Ring\n--------\nItem Level: 60\n--------\n" + tt.body
			item := ParseItem(text)
			if item == nil {
				t.Fatal("ParseItem returned nil")
			}
			if len(item.ImplicitMods) != tt.wantImplicit ||
				len(item.ExplicitMods) != tt.wantExplicit ||
				len(item.CraftedMods) != tt.wantCrafted {
				t.Errorf("implicit/explicit/crafted = %d/%d/%d, want %d/%d/%d",
					len(item.ImplicitMods), len(item.ExplicitMods), len(item.CraftedMods),
					tt.wantImplicit, tt.wantExplicit, tt.wantCrafted)
			}
		})
	}
}

func TestParseItemModifierSectionBeforeItemLevel(t *testing.T) {
	// Without an item level nothing is guessed to be implicit
	text := "Item Class: Rings\nRarity: Rare\nDoom Band\nIron Ring\n--------\n+10% to Cold Resistance"
	item := ParseItem(text)
	if len(item.ImplicitMods) != 0 || len(item.ExplicitMods) != 1 {
		t.Errorf("implicit/explicit = %d/%d, want 0/1", len(item.ImplicitMods), len(item.ExplicitMods))
	}
}

func TestParseItemIdempotent(t *testing.T) {
	for _, text := range []string{rareRingText, rareMaceText} {
		first := ParseItem(text)
		second := ParseItem(text)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("ParseItem is not idempotent:\n%+v\n%+v", first, second)
		}
	}
}

func TestParseItemModifierPartition(t *testing.T) {
	for _, text := range []string{rareRingText, rareMaceText} {
		item := ParseItem(text)

		want := 0
		for _, section := range SplitSections(text)[1:] {
			if ClassifySection(section) != SectionModifiers {
				continue
			}
			for _, line := range section {
				if !isFlavorLine(line) {
					want++
				}
			}
		}

		got := len(item.ImplicitMods) + len(item.ExplicitMods) + len(item.CraftedMods)
		if got != want {
			t.Errorf("modifier lists hold %d lines, want %d", got, want)
		}
	}
}

func TestParseItemStackSizeAndNotes(t *testing.T) {
	text := `Item Class: Stackable Currency
Rarity: Currency
Exalted Orb
--------
Stack Size: 1,234/5,000
--------
Right click this item then left click a rare item to apply it.
--------
Note: ~price 1 divine`

	item := ParseItem(text)
	if item.StackSize == nil || *item.StackSize != 1234 {
		t.Errorf("StackSize = %v, want 1234", item.StackSize)
	}
	if item.MaxStackSize == nil || *item.MaxStackSize != 5000 {
		t.Errorf("MaxStackSize = %v, want 5000", item.MaxStackSize)
	}
	if n := len(item.AllModifiers()); n != 0 {
		t.Errorf("notes should not produce modifiers, got %d", n)
	}
	if item.BaseType != "Exalted Orb" {
		t.Errorf("BaseType = %q, want Exalted Orb", item.BaseType)
	}
}

func TestParseItemGem(t *testing.T) {
	text := `Item Class: Skill Gems
Rarity: Gem
Fireball
--------
Level: 18
Quality: +12%
--------
Corrupted`

	item := ParseItem(text)
	if item.GemLevel == nil || *item.GemLevel != 18 {
		t.Errorf("GemLevel = %v, want 18", item.GemLevel)
	}
	if item.Properties.Quality == nil || *item.Properties.Quality != 12 {
		t.Errorf("Quality = %v, want 12", item.Properties.Quality)
	}
	if !item.Corrupted {
		t.Error("Corrupted = false, want true")
	}
}

func TestParseItemTruncatesHugeInput(t *testing.T) {
	text := "Item Class: Rings\nRarity: Rare\nDoom Band\nIron Ring\n--------\n" + strings.Repeat("+1 to Strength\n", 5000)
	item := ParseItem(text)
	if item == nil {
		t.Fatal("ParseItem returned nil")
	}
	if len(item.RawText) > maxItemTextLength {
		t.Errorf("RawText length = %d, want <= %d", len(item.RawText), maxItemTextLength)
	}
}

func TestParseItemTruncatesOnRuneBoundary(t *testing.T) {
	head := "Item Class: Rings\nRarity: Rare\nDoom Band\nIron Ring\n--------\n"
	// A three byte rune straddles the length limit
	text := head + strings.Repeat("a", maxItemTextLength-len(head)-1) + "€ tail"
	item := ParseItem(text)
	if item == nil {
		t.Fatal("ParseItem returned nil")
	}
	if !utf8.ValidString(item.RawText) {
		t.Error("RawText is not valid UTF-8 after truncation")
	}
	if len(item.RawText) > maxItemTextLength {
		t.Errorf("RawText length = %d, want <= %d", len(item.RawText), maxItemTextLength)
	}
}

func TestClassifySection(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  SectionKind
	}{
		{"Empty", nil, SectionNone},
		{"Requirements block", []string{"Requirements:", "Level: 10"}, SectionRequirements},
		{"Requires line", []string{"Requires: Level 10"}, SectionRequirements},
		{"Item level", []string{"Item Level: 5"}, SectionItemLevel},
		{"Quality", []string{"Quality: +5%"}, SectionQuality},
		{"Sockets", []string{"Sockets: S S"}, SectionSockets},
		{"Stack size", []string{"Stack Size: 3/10"}, SectionStackSize},
		{"Gem level", []string{"Level: 3"}, SectionGemLevel},
		{"Flags", []string{"Corrupted", "Mirrored"}, SectionFlags},
		{"Note", []string{"Note: ~b/o 5 exalted"}, SectionNote},
		{"Properties", []string{"Armour: 100", "Energy Shield: 20"}, SectionProperties},
		{"Block chance", []string{"Block chance: 25%"}, SectionProperties},
		{"Flavor", []string{`"Some words"`, `"more words"`}, SectionFlavor},
		{"Modifier", []string{"+10 to Strength"}, SectionModifiers},
		{"Flag word inside modifier section", []string{"Corrupted", "+10 to Strength"}, SectionModifiers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifySection(tt.lines); got != tt.want {
				t.Errorf("ClassifySection(%v) = %s, want %s", tt.lines, got, tt.want)
			}
		})
	}
}

func TestExtractNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  []float64
	}{
		{"+85 to maximum Life", []float64{85}},
		{"Adds 5 to 10 Fire Damage", []float64{5, 10}},
		{"Adds 10-20 Fire Damage", []float64{10, 20}},
		{"Physical Damage: 10-20", []float64{10, 20}},
		{"-5 to -3 Chaos Damage", []float64{-5, -3}},
		{"-12% to Chaos Resistance", []float64{-12}},
		{"1.5% of Damage Leeched", []float64{1.5}},
		{"Cannot be Frozen", []float64{}},
	}

	for _, tt := range tests {
		if got := ExtractNumbers(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExtractNumbers(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
