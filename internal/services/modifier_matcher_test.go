package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

func TestNormalizeModifierText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"+32% to Fire Resistance", "#% to fire resistance"},
		{"+32% to Fire Resistance (crafted)", "#% to fire resistance"},
		{"-12% to Chaos Resistance", "#% to chaos resistance"},
		{"Adds 5 to 10   Fire Damage", "adds # to # fire damage"},
		{"Adds 10-20 Fire Damage", "adds # to # fire damage"},
		{"Adds 1.5 - 3 Cold Damage to Attacks", "adds # to # cold damage to attacks"},
		{"1.5% of Physical Attack Damage Leeched as Life", "#% of physical attack damage leeched as life"},
		{"+# to maximum Life", "# to maximum life"},
		{"Cannot be Frozen", "cannot be frozen"},
	}

	for _, tt := range tests {
		if got := NormalizeModifierText(tt.input); got != tt.want {
			t.Errorf("NormalizeModifierText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestModifierMatcherTemplates(t *testing.T) {
	tests := []struct {
		input        string
		wantCategory models.ModifierCategory
		wantPattern  string
	}{
		{"30% increased Movement Speed", models.CategorySpeed, "#% increased movement speed"},
		{"+15% to all Elemental Resistances", models.CategoryResistance, "#% to all elemental resistances"},
		{"+32% to Fire Resistance", models.CategoryResistance, "#% to fire resistance"},
		{"+85 to maximum Life", models.CategoryLife, "# to maximum life"},
		{"8% increased maximum Life", models.CategoryLife, "#% increased maximum life"},
		{"+2 to Level of all Melee Skills", models.CategoryDamage, "# to level of all melee skills"},
		{"25% increased Critical Damage Bonus", models.CategoryCritical, "#% increased critical damage bonus"},
		{"Adds 5 to 10 Fire Damage to Attacks", models.CategoryDamage, "adds # to # fire damage to attacks"},
		{"+40 to maximum Mana", models.CategoryMana, "# to maximum mana"},
		{"+10 to Strength", models.CategoryAttribute, "# to strength"},
		{"+120 to Accuracy Rating", models.CategoryAccuracy, "# to accuracy rating"},
		{"40% increased Armour", models.CategoryDefense, "#% increased armour"},
	}

	matcher := NewModifierMatcher(nil)
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := matcher.Match(tt.input)
			if result.Category != tt.wantCategory {
				t.Errorf("Category = %q, want %q", result.Category, tt.wantCategory)
			}
			if result.Pattern != tt.wantPattern {
				t.Errorf("Pattern = %q, want %q", result.Pattern, tt.wantPattern)
			}
			if result.StatID != "" {
				t.Errorf("StatID = %q, want empty without resolver", result.StatID)
			}
		})
	}
}

func TestModifierMatcherNoTemplate(t *testing.T) {
	result := NewModifierMatcher(nil).Match("Grants 3 Frenzy Charges on Kill")
	if result.Category != "" {
		t.Errorf("Category = %q, want empty", result.Category)
	}
	if result.Pattern != "grants # frenzy charges on kill" {
		t.Errorf("Pattern = %q, want normalized text", result.Pattern)
	}
	if !reflect.DeepEqual(result.Values, []float64{3}) {
		t.Errorf("Values = %v, want [3]", result.Values)
	}
	if CategorizeModifier("Grants 3 Frenzy Charges on Kill") != models.CategoryUnknown {
		t.Error("CategorizeModifier should fall back to unknown")
	}
}

func newTestResolver(t *testing.T) *StatResolver {
	t.Helper()
	r := NewStatResolver()
	err := r.SetStatIDs([]StatDefinition{
		{ID: "explicit.stat_3299347043", Text: "+# to maximum Life"},
		{ID: "explicit.stat_3372524247", Text: "+#% to Fire Resistance"},
		{ID: "explicit.stat_2974417149", Text: "#% increased Spell Damage"},
		{ID: "implicit.stat_3299347043", Text: "+# to maximum Life"},
		{ID: "explicit.stat_1940865751", Text: "Adds # to # Physical Damage (Local)"},
	})
	if err != nil {
		t.Fatalf("SetStatIDs: %v", err)
	}
	return r
}

func TestStatResolverLookup(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Exact", "+85 to maximum Life", "explicit.stat_3299347043"},
		{"Marker stripped", "+32% to Fire Resistance (crafted)", "explicit.stat_3372524247"},
		{"Known text contained in modifier", "45% increased Spell Damage while Shocked", "explicit.stat_2974417149"},
		{"Modifier contained in known text", "Adds 5 to 10 Physical Damage", "explicit.stat_1940865751"},
		{"Unknown", "Grants 3 Frenzy Charges", ""},
		{"Too short for containment", "#", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Lookup(tt.input); got != tt.want {
				t.Errorf("Lookup(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	if r.Len() != 4 {
		t.Errorf("Len() = %d, want 4 distinct texts", r.Len())
	}
}

func TestStatResolverSetOnce(t *testing.T) {
	r := newTestResolver(t)
	if !r.Loaded() {
		t.Fatal("Loaded() = false after SetStatIDs")
	}
	err := r.SetStatIDs([]StatDefinition{{ID: "x", Text: "y"}})
	if !errors.Is(err, ErrStatsAlreadyLoaded) {
		t.Errorf("second SetStatIDs error = %v, want ErrStatsAlreadyLoaded", err)
	}
	if r.Lookup("y") != "" {
		t.Error("rejected definitions must not be added")
	}
}

func TestStatResolverIsolation(t *testing.T) {
	a := newTestResolver(t)
	b := NewStatResolver()
	if b.Lookup("+85 to maximum Life") != "" {
		t.Error("fresh resolver must not see another resolver's stats")
	}
	if a.Lookup("+85 to maximum Life") == "" {
		t.Error("populated resolver lost its stats")
	}
}

func TestStatResolverResolve(t *testing.T) {
	r := newTestResolver(t)
	texts := []string{"+85 to maximum Life", "Grants 3 Frenzy Charges", "+20% to Fire Resistance"}

	got, err := r.Resolve(context.Background(), texts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := map[string]string{
		"+85 to maximum Life":     "explicit.stat_3299347043",
		"+20% to Fire Resistance": "explicit.stat_3372524247",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Resolve(ctx, texts); !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve with cancelled context error = %v, want context.Canceled", err)
	}
}

func TestModifierMatcherWithResolver(t *testing.T) {
	matcher := NewModifierMatcher(newTestResolver(t))
	result := matcher.Match("+85 to maximum Life")
	if result.StatID != "explicit.stat_3299347043" {
		t.Errorf("StatID = %q", result.StatID)
	}
	if result.Category != models.CategoryLife {
		t.Errorf("Category = %q, want life", result.Category)
	}
}
