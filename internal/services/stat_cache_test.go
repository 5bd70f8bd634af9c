package services

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/poe2-price-checker/backend/internal/database"
	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	return db
}

func TestStatCacheStoreSaveLoad(t *testing.T) {
	store := NewStatCacheStore(newTestDB(t))

	n, err := store.Save([]StatDefinition{
		{ID: "explicit.stat_life", Text: "+# to maximum Life"},
		{ID: "implicit.stat_life", Text: "+# to maximum Life"},
		{ID: "explicit.stat_fire", Text: "+#% to Fire Resistance"},
		{ID: "", Text: "no id"},
	})
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Save() stored %d, want 2", n)
	}

	defs, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("Load() returned %d definitions, want 2", len(defs))
	}
	if defs[0].ID != "explicit.stat_life" {
		t.Errorf("first definition should win, got %s", defs[0].ID)
	}

	resolver := NewStatResolver()
	if err := resolver.SetStatIDs(defs); err != nil {
		t.Fatalf("SetStatIDs() error: %v", err)
	}
	if id := resolver.Lookup("+55 to maximum Life"); id != "explicit.stat_life" {
		t.Errorf("resolver built from cache returned %q", id)
	}
}

func TestStatCacheStoreUpsert(t *testing.T) {
	store := NewStatCacheStore(newTestDB(t))

	if _, err := store.Save([]StatDefinition{{ID: "explicit.old", Text: "#% increased Movement Speed"}}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := store.Save([]StatDefinition{{ID: "explicit.new", Text: "#% increased Movement Speed"}}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
	defs, _ := store.Load()
	if len(defs) != 1 || defs[0].ID != "explicit.new" {
		t.Errorf("upsert should replace the stat id, got %+v", defs)
	}
}

func TestStatCacheStoreSkipsExpired(t *testing.T) {
	db := newTestDB(t)
	store := NewStatCacheStore(db)

	past := time.Now().Add(-time.Minute)
	db.Create(&models.StatCacheEntry{Normalized: "# to strength", Text: "+# to Strength", StatID: "explicit.str", ExpiresAt: &past})
	db.Create(&models.StatCacheEntry{Normalized: "# to dexterity", Text: "+# to Dexterity", StatID: "explicit.dex"})

	defs, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(defs) != 1 || defs[0].ID != "explicit.dex" {
		t.Errorf("expired entries should be skipped, got %+v", defs)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("Count() after Clear = %d", store.Count())
	}
}

func TestStatCacheStoreNilDB(t *testing.T) {
	store := NewStatCacheStore(nil)
	if n, err := store.Save([]StatDefinition{{ID: "a", Text: "b"}}); n != 0 || err != nil {
		t.Errorf("Save() on nil db = %d, %v", n, err)
	}
	if defs, err := store.Load(); defs != nil || err != nil {
		t.Errorf("Load() on nil db = %v, %v", defs, err)
	}
}
