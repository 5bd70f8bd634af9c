package models

import (
	"strings"
	"time"
)

// LearningRecord is one priced rare or magic item kept to learn how item quality
// maps to price within an item class
type LearningRecord struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	ClassKey      string            `gorm:"not null;index;size:80" json:"class_key"`
	ItemClass     string            `gorm:"size:80" json:"item_class"`
	BaseType      string            `json:"basetype"`
	Rarity        Rarity            `gorm:"size:20" json:"rarity"`
	QualityScore  int               `json:"quality_score"`
	Price         float64           `json:"price"`
	Currency      string            `gorm:"size:40" json:"currency"`
	SearchTier    int               `json:"search_tier"`
	ListingCount  int               `json:"listing_count"`
	ItemLevel     *int              `json:"ilvl,omitempty"`
	SocketCount   *int              `json:"socket_count,omitempty"`
	LinkedSockets *int              `json:"linked_sockets,omitempty"`
	Armour        *int              `json:"armour,omitempty"`
	Evasion       *int              `json:"evasion,omitempty"`
	EnergyShield  *int              `json:"energy_shield,omitempty"`
	Block         *int              `json:"block,omitempty"`
	Spirit        *int              `json:"spirit,omitempty"`
	PhysicalDPS   *float64          `json:"pdps,omitempty"`
	ElementalDPS  *float64          `json:"edps,omitempty"`
	TotalDPS      *float64          `json:"total_dps,omitempty"`
	Corrupted     bool              `json:"corrupted"`
	Patterns      []LearningPattern `gorm:"foreignKey:RecordID;constraint:OnDelete:CASCADE" json:"patterns,omitempty"`
	CreatedAt     time.Time         `gorm:"index" json:"created_at"`
}

// LearningPattern is one normalized modifier of a learning record
type LearningPattern struct {
	ID       uint             `gorm:"primaryKey" json:"-"`
	RecordID uint             `gorm:"not null;index" json:"-"`
	Pattern  string           `gorm:"not null;index" json:"pattern"`
	Category ModifierCategory `gorm:"size:20" json:"category"`
	Tier     int              `json:"tier,omitempty"` // 0 when the catalog has no tier data
	Value    *float64         `json:"value,omitempty"`
	Implicit bool             `json:"implicit,omitempty"`
}

// Categories returns the distinct categories of the record's explicit and crafted patterns
func (r *LearningRecord) Categories() []ModifierCategory {
	seen := make(map[ModifierCategory]bool)
	var out []ModifierCategory
	for _, p := range r.Patterns {
		if p.Implicit || p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	return out
}

// LearningClassKey groups item classes for learning: "Body Armours" becomes "body_armours"
func LearningClassKey(itemClass string) string {
	return strings.Join(strings.Fields(strings.ToLower(itemClass)), "_")
}
