package services

import "github.com/codyseavey/poe2-price-checker/backend/internal/models"

// Wire format of a trade search request
type tradeQueryBody struct {
	Query tradeQuery        `json:"query"`
	Sort  map[string]string `json:"sort"`
}

type tradeQuery struct {
	Status  tradeOption                 `json:"status"`
	Name    string                      `json:"name,omitempty"`
	Type    string                      `json:"type,omitempty"`
	Stats   []tradeStatGroup            `json:"stats"`
	Filters map[string]tradeFilterGroup `json:"filters"`
}

type tradeOption struct {
	Option string `json:"option"`
}

type tradeRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

type tradeStatGroup struct {
	Type    string            `json:"type"`
	Filters []tradeStatFilter `json:"filters"`
	Value   *tradeRange       `json:"value,omitempty"`
}

type tradeStatFilter struct {
	ID    string      `json:"id"`
	Value *tradeRange `json:"value,omitempty"`
}

type tradeFilterGroup struct {
	Filters map[string]any `json:"filters"`
}

var tradeRarityOptions = map[models.Rarity]string{
	models.RarityNormal: "normal",
	models.RarityMagic:  "magic",
	models.RarityRare:   "rare",
	models.RarityUnique: "unique",
}

// BuildTradeQueryBody converts a TradeQuery into the JSON body the trade API expects.
// Only priced listings are requested, cheapest first.
func BuildTradeQueryBody(q models.TradeQuery, onlineOnly bool) tradeQueryBody {
	status := "any"
	if onlineOnly {
		status = "online"
	}

	body := tradeQueryBody{
		Query: tradeQuery{
			Status:  tradeOption{Option: status},
			Name:    q.Name,
			Type:    q.BaseType,
			Stats:   []tradeStatGroup{},
			Filters: map[string]tradeFilterGroup{},
		},
		Sort: map[string]string{"price": "asc"},
	}

	if len(q.StatFilters) > 0 {
		group := tradeStatGroup{Type: "and"}
		for _, f := range q.StatFilters {
			filter := tradeStatFilter{ID: f.StatID}
			if f.Min != nil {
				filter.Value = &tradeRange{Min: f.Min}
			}
			group.Filters = append(group.Filters, filter)
		}
		if q.StatMinMatch > 0 && q.StatMinMatch < len(q.StatFilters) {
			group.Type = "count"
			group.Value = &tradeRange{Min: floatPtr(float64(q.StatMinMatch))}
		}
		body.Query.Stats = append(body.Query.Stats, group)
	}

	addFilter := func(group, key string, value any) {
		g, ok := body.Query.Filters[group]
		if !ok {
			g = tradeFilterGroup{Filters: map[string]any{}}
			body.Query.Filters[group] = g
		}
		g.Filters[key] = value
	}
	minInt := func(group, key string, v *int) {
		if v != nil {
			addFilter(group, key, tradeRange{Min: floatPtr(float64(*v))})
		}
	}
	minFloat := func(group, key string, v *float64) {
		if v != nil {
			addFilter(group, key, tradeRange{Min: floatPtr(*v)})
		}
	}

	if option, ok := tradeRarityOptions[q.Rarity]; ok {
		addFilter("type_filters", "rarity", tradeOption{Option: option})
	}

	p := q.Properties
	minInt("type_filters", "ilvl", p.MinItemLevel)
	minInt("type_filters", "quality", p.MinQuality)
	minInt("equipment_filters", "rune_sockets", p.MinSockets)
	minInt("equipment_filters", "pdps", p.MinPhysicalDPS)
	minInt("equipment_filters", "edps", p.MinElementalDPS)
	minInt("equipment_filters", "ar", p.MinArmour)
	minInt("equipment_filters", "ev", p.MinEvasion)
	minInt("equipment_filters", "es", p.MinEnergyShield)
	minInt("equipment_filters", "block", p.MinBlock)
	minInt("equipment_filters", "spirit", p.MinSpirit)
	minFloat("equipment_filters", "aps", p.MinAttackSpeed)
	minFloat("equipment_filters", "crit", p.MinCritChance)
	minInt("misc_filters", "gem_level", p.MinGemLevel)
	if p.Corrupted != nil {
		option := "false"
		if *p.Corrupted {
			option = "true"
		}
		addFilter("misc_filters", "corrupted", tradeOption{Option: option})
	}

	addFilter("trade_filters", "sale_type", tradeOption{Option: "priced"})

	return body
}
