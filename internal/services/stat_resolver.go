package services

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrStatsAlreadyLoaded is returned when a resolver is populated a second time
var ErrStatsAlreadyLoaded = errors.New("stat ids already loaded for this resolver")

// Shortest normalized text eligible for containment matching
const minContainmentLength = 6

// StatDefinition is one trade stat as published by the trade API
type StatDefinition struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`
}

// StatResolver maps normalized modifier text to trade stat ids.
// It is filled once through SetStatIDs and read-only afterwards; a reload builds
// a new resolver instead of mutating a shared one.
type StatResolver struct {
	stats  map[string]string
	keys   []string // longest first, then lexical
	loaded bool
}

// NewStatResolver creates an empty resolver
func NewStatResolver() *StatResolver {
	return &StatResolver{stats: make(map[string]string)}
}

// SetStatIDs populates the resolver. The first definition for a normalized text wins.
func (r *StatResolver) SetStatIDs(defs []StatDefinition) error {
	if r.loaded {
		return ErrStatsAlreadyLoaded
	}

	for _, def := range defs {
		if def.ID == "" || def.Text == "" {
			continue
		}
		key := NormalizeModifierText(def.Text)
		if _, exists := r.stats[key]; !exists {
			r.stats[key] = def.ID
		}
	}

	r.keys = make([]string, 0, len(r.stats))
	for key := range r.stats {
		r.keys = append(r.keys, key)
	}
	sort.Slice(r.keys, func(i, j int) bool {
		if len(r.keys[i]) != len(r.keys[j]) {
			return len(r.keys[i]) > len(r.keys[j])
		}
		return r.keys[i] < r.keys[j]
	})

	r.loaded = true
	return nil
}

// Loaded reports whether SetStatIDs has been called
func (r *StatResolver) Loaded() bool {
	return r.loaded
}

// Len returns the number of distinct normalized stat texts
func (r *StatResolver) Len() int {
	return len(r.stats)
}

// Definitions returns the normalized text → stat id pairs for persistence
func (r *StatResolver) Definitions() []StatDefinition {
	defs := make([]StatDefinition, 0, len(r.keys))
	for _, key := range r.keys {
		defs = append(defs, StatDefinition{ID: r.stats[key], Text: key})
	}
	return defs
}

// Lookup returns the stat id for modifier text, or "" when unresolved.
// Exact normalized match first; otherwise the longest known stat text contained in
// the modifier, then the shortest known stat text containing it.
func (r *StatResolver) Lookup(text string) string {
	if len(r.stats) == 0 {
		return ""
	}

	normalized := NormalizeModifierText(text)
	if id, ok := r.stats[normalized]; ok {
		return id
	}
	if len(normalized) < minContainmentLength {
		return ""
	}

	for _, key := range r.keys {
		if len(key) >= minContainmentLength && strings.Contains(normalized, key) {
			return r.stats[key]
		}
	}
	for i := len(r.keys) - 1; i >= 0; i-- {
		if strings.Contains(r.keys[i], normalized) {
			return r.stats[r.keys[i]]
		}
	}
	return ""
}

// Resolve looks up many modifier texts at once. Unresolved texts are absent from the result.
func (r *StatResolver) Resolve(ctx context.Context, texts []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved := make(map[string]string, len(texts))
	for _, text := range texts {
		if id := r.Lookup(text); id != "" {
			resolved[text] = id
		}
	}
	return resolved, nil
}
