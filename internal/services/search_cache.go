package services

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/codyseavey/poe2-price-checker/backend/internal/metrics"
	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

const (
	DefaultSearchCacheSize = 100
	DefaultSearchCacheTTL  = 5 * time.Minute
)

// SearchCacheStats is a snapshot of cache usage
type SearchCacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	TTL     string  `json:"ttl"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// SearchCache keeps recent progressive search outcomes so repeated price checks of the
// same item do not hit the trade API again
type SearchCache struct {
	lru     *expirable.LRU[string, *models.SearchOutcome]
	maxSize int
	ttl     time.Duration
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewSearchCache(size int, ttl time.Duration) *SearchCache {
	if size <= 0 {
		size = DefaultSearchCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultSearchCacheTTL
	}
	return &SearchCache{
		lru:     expirable.NewLRU[string, *models.SearchOutcome](size, nil, ttl),
		maxSize: size,
		ttl:     ttl,
	}
}

// SearchCacheKey is rarity|name|base|hash, where the hash covers the enabled modifier texts
// in sorted order so modifier ordering does not matter
func SearchCacheKey(league string, item *models.ParsedItem) string {
	var texts []string
	for _, mod := range item.AllModifiers() {
		if mod.Enabled {
			texts = append(texts, mod.Text)
		}
	}
	sort.Strings(texts)

	sum := sha256.Sum256([]byte(strings.Join(texts, "\n")))
	return strings.ToLower(strings.Join([]string{
		league,
		string(item.Rarity),
		item.Name,
		item.BaseType,
		hex.EncodeToString(sum[:])[:8],
	}, "|"))
}

// Get returns a copy of the cached outcome marked FromCache
func (c *SearchCache) Get(key string) (*models.SearchOutcome, bool) {
	outcome, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		metrics.SearchCacheMisses.Inc()
		return nil, false
	}
	c.hits.Add(1)
	metrics.SearchCacheHits.Inc()

	cached := *outcome
	cached.FromCache = true
	return &cached, true
}

// Put stores an outcome. Outcomes that ended in an error or ran without
// resolved stat ids are not cached.
func (c *SearchCache) Put(key string, outcome *models.SearchOutcome) {
	if outcome == nil || outcome.Error != "" || outcome.StatsUnresolved {
		return
	}
	c.lru.Add(key, outcome)
}

// Invalidate removes entries for the given item name or base type, or everything when both are empty.
// Returns the number of removed entries.
func (c *SearchCache) Invalidate(name, baseType string) int {
	if name == "" && baseType == "" {
		n := c.lru.Len()
		c.lru.Purge()
		return n
	}

	name = strings.ToLower(name)
	baseType = strings.ToLower(baseType)
	removed := 0
	for _, key := range c.lru.Keys() {
		parts := strings.Split(key, "|")
		if len(parts) != 5 {
			continue
		}
		if (name != "" && parts[2] == name) || (baseType != "" && parts[3] == baseType) {
			if c.lru.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

func (c *SearchCache) Stats() SearchCacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	stats := SearchCacheStats{
		Size:    c.lru.Len(),
		MaxSize: c.maxSize,
		TTL:     c.ttl.String(),
		Hits:    hits,
		Misses:  misses,
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}
