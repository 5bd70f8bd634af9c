package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codyseavey/poe2-price-checker/backend/internal/metrics"
)

var (
	// ErrStatsNotLoaded is returned by Resolve before the first successful sync
	ErrStatsNotLoaded = errors.New("trade stat ids not loaded")
	// ErrStatSyncRunning is returned when a sync is requested while one is in progress
	ErrStatSyncRunning = errors.New("stat sync already running")
)

// StatSource provides trade stat definitions
type StatSource interface {
	LoadStats(ctx context.Context) ([]StatDefinition, error)
}

// StatSyncResult describes one stat id sync
type StatSyncResult struct {
	Source      string        `json:"source"` // "api" or "cache"
	Definitions int           `json:"definitions"`
	Resolvable  int           `json:"resolvable"`
	Stored      int           `json:"stored"`
	Errors      []string      `json:"errors,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// StatSyncService keeps the active StatResolver. A sync builds a fresh resolver and
// swaps it in, so lookups never see a partially filled one.
type StatSyncService struct {
	source StatSource
	store  *StatCacheStore

	resolver atomic.Pointer[StatResolver]

	mu       sync.Mutex
	running  bool
	lastSync time.Time
}

func NewStatSyncService(source StatSource, store *StatCacheStore) *StatSyncService {
	return &StatSyncService{source: source, store: store}
}

// IsRunning returns whether a sync is currently in progress
func (s *StatSyncService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastSync returns when the resolver was last replaced
func (s *StatSyncService) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// Resolver returns the active resolver, or an empty one before the first sync
func (s *StatSyncService) Resolver() *StatResolver {
	if r := s.resolver.Load(); r != nil {
		return r
	}
	return NewStatResolver()
}

// Resolve implements StatLookup against the active resolver
func (s *StatSyncService) Resolve(ctx context.Context, texts []string) (map[string]string, error) {
	r := s.resolver.Load()
	if r == nil {
		return nil, ErrStatsNotLoaded
	}
	return r.Resolve(ctx, texts)
}

// Sync loads stat definitions from the trade API and persists them. When the API is
// unavailable the sqlite cache is used instead.
func (s *StatSyncService) Sync(ctx context.Context) (*StatSyncResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrStatSyncRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	result := &StatSyncResult{Source: "api"}

	var defs []StatDefinition
	var err error
	if s.source != nil {
		defs, err = s.source.LoadStats(ctx)
	} else {
		err = errors.New("no stat source configured")
	}

	if err == nil && len(defs) > 0 {
		stored, saveErr := s.store.Save(defs)
		if saveErr != nil {
			log.Printf("StatSync: failed to persist stat ids: %v", saveErr)
			result.Errors = append(result.Errors, saveErr.Error())
		}
		result.Stored = stored
	} else {
		if err == nil {
			err = errors.New("trade API returned no stats")
		}
		log.Printf("StatSync: trade API unavailable, falling back to cache: %v", err)
		result.Errors = append(result.Errors, err.Error())
		result.Source = "cache"

		defs, err = s.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load cached stat ids: %w", err)
		}
		if len(defs) == 0 {
			result.Duration = time.Since(start)
			return result, ErrStatsNotLoaded
		}
	}

	resolver := NewStatResolver()
	if err := resolver.SetStatIDs(defs); err != nil {
		return nil, err
	}
	s.resolver.Store(resolver)

	s.mu.Lock()
	s.lastSync = time.Now()
	s.mu.Unlock()

	result.Definitions = len(defs)
	result.Resolvable = resolver.Len()
	result.Duration = time.Since(start)
	metrics.StatIDsLoaded.Set(float64(resolver.Len()))

	log.Printf("StatSync: loaded %d stat ids (%d distinct texts) from %s in %v",
		result.Definitions, result.Resolvable, result.Source, result.Duration)
	return result, nil
}
