package services

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/poe2-price-checker/backend/internal/metrics"
)

const (
	defaultMaintenanceInterval = time.Hour
	defaultHistoryRetention    = 30 * 24 * time.Hour
	defaultStatRefreshAge      = 24 * time.Hour
)

// RateSource refreshes currency conversion rates
type RateSource interface {
	LoadRates(ctx context.Context) error
}

// MaintenanceWorker prunes history past retention, refreshes currency rates
// and re-syncs trade stat ids once they are older than a day
type MaintenanceWorker struct {
	history   *HistoryService
	statSync  *StatSyncService
	rates     RateSource
	db        *gorm.DB
	interval  time.Duration
	retention time.Duration

	mu          sync.RWMutex
	lastRun     time.Time
	prunedTotal int64
}

// MaintenanceStatus is reported by the admin status endpoint
type MaintenanceStatus struct {
	LastRunTime   time.Time `json:"last_run_time"`
	NextRunTime   time.Time `json:"next_run_time"`
	PrunedRecords int64     `json:"pruned_records"`
	Retention     string    `json:"retention"`
}

func NewMaintenanceWorker(history *HistoryService, statSync *StatSyncService, rates RateSource, db *gorm.DB, retention time.Duration) *MaintenanceWorker {
	if retention <= 0 {
		retention = defaultHistoryRetention
	}
	return &MaintenanceWorker{
		history:   history,
		statSync:  statSync,
		rates:     rates,
		db:        db,
		interval:  defaultMaintenanceInterval,
		retention: retention,
	}
}

// Start runs maintenance immediately and then every interval until ctx is done
func (w *MaintenanceWorker) Start(ctx context.Context) {
	log.Printf("Maintenance worker started: pruning history older than %v every %v", w.retention, w.interval)

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Maintenance worker stopping...")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one maintenance pass
func (w *MaintenanceWorker) RunOnce(ctx context.Context) {
	if w.history != nil {
		prices, scans, err := w.history.PruneOlderThan(time.Now().Add(-w.retention))
		if err != nil {
			log.Printf("Maintenance worker: history prune failed: %v", err)
		} else if prices+scans > 0 {
			metrics.HistoryRecordsPruned.WithLabelValues("price_records").Add(float64(prices))
			metrics.HistoryRecordsPruned.WithLabelValues("scan_records").Add(float64(scans))
			log.Printf("Maintenance worker: pruned %d price records and %d scans", prices, scans)
		}

		w.mu.Lock()
		w.prunedTotal += prices + scans
		w.mu.Unlock()
	}

	if w.rates != nil {
		if err := w.rates.LoadRates(ctx); err != nil {
			log.Printf("Maintenance worker: currency rate refresh failed: %v", err)
		}
	}

	if w.statSync != nil && !w.statSync.IsRunning() && time.Since(w.statSync.LastSync()) > defaultStatRefreshAge {
		if _, err := w.statSync.Sync(ctx); err != nil {
			log.Printf("Maintenance worker: stat id refresh failed: %v", err)
		}
	}

	metrics.UpdateHistoryMetrics(w.db)

	w.mu.Lock()
	w.lastRun = time.Now()
	w.mu.Unlock()
}

// GetStatus returns the current status
func (w *MaintenanceWorker) GetStatus() MaintenanceStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return MaintenanceStatus{
		LastRunTime:   w.lastRun,
		NextRunTime:   w.lastRun.Add(w.interval),
		PrunedRecords: w.prunedTotal,
		Retention:     w.retention.String(),
	}
}
